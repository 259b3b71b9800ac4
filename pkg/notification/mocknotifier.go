package notification

import (
	"context"
	"sync"
)

type SentNotification struct {
	Type NoticeType
	NotificationData
}

// MockNotifier records every notice it is asked to send.
type MockNotifier struct {
	mu   sync.Mutex
	Sent []SentNotification
	Err  error
}

func (m *MockNotifier) Send(ctx context.Context, noticeType NoticeType, notification NotificationData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentNotification{Type: noticeType, NotificationData: notification})
	return m.Err
}

// Of returns the recorded notices of one type.
func (m *MockNotifier) Of(noticeType NoticeType) []SentNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SentNotification
	for _, n := range m.Sent {
		if n.Type == noticeType {
			out = append(out, n)
		}
	}
	return out
}
