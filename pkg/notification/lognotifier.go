package notification

import (
	"context"
	"log/slog"
)

// LogNotifier writes notices to the log instead of delivering them. Used
// when no SMTP host is configured.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, noticeType NoticeType, notification NotificationData) error {
	slog.InfoContext(ctx, "Notification not delivered, no mail transport configured",
		"notice", noticeType, "to", notification.To)
	return nil
}
