package notification

import "context"

type NoticeType string

const (
	AccountLockedNotice     NoticeType = "account_locked"
	PasswordResetNotice     NoticeType = "password_reset"
	EmailVerificationNotice NoticeType = "email_verification"
)

type NotificationData struct {
	To   string            // recipient email address
	Data map[string]string // template values
}

// Notifier delivers a notice to one recipient.
type Notifier interface {
	Send(ctx context.Context, noticeType NoticeType, notification NotificationData) error
}
