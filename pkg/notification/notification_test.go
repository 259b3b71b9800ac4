package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderDefaultTemplates(t *testing.T) {
	text, html, err := Render(DefaultTemplates[AccountLockedNotice], map[string]string{
		"Attempts":    "5",
		"LockedUntil": "2024-01-01T12:30:00Z",
		"ResetURL":    "https://lms.example.gov/forgot-password",
	})
	require.NoError(t, err)
	assert.Contains(t, text, "locked after 5 failed sign-in attempts")
	assert.Contains(t, html, `href="https://lms.example.gov/forgot-password"`)
}

func TestRenderEscapesHTML(t *testing.T) {
	_, html, err := Render(DefaultTemplates[PasswordResetNotice], map[string]string{
		"Link":      "https://lms.example.gov/reset?token=a",
		"ExpiresIn": "<b>1h</b>",
	})
	require.NoError(t, err)
	assert.NotContains(t, html, "<b>1h</b>")
}

func TestEveryNoticeHasTemplate(t *testing.T) {
	for _, n := range []NoticeType{AccountLockedNotice, PasswordResetNotice, EmailVerificationNotice} {
		tmpl, ok := DefaultTemplates[n]
		assert.True(t, ok, n)
		assert.NotEmpty(t, tmpl.Subject, n)
	}
}

func TestMockNotifier(t *testing.T) {
	m := &MockNotifier{}
	ctx := context.Background()
	require.NoError(t, m.Send(ctx, PasswordResetNotice, NotificationData{To: "a@example.gov"}))
	require.NoError(t, m.Send(ctx, AccountLockedNotice, NotificationData{To: "b@example.gov"}))

	locked := m.Of(AccountLockedNotice)
	require.Len(t, locked, 1)
	assert.Equal(t, "b@example.gov", locked[0].To)

	m.Err = errors.New("smtp down")
	assert.Error(t, m.Send(ctx, PasswordResetNotice, NotificationData{}))
}
