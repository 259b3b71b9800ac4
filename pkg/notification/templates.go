package notification

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

// DefaultTemplates are used when no override is registered for a notice.
var DefaultTemplates = map[NoticeType]NoticeTemplate{
	AccountLockedNotice: {
		Subject: "Your account has been temporarily locked",
		Text: `Hello,

Your account was locked after {{.Attempts}} failed sign-in attempts.
You can try again after {{.LockedUntil}}.

If this was not you, reset your password: {{.ResetURL}}
`,
		Html: `<p>Hello,</p>
<p>Your account was locked after {{.Attempts}} failed sign-in attempts.
You can try again after <strong>{{.LockedUntil}}</strong>.</p>
<p>If this was not you, <a href="{{.ResetURL}}">reset your password</a>.</p>`,
	},
	PasswordResetNotice: {
		Subject: "Reset your password",
		Text: `Hello,

Use the link below to reset your password. It expires in {{.ExpiresIn}}.

{{.Link}}
`,
		Html: `<p>Hello,</p>
<p>Use the link below to reset your password. It expires in {{.ExpiresIn}}.</p>
<p><a href="{{.Link}}">Reset password</a></p>`,
	},
	EmailVerificationNotice: {
		Subject: "Verify your email address",
		Text: `Welcome,

Confirm your email address to activate your account. The link expires in {{.ExpiresIn}}.

{{.Link}}
`,
		Html: `<p>Welcome,</p>
<p>Confirm your email address to activate your account. The link expires in {{.ExpiresIn}}.</p>
<p><a href="{{.Link}}">Verify email</a></p>`,
	},
}

// Render executes the text and HTML bodies of tmpl with data.
func Render(tmpl NoticeTemplate, data map[string]string) (text, html string, err error) {
	if tmpl.Text != "" {
		t, err := texttemplate.New("text").Option("missingkey=zero").Parse(tmpl.Text)
		if err != nil {
			return "", "", fmt.Errorf("parse text template: %w", err)
		}
		var buf bytes.Buffer
		if err := t.Execute(&buf, data); err != nil {
			return "", "", fmt.Errorf("execute text template: %w", err)
		}
		text = buf.String()
	}
	if tmpl.Html != "" {
		t, err := htmltemplate.New("html").Option("missingkey=zero").Parse(tmpl.Html)
		if err != nil {
			return "", "", fmt.Errorf("parse html template: %w", err)
		}
		var buf bytes.Buffer
		if err := t.Execute(&buf, data); err != nil {
			return "", "", fmt.Errorf("execute html template: %w", err)
		}
		html = buf.String()
	}
	return text, html, nil
}
