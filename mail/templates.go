package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"
)

var (
	inviteTmpl = template.Must(template.New("invite").Parse(`<h2>Hello {{.Name}},</h2>
<p>You have been invited to join our platform.</p>
<p>Click below to register:</p>
<a href="{{.Link}}" style="padding: 10px 20px; background-color: #4f46e5; color: white; text-decoration: none; border-radius: 5px;">Join Now</a>
<p>Thank you!</p>
`))

	resetTmpl = template.Must(template.New("reset").Parse(`<p>Click <a href="{{.Link}}">here</a> to reset your password. This link is valid for {{.Valid}}.</p>
`))
)

// InviteMessage addresses the invitee by the local part of their email.
func InviteMessage(clientURL, email string) (*Message, error) {
	name := email
	if i := strings.IndexByte(email, '@'); i > 0 {
		name = email[:i]
	}
	link := strings.TrimRight(clientURL, "/") + "/register?email=" + url.QueryEscape(email)

	var b bytes.Buffer
	if err := inviteTmpl.Execute(&b, struct{ Name, Link string }{name, link}); err != nil {
		return nil, fmt.Errorf("mail: invite template: %w", err)
	}

	return &Message{
		To:      email,
		Subject: "You are invited!",
		HTML:    b.String(),
		Text:    fmt.Sprintf("Hello %s,\n\nYou have been invited to join our platform. Register here: %s\n", name, link),
	}, nil
}

func ResetMessage(frontendURL, email, token string, valid time.Duration) (*Message, error) {
	link := strings.TrimRight(frontendURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
	v := humanize(valid)

	var b bytes.Buffer
	if err := resetTmpl.Execute(&b, struct{ Link, Valid string }{link, v}); err != nil {
		return nil, fmt.Errorf("mail: reset template: %w", err)
	}

	return &Message{
		To:      email,
		Subject: "Password Reset",
		HTML:    b.String(),
		Text:    fmt.Sprintf("Reset your password here: %s\nThis link is valid for %s.\n", link, v),
	}, nil
}

func humanize(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	default:
		return d.String()
	}
}
