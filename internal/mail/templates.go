package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"
)

const (
	ConfirmPath     = "/api/v1/auth/confirmed_email/"
	SetPasswordPath = "/api/v1/auth/set_password/"
)

var templates = template.Must(template.New("mail").Parse(`
{{define "verify"}}<html><body>
<h1>Welcome, {{.Username}}!</h1>
<p>Please confirm your email address by following the link below.</p>
<p><a href="{{.Link}}">Confirm email</a></p>
<p>The link is valid for {{.ValidFor}}.</p>
</body></html>{{end}}

{{define "reset"}}<html><body>
<h1>Password reset</h1>
<p>Hello {{.Username}},</p>
<p>Your password was reset. Set a new one by following the link below.</p>
<p><a href="{{.Link}}">Set a new password</a></p>
<p>The link is valid for {{.ValidFor}}. If you did not ask for this, contact support.</p>
</body></html>{{end}}

{{define "digest"}}<html><body>
<h1>Upcoming birthdays</h1>
<p>Hello {{.Username}}, these contacts have a birthday in the next seven days:</p>
<ul>{{range .Entries}}
<li>{{.Name}} ({{.Date}}){{if .Email}}, {{.Email}}{{end}}</li>{{end}}
</ul>
</body></html>{{end}}
`))

type linkData struct {
	Username string
	Link     string
	ValidFor string
}

// DigestEntry is one line of the birthday digest.
type DigestEntry struct {
	Name  string
	Email string
	Date  string
}

func VerifyEmail(baseURL, to, username, token string, validFor time.Duration) (Message, error) {
	body, err := render("verify", linkData{
		Username: username,
		Link:     link(baseURL, ConfirmPath, token),
		ValidFor: humanDuration(validFor),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Confirm your email", HTML: body}, nil
}

func ResetPassword(baseURL, to, username, token string, validFor time.Duration) (Message, error) {
	body, err := render("reset", linkData{
		Username: username,
		Link:     link(baseURL, SetPasswordPath, token),
		ValidFor: humanDuration(validFor),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Reset your password", HTML: body}, nil
}

func BirthdayDigest(to, username string, entries []DigestEntry) (Message, error) {
	body, err := render("digest", struct {
		Username string
		Entries  []DigestEntry
	}{username, entries})
	if err != nil {
		return Message{}, err
	}
	subject := fmt.Sprintf("%d upcoming birthday(s)", len(entries))
	return Message{To: to, Subject: subject, HTML: body}, nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func link(baseURL, path, token string) string {
	return strings.TrimRight(baseURL, "/") + path + url.PathEscape(token)
}

func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "a limited time"
	case d%time.Hour == 0:
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	default:
		return d.String()
	}
}
