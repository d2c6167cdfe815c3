package tools

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// Mailer sends plain-text mail through an SMTP relay.
type Mailer struct {
	host string
	port int
	user string
	pass string
	from string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now  func() time.Time
}

func NewMailer(host string, port int, user, pass, from string) *Mailer {
	if from == "" {
		from = user
	}
	return &Mailer{host: host, port: port, user: user, pass: pass, from: from, send: smtp.SendMail, now: time.Now}
}

func (m *Mailer) configured() bool {
	return m != nil && m.host != "" && m.user != "" && m.pass != ""
}

func (m *Mailer) Send(to, subject, body string) (string, error) {
	if !m.configured() {
		return "", errors.New("email is not configured; set email.smtp_host, email.smtp_user and RYS_EMAIL_SMTP_PASS")
	}
	to = strings.TrimSpace(to)
	if to == "" || strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return "", errors.New("invalid recipient or subject")
	}
	msg := m.compose(to, subject, body)
	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))
	auth := smtp.PlainAuth("", m.user, m.pass, m.host)
	if err := m.send(addr, auth, m.from, []string{to}, msg); err != nil {
		return "", fmt.Errorf("sending mail: %w", err)
	}
	return "email sent to " + to, nil
}

func (m *Mailer) compose(to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

func emailTools(m *Mailer) []Tool {
	return []Tool{{
		Name:        "email_send",
		Description: "Send a plain-text email.",
		Params: []Param{
			{Name: "to", Type: String, Description: "Recipient address", Required: true},
			{Name: "subject", Type: String, Description: "Subject line", Required: true},
			{Name: "body", Type: String, Description: "Plain-text body", Required: true},
		},
		Handler: func(_ context.Context, _ Caller, args Args) (string, error) {
			return m.Send(args.String("to"), args.String("subject"), args.String("body"))
		},
	}}
}
