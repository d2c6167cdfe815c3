package tools

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

const (
	imapTimeout      = 60 * time.Second
	defaultListLimit = 10
	maxListLimit     = 50
	maxMailBody      = 8000
)

// mailEnvelope is the header summary of one message.
type mailEnvelope struct {
	Seq     uint32
	Date    time.Time
	From    string
	To      []string
	Subject string
}

// mailSession is an authenticated mailbox connection.
type mailSession interface {
	// Select opens a mailbox read-only and returns its message count.
	Select(mailbox string) (uint32, error)
	Envelopes(first, last uint32) ([]mailEnvelope, error)
	Message(seq uint32) (mailEnvelope, []byte, error)
	Close() error
}

// Inbox reads the INBOX of an IMAP account over TLS. Messages are addressed
// by position, 1 being the newest.
type Inbox struct {
	host string
	port int
	user string
	pass string

	dial func(ctx context.Context) (mailSession, error)
}

func NewInbox(host string, port int, user, pass string) *Inbox {
	if port == 0 {
		port = 993
	}
	i := &Inbox{host: host, port: port, user: user, pass: pass}
	i.dial = i.dialIMAP
	return i
}

func (i *Inbox) configured() bool {
	return i != nil && i.host != "" && i.user != "" && i.pass != ""
}

var errInboxNotConfigured = errors.New("email reading is not configured; set GMAIL_USER and GMAIL_APP_PASSWORD, or email.imap_host, email.imap_user and RYS_EMAIL_IMAP_PASS")

func (i *Inbox) open(ctx context.Context) (mailSession, uint32, error) {
	if !i.configured() {
		return nil, 0, errInboxNotConfigured
	}
	sess, err := i.dial(ctx)
	if err != nil {
		return nil, 0, err
	}
	n, err := sess.Select("INBOX")
	if err != nil {
		sess.Close()
		return nil, 0, fmt.Errorf("selecting INBOX: %w", err)
	}
	return sess, n, nil
}

// List returns the newest limit messages, newest first, one line each.
func (i *Inbox) List(ctx context.Context, limit int) (string, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	sess, n, err := i.open(ctx)
	if err != nil {
		return "", err
	}
	defer sess.Close()
	if n == 0 {
		return "(inbox is empty)", nil
	}

	first := uint32(1)
	if n > uint32(limit) {
		first = n - uint32(limit) + 1
	}
	envs, err := sess.Envelopes(first, n)
	if err != nil {
		return "", fmt.Errorf("fetching envelopes: %w", err)
	}
	slices.SortFunc(envs, func(a, b mailEnvelope) int { return int(b.Seq) - int(a.Seq) })

	lines := make([]string, 0, len(envs))
	for _, e := range envs {
		lines = append(lines, fmt.Sprintf("[%d] %s | %s | %s", n-e.Seq+1, formatMailDate(e.Date), orUnknown(e.From), subjectOf(e)))
	}
	return strings.Join(lines, "\n"), nil
}

// Read returns one message with its text body. index 1 is the newest.
func (i *Inbox) Read(ctx context.Context, index int) (string, error) {
	if index < 1 {
		return "", errors.New("index must be 1 or greater; 1 is the newest message")
	}
	sess, n, err := i.open(ctx)
	if err != nil {
		return "", err
	}
	defer sess.Close()
	if n == 0 {
		return "(inbox is empty)", nil
	}
	if uint32(index) > n {
		return "", fmt.Errorf("index %d out of range; the inbox has %d messages (1-%d)", index, n, n)
	}

	env, raw, err := sess.Message(n - uint32(index) + 1)
	if err != nil {
		return "", fmt.Errorf("fetching message: %w", err)
	}
	body := messageText(raw)
	if r := []rune(body); len(r) > maxMailBody {
		body = string(r[:maxMailBody]) + "\n[truncated]"
	}
	return fmt.Sprintf("Subject: %s\nFrom: %s\nTo: %s\nDate: %s\n\n%s",
		subjectOf(env), orUnknown(env.From), strings.Join(env.To, ", "), formatMailDate(env.Date), body), nil
}

func subjectOf(e mailEnvelope) string {
	if strings.TrimSpace(e.Subject) == "" {
		return "(no subject)"
	}
	return e.Subject
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

func formatMailDate(t time.Time) string {
	if t.IsZero() {
		return "?"
	}
	return t.UTC().Format(time.RFC3339)
}

// messageText extracts the first text/plain part, falling back to the visible
// text of the first text/html part. Attachments are skipped.
func messageText(raw []byte) string {
	if len(raw) == 0 {
		return "(could not read the message body)"
	}
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if mr == nil {
		return fmt.Sprintf("(could not parse the message body: %v)", err)
	}

	var plain, htmlBody string
	for {
		p, err := mr.NextPart()
		if err != nil {
			break
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		b, err := io.ReadAll(p.Body)
		if err != nil {
			continue
		}
		switch ct {
		case "text/plain":
			if plain == "" {
				plain = strings.TrimSpace(string(b))
			}
		case "text/html":
			if htmlBody == "" {
				htmlBody = string(b)
			}
		}
	}

	if plain != "" {
		return plain
	}
	if htmlBody != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody)); err == nil {
			if text := visibleText(doc.Selection); text != "" {
				return text
			}
		}
	}
	return "(no text body)"
}

func (i *Inbox) dialIMAP(ctx context.Context) (mailSession, error) {
	d := tls.Dialer{
		NetDialer: &net.Dialer{Timeout: imapTimeout},
		Config:    &tls.Config{ServerName: i.host},
	}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(i.host, strconv.Itoa(i.port)))
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", i.host, err)
	}
	deadline := time.Now().Add(imapTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	c := imapclient.New(conn, &imapclient.Options{
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	})
	if err := c.Login(i.user, i.pass).Wait(); err != nil {
		c.Close()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	return &imapSession{c: c}, nil
}

type imapSession struct {
	c *imapclient.Client
}

func (s *imapSession) Select(mailbox string) (uint32, error) {
	data, err := s.c.Select(mailbox, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return 0, err
	}
	return data.NumMessages, nil
}

func (s *imapSession) Envelopes(first, last uint32) ([]mailEnvelope, error) {
	var set imap.SeqSet
	set.AddRange(first, last)
	msgs, err := s.c.Fetch(set, &imap.FetchOptions{Envelope: true}).Collect()
	if err != nil {
		return nil, err
	}
	out := make([]mailEnvelope, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, envelopeOf(m.SeqNum, m.Envelope))
	}
	return out, nil
}

func (s *imapSession) Message(seq uint32) (mailEnvelope, []byte, error) {
	section := &imap.FetchItemBodySection{Peek: true}
	msgs, err := s.c.Fetch(imap.SeqSetNum(seq), &imap.FetchOptions{
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return mailEnvelope{}, nil, err
	}
	if len(msgs) == 0 {
		return mailEnvelope{}, nil, fmt.Errorf("message %d not found", seq)
	}
	m := msgs[0]
	return envelopeOf(m.SeqNum, m.Envelope), m.FindBodySection(section), nil
}

func (s *imapSession) Close() error {
	_ = s.c.Logout().Wait()
	return s.c.Close()
}

func envelopeOf(seq uint32, env *imap.Envelope) mailEnvelope {
	e := mailEnvelope{Seq: seq}
	if env == nil {
		return e
	}
	e.Date = env.Date
	e.Subject = env.Subject
	if len(env.From) > 0 {
		e.From = env.From[0].Addr()
	}
	for _, a := range env.To {
		if addr := a.Addr(); addr != "" {
			e.To = append(e.To, addr)
		}
	}
	return e
}

func inboxTools(i *Inbox) []Tool {
	return []Tool{
		{
			Name:        "email_list",
			Description: "List the newest messages in the inbox, newest first. Use the number in brackets with email_read.",
			Params: []Param{
				{Name: "limit", Type: Integer, Description: "How many messages to list, default 10"},
			},
			Handler: func(ctx context.Context, _ Caller, args Args) (string, error) {
				return i.List(ctx, args.Int("limit", defaultListLimit))
			},
		},
		{
			Name:        "email_read",
			Description: "Read one message (subject, sender, date and body) by its position; 1 is the newest, matching email_list.",
			Params: []Param{
				{Name: "index", Type: Integer, Description: "Position in the inbox, 1 = newest", Required: true},
			},
			Handler: func(ctx context.Context, _ Caller, args Args) (string, error) {
				return i.Read(ctx, args.Int("index", 0))
			},
		},
	}
}
