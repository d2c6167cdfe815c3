package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// fakeMailbox serves messages by sequence number, 1 being the oldest.
type fakeMailbox struct {
	envs   []mailEnvelope
	bodies map[uint32][]byte

	selectErr error
	closed    bool
	gotFirst  uint32
	gotLast   uint32
	gotSeq    uint32
}

func (f *fakeMailbox) Select(string) (uint32, error) {
	if f.selectErr != nil {
		return 0, f.selectErr
	}
	return uint32(len(f.envs)), nil
}

func (f *fakeMailbox) Envelopes(first, last uint32) ([]mailEnvelope, error) {
	f.gotFirst, f.gotLast = first, last
	return append([]mailEnvelope(nil), f.envs[first-1:last]...), nil
}

func (f *fakeMailbox) Message(seq uint32) (mailEnvelope, []byte, error) {
	f.gotSeq = seq
	return f.envs[seq-1], f.bodies[seq], nil
}

func (f *fakeMailbox) Close() error {
	f.closed = true
	return nil
}

func newTestInbox(box *fakeMailbox) *Inbox {
	i := NewInbox("imap.example.com", 993, "me@example.com", "pw")
	i.dial = func(context.Context) (mailSession, error) { return box, nil }
	return i
}

func mailbox(n int) *fakeMailbox {
	box := &fakeMailbox{bodies: map[uint32][]byte{}}
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	for seq := 1; seq <= n; seq++ {
		box.envs = append(box.envs, mailEnvelope{
			Seq:     uint32(seq),
			Date:    base.Add(time.Duration(seq) * time.Hour),
			From:    fmt.Sprintf("sender%d@example.com", seq),
			To:      []string{"me@example.com"},
			Subject: fmt.Sprintf("message %d", seq),
		})
	}
	return box
}

func TestInboxListNewestFirst(t *testing.T) {
	box := mailbox(5)
	out, err := newTestInbox(box).List(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if box.gotFirst != 3 || box.gotLast != 5 {
		t.Errorf("fetched %d:%d, want 3:5", box.gotFirst, box.gotLast)
	}
	want := strings.Join([]string{
		"[1] 2025-03-01T13:00:00Z | sender5@example.com | message 5",
		"[2] 2025-03-01T12:00:00Z | sender4@example.com | message 4",
		"[3] 2025-03-01T11:00:00Z | sender3@example.com | message 3",
	}, "\n")
	if out != want {
		t.Errorf("List =\n%s\nwant\n%s", out, want)
	}
	if !box.closed {
		t.Error("session not closed")
	}
}

func TestInboxListDefaultsAndEmpty(t *testing.T) {
	box := mailbox(3)
	box.envs[0].Subject = ""
	box.envs[0].From = ""
	out, err := newTestInbox(box).List(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if box.gotFirst != 1 || box.gotLast != 3 {
		t.Errorf("fetched %d:%d, want 1:3", box.gotFirst, box.gotLast)
	}
	if !strings.HasSuffix(out, "[3] 2025-03-01T09:00:00Z | ? | (no subject)") {
		t.Errorf("List = %q", out)
	}

	out, err = newTestInbox(mailbox(0)).List(context.Background(), 10)
	if err != nil || out != "(inbox is empty)" {
		t.Errorf("List(empty) = %q, %v", out, err)
	}
}

func TestInboxReadByPosition(t *testing.T) {
	box := mailbox(4)
	box.bodies[3] = []byte("From: sender3@example.com\r\n" +
		"Subject: message 3\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Lunch at noon?\r\n")

	out, err := newTestInbox(box).Read(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if box.gotSeq != 3 {
		t.Errorf("fetched seq %d, want 3", box.gotSeq)
	}
	for _, want := range []string{"Subject: message 3\n", "From: sender3@example.com\n", "To: me@example.com\n", "\n\nLunch at noon?"} {
		if !strings.Contains(out, want) {
			t.Errorf("Read missing %q:\n%s", want, out)
		}
	}
}

func TestInboxReadRange(t *testing.T) {
	box := mailbox(2)
	i := newTestInbox(box)
	if _, err := i.Read(context.Background(), 0); err == nil {
		t.Error("expected error for index 0")
	}
	_, err := i.Read(context.Background(), 3)
	if err == nil || !strings.Contains(err.Error(), "has 2 messages") {
		t.Errorf("Read(3) err = %v", err)
	}
}

func TestInboxReadTruncatesBody(t *testing.T) {
	box := mailbox(1)
	box.bodies[1] = []byte("Content-Type: text/plain; charset=utf-8\r\n\r\n" + strings.Repeat("邮", maxMailBody+10))

	out, err := newTestInbox(box).Read(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(out, strings.Repeat("邮", 5)+"\n[truncated]") {
		t.Errorf("body not truncated: ...%q", out[len(out)-40:])
	}
	if got := strings.Count(out, "邮"); got != maxMailBody {
		t.Errorf("kept %d runes, want %d", got, maxMailBody)
	}
}

func TestMessageText(t *testing.T) {
	multipart := "Content-Type: multipart/alternative; boundary=b1\r\n\r\n" +
		"--b1\r\nContent-Type: text/html; charset=utf-8\r\n\r\n<p>Hello <b>there</b></p><script>x()</script>\r\n" +
		"--b1--\r\n"
	withPlain := "Content-Type: multipart/alternative; boundary=b1\r\n\r\n" +
		"--b1\r\nContent-Type: text/plain; charset=utf-8\r\n\r\nplain wins\r\n" +
		"--b1\r\nContent-Type: text/html; charset=utf-8\r\n\r\n<p>html</p>\r\n" +
		"--b1--\r\n"

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"html only", multipart, "Hello there"},
		{"plain preferred", withPlain, "plain wins"},
		{"empty", "", "(could not read the message body)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := messageText([]byte(tt.raw)); got != tt.want {
				t.Errorf("messageText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInboxErrors(t *testing.T) {
	var unconfigured *Inbox
	if _, err := unconfigured.List(context.Background(), 5); !errors.Is(err, errInboxNotConfigured) {
		t.Errorf("List err = %v", err)
	}
	if _, err := NewInbox("", 0, "u", "p").Read(context.Background(), 1); !errors.Is(err, errInboxNotConfigured) {
		t.Errorf("Read err = %v", err)
	}

	box := mailbox(1)
	box.selectErr = errors.New("NO mailbox unavailable")
	if _, err := newTestInbox(box).List(context.Background(), 5); err == nil || !strings.Contains(err.Error(), "selecting INBOX") {
		t.Errorf("List err = %v", err)
	}
	if !box.closed {
		t.Error("session not closed after select failure")
	}

	i := NewInbox("imap.example.com", 993, "u", "p")
	i.dial = func(context.Context) (mailSession, error) { return nil, errors.New("imap login: bad credentials") }
	if _, err := i.List(context.Background(), 5); err == nil || !strings.Contains(err.Error(), "bad credentials") {
		t.Errorf("List err = %v", err)
	}
}
