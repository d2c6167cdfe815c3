package delivery

import (
	"context"
	"errors"
	"unicode/utf8"
)

// MaxReplyRunes caps outbound text. Longer replies are cut, not split.
const MaxReplyRunes = 4000

// ErrNotDelivered is returned when the platform accepted the request but did
// not confirm a message was created.
var ErrNotDelivered = errors.New("message not delivered")

// Sender posts text to a chat and returns the platform message id.
type Sender interface {
	Send(ctx context.Context, chatID, text string) (string, error)
}

// Truncate returns at most n runes of text.
func Truncate(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}
