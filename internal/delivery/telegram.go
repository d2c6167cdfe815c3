package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kalambet/rys/internal/metrics"
)

// telegramAPI is the subset of *tgbotapi.BotAPI used for sending.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramClient sends text messages through the Telegram Bot API.
type TelegramClient struct {
	api    telegramAPI
	logger *slog.Logger
}

// NewTelegramClient authenticates the bot token with getMe.
func NewTelegramClient(token string) (*TelegramClient, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	return newTelegramClient(bot), nil
}

func newTelegramClient(api telegramAPI) *TelegramClient {
	return &TelegramClient{api: api, logger: slog.Default()}
}

// Send posts text to chatID, which must be a numeric Telegram chat id.
func (c *TelegramClient) Send(ctx context.Context, chatID, text string) (string, error) {
	id, err := c.send(ctx, chatID, text)
	metrics.Deliveries.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		c.logger.Warn("telegram send failed", "chat_id", chatID, "error", err)
	}
	return id, err
}

func (c *TelegramClient) send(ctx context.Context, chatID, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	msg, err := c.api.Send(tgbotapi.NewMessage(id, text))
	if err != nil {
		return "", fmt.Errorf("sending telegram message: %w", err)
	}
	if msg.MessageID == 0 {
		return "", ErrNotDelivered
	}
	return strconv.Itoa(msg.MessageID), nil
}
