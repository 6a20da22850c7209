// Package telegram sends relay notifications through the Telegram Bot API.
// Address tokens are chat IDs; a chat that blocked the bot (or never
// existed) is a permanently invalid address.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"pushrelay/internal/transport"
	logx "pushrelay/pkg/logx"
)

type Config struct {
	Token string
}

type Client struct {
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token: cfg.Token,
		// Send-only: no poller, updates are never consumed.
	})
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	return &Client{bot: b, log: log}, nil
}

func (c *Client) Send(ctx context.Context, address string, msg transport.Message) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(address), 10, 64)
	if err != nil {
		// A token that is not a chat ID can never be delivered to.
		return transport.PermanentInvalid(fmt.Errorf("address %q is not a chat id", address))
	}

	if err := ctx.Err(); err != nil {
		return transport.Transient(err)
	}

	_, err = c.bot.Send(tele.ChatID(chatID), render(msg), &tele.SendOptions{
		DisableWebPagePreview: true,
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

func render(msg transport.Message) string {
	var b strings.Builder
	if msg.Title != "" {
		b.WriteString(msg.Title)
		b.WriteString("\n\n")
	}
	b.WriteString(msg.Body)
	if msg.Link != "" {
		b.WriteString("\n")
		b.WriteString(msg.Link)
	}
	return b.String()
}

func classify(err error) error {
	switch {
	case errors.Is(err, tele.ErrBlockedByUser),
		errors.Is(err, tele.ErrUserIsDeactivated),
		errors.Is(err, tele.ErrChatNotFound),
		errors.Is(err, tele.ErrNotStartedByUser):
		return transport.PermanentInvalid(err)
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return transport.Transient(fmt.Errorf("flood limited, retry after %s: %w",
			time.Duration(flood.RetryAfter)*time.Second, err))
	}
	return err
}
