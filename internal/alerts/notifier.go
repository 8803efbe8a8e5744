// Package alerts notifies operators about connection problems that need a
// human: a failed token refresh usually means someone has to re-authorize
// the Xero link.
package alerts

import (
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xerolink/xerolink/internal/logging"
)

// Sender delivers one rendered message. Satisfied by the Telegram client
// and by test doubles.
type Sender interface {
	Send(text string) error
}

// TelegramSender delivers messages through a Telegram bot chat.
type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSender creates a Telegram-backed sender.
func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TelegramSender{bot: bot, chatID: chatID}, nil
}

// Send delivers a plain-text message to the configured chat.
func (s *TelegramSender) Send(text string) error {
	_, err := s.bot.Send(tgbotapi.NewMessage(s.chatID, text))
	return err
}

// Notifier throttles refresh-failure alerts per company so a flapping
// connection produces one message per interval, not one per request.
type Notifier struct {
	sender      Sender
	minInterval time.Duration
	logger      *logging.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
	now      func() time.Time
}

// NewNotifier creates a throttled notifier. A nil sender disables delivery
// while keeping callers unconditional.
func NewNotifier(sender Sender, minInterval time.Duration, logger *logging.Logger) *Notifier {
	if minInterval <= 0 {
		minInterval = time.Hour
	}
	return &Notifier{
		sender:      sender,
		minInterval: minInterval,
		logger:      logger.Component("alerts"),
		lastSent:    make(map[string]time.Time),
		now:         time.Now,
	}
}

// NotifyRefreshFailure reports a failed token refresh for a company. At most
// one message per company per interval is delivered.
func (n *Notifier) NotifyRefreshFailure(companyID string, cause error) {
	if n.sender == nil {
		return
	}

	n.mu.Lock()
	last, seen := n.lastSent[companyID]
	now := n.now()
	if seen && now.Sub(last) < n.minInterval {
		n.mu.Unlock()
		return
	}
	n.lastSent[companyID] = now
	n.mu.Unlock()

	msg := fmt.Sprintf(
		"⚠️ Xero token refresh failed for company %s\n\n%v\n\nThe connection needs to be re-authorized.",
		companyID, cause,
	)
	if err := n.sender.Send(msg); err != nil {
		n.logger.Error("alert delivery failed", "company_id", companyID, "error", err.Error())
	}
}
