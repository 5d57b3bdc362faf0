package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultSendTimeout = 5 * time.Second

// Event is one business fact worth telling the operators about.
type Event struct {
	Kind    string
	OrderID string
	Amount  int64
	Detail  string
}

// Notifier delivers operational events. Implementations must never
// fail the calling flow; delivery problems are logged and swallowed.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// New builds a notifier from config. Missing credentials fall back to
// a no-op so checkout and payments keep working without a bot.
func New(botToken, chatID string, logger *zap.Logger) Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	botToken = strings.TrimSpace(botToken)
	chatID = strings.TrimSpace(chatID)
	if botToken == "" || chatID == "" {
		logger.Info("telegram notifier disabled, falling back to noop")
		return NoOp{}
	}
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		log:      logger.Named("notify.telegram"),
		httpClient: &http.Client{
			Timeout: defaultSendTimeout,
		},
	}
}

// NoOp drops every event.
type NoOp struct{}

func (NoOp) Notify(ctx context.Context, event Event) {}

// TelegramNotifier posts events to a Telegram chat via the Bot API.
type TelegramNotifier struct {
	botToken   string
	chatID     string
	log        *zap.Logger
	httpClient *http.Client
}

func (n *TelegramNotifier) Notify(ctx context.Context, event Event) {
	text := formatEvent(event)

	body, err := json.Marshal(map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	})
	if err != nil {
		n.log.Warn("marshal notification", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, defaultSendTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		n.log.Warn("build notification request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.log.Warn("send notification", zap.String("kind", event.Kind), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		n.log.Warn("notification rejected",
			zap.String("kind", event.Kind),
			zap.Int("status_code", resp.StatusCode),
		)
	}
}

func formatEvent(event Event) string {
	var b strings.Builder
	b.WriteString(event.Kind)
	if event.OrderID != "" {
		b.WriteString("\norder: " + event.OrderID)
	}
	if event.Amount > 0 {
		fmt.Fprintf(&b, "\namount: %d", event.Amount)
	}
	if event.Detail != "" {
		b.WriteString("\n" + event.Detail)
	}
	return b.String()
}
