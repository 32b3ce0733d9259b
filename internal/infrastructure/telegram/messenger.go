package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/buyback-hub/buyback-hub/internal/domain/notify"
)

// Messenger delivers notifications over the Telegram Bot API. Delivery
// is best-effort; the caller decides what a failure means.
type Messenger struct {
	apiBase string
	token   string
	client  *http.Client
	logger  zerolog.Logger
}

// NewMessenger builds a Telegram messenger. apiBase defaults to the
// public Bot API endpoint; tests point it at a local server.
func NewMessenger(apiBase, token string, logger zerolog.Logger) *Messenger {
	if apiBase == "" {
		apiBase = "https://api.telegram.org"
	}
	return &Messenger{
		apiBase: strings.TrimRight(apiBase, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With().Str("component", "telegram").Logger(),
	}
}

// Deliver sends one message. Messages with a photo reference go through
// sendPhoto with the text as caption.
func (m *Messenger) Deliver(ctx context.Context, msg notify.Message) error {
	method := "sendMessage"
	form := url.Values{
		"chat_id":    {strconv.FormatInt(msg.ChatID, 10)},
		"parse_mode": {"HTML"},
	}
	if msg.PhotoRef != "" {
		method = "sendPhoto"
		form.Set("photo", msg.PhotoRef)
		form.Set("caption", msg.Text)
	} else {
		form.Set("text", msg.Text)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", m.apiBase, m.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram send: status %d", resp.StatusCode)
	}
	return nil
}
