package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const apiBase = "https://api.telegram.org"

// Sender delivers segment notifications through the Telegram Bot API.
// Messages carry HTML parse mode so order link anchors render as links.
type Sender struct {
	token  string
	client *http.Client
	log    *slog.Logger
}

func NewSender(token string, log *slog.Logger) *Sender {
	return &Sender{
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

func (s *Sender) SendSegmentNotification(ctx context.Context, chatIDs []int64, text string, segmentID int64) error {
	if s.token == "" {
		s.log.Info("telegram token is not configured, dropping notification",
			"segment_id", segmentID, "recipients", len(chatIDs))
		return nil
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", apiBase, s.token)
	for _, chatID := range chatIDs {
		payload, err := json.Marshal(map[string]any{
			"chat_id":    chatID,
			"text":       text,
			"parse_mode": "HTML",
		})
		if err != nil {
			return fmt.Errorf("marshal message for chat %d: %w", chatID, err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request for chat %d: %w", chatID, err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("send to chat %d: %w", chatID, err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("telegram responded %s for chat %d", resp.Status, chatID)
		}
	}
	return nil
}
