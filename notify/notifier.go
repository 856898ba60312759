package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"staywatch/metrics"
	"staywatch/models"
)

var ErrNoCredential = errors.New("user has no valid messaging credential")

// Notifier pushes availability messages to the user's linked messaging
// account. Send failures are reported back as errors and never escalate
// beyond the check that triggered them.
type Notifier struct {
	apiBase    string
	httpClient *http.Client
}

func New(apiBase string) *Notifier {
	return &Notifier{
		apiBase:    apiBase,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// NewWithClient injects the HTTP client, for tests.
func NewWithClient(apiBase string, client *http.Client) *Notifier {
	return &Notifier{apiBase: apiBase, httpClient: client}
}

type pushMessage struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NotifyAvailable pushes one message telling the user their watched
// listing opened up.
func (n *Notifier) NotifyAvailable(ctx context.Context, user *models.User, acc *models.Accommodation, price *string) error {
	if !user.Credential.Valid() {
		metrics.NotificationsTotal.WithLabelValues("skipped").Inc()
		return ErrNoCredential
	}

	text := fmt.Sprintf("Your watched stay is now available!\n%s\n%s → %s",
		acc.URL, acc.CheckIn.Format("2006-01-02"), acc.CheckOut.Format("2006-01-02"))
	if price != nil {
		text += fmt.Sprintf("\nPrice: %s", *price)
	}

	body, err := json.Marshal(pushMessage{
		To:       user.Credential.ProviderID,
		Messages: []textMessage{{Type: "text", Text: text}},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiBase+"/v2/bot/message/push", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+user.Credential.AccessToken)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("push message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("push message: status %d: %s", resp.StatusCode, raw)
	}

	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	return nil
}
