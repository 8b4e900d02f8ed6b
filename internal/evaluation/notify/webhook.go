package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// ErrNon2xx is returned when the webhook answers with a non-2xx status.
var ErrNon2xx = errors.New("webhook notifier: non-2xx")

// WebhookNotifier posts search summaries to a chat webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// NewWebhookNotifier constructs a notifier. A zero timeout defaults to 10s.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify sends a search summary to the webhook.
func (n *WebhookNotifier) Notify(ctx context.Context, msg SearchMessage) error {
	if n == nil || n.url == "" {
		return errors.New("webhook notifier: empty url")
	}
	payload := webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: formatSearchMessage(msg)},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d", ErrNon2xx, resp.StatusCode)
	}
	return nil
}

func formatSearchMessage(msg SearchMessage) string {
	var b strings.Builder
	b.WriteString("[Fall Detection Search]\n")
	fmt.Fprintf(&b, "Run: %s\n", msg.RunID)
	if msg.Status != "" {
		fmt.Fprintf(&b, "Status: %s\n", msg.Status)
	}
	if msg.CorpusRoot != "" {
		fmt.Fprintf(&b, "Corpus: %s (%d recordings)\n", msg.CorpusRoot, msg.CorpusSize)
	}
	if msg.Cells > 0 {
		fmt.Fprintf(&b, "Cells: %d\n", msg.Cells)
	}
	if len(msg.Best) > 0 {
		keys := make([]string, 0, len(msg.Best))
		for k := range msg.Best {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "Best %s: %.4f\n", k, msg.Best[k])
		}
	}
	if msg.ReportURL != "" {
		fmt.Fprintf(&b, "Report URL: %s\n", msg.ReportURL)
	}
	if msg.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", msg.Error)
	}
	return strings.TrimSpace(b.String())
}
