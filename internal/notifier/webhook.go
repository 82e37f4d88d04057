package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// WebhookSender posts each alert as a JSON object:
//
//	{"job":"backup","kind":"failed","error":"...","at":"...","text":"job backup failed: ..."}
type WebhookSender struct {
	URL     string
	Headers map[string]string
	Client  *http.Client
}

type webhookBody struct {
	Alert
	Text string `json:"text"`
}

func (w *WebhookSender) Send(ctx context.Context, a Alert) error {
	body, err := json.Marshal(webhookBody{Alert: a, Text: a.Text()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}
	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
