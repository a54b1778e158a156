package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultWebhookTimeout = 30 * time.Second

// WebhookHandler доставляет сообщение run'а на внешний HTTP endpoint.
//
// Конфигурация берётся из Config.Extra воркера:
//   - url (string): endpoint (обязательно)
//   - method (string): HTTP-метод. Default: POST
//   - headers (map[string]any): дополнительные заголовки
//   - timeout_sec (number): таймаут запроса в секундах. Default: 30
//
// Тело запроса — JSON {run_id, agent_id, message, context}.
// HTTP >= 400 — ошибка вызова: run уйдёт в failed с телом ответа.
func WebhookHandler(ctx context.Context, req HandlerRequest) (*HandlerResult, error) {
	extra := req.Agent.Config.Extra

	url := extraString(extra, "url", "")
	if url == "" {
		return nil, fmt.Errorf("%w: webhook url is not configured", ErrWebhookRequest)
	}
	method := extraString(extra, "method", http.MethodPost)

	ctx, cancel := context.WithTimeout(ctx, extraTimeout(extra))
	defer cancel()

	payload, err := json.Marshal(map[string]any{
		"run_id":   req.RunID,
		"agent_id": req.Agent.ID,
		"message":  req.Message,
		"context":  req.Context,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal payload: %v", ErrWebhookRequest, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrWebhookRequest, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	setExtraHeaders(httpReq, extra)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWebhookRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrWebhookRequest, err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrWebhookRequest, resp.StatusCode, truncateBody(string(body), 200))
	}

	// Тело ответа: пробуем JSON, иначе отдаём строкой.
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		parsed = string(body)
	}

	return &HandlerResult{
		OutputText: fmt.Sprintf("Webhook delivered: HTTP %d", resp.StatusCode),
		Extra: map[string]any{
			"status_code": resp.StatusCode,
			"body":        parsed,
		},
	}, nil
}

func extraString(m map[string]any, key, defaultVal string) string {
	if val, ok := m[key]; ok {
		if s, ok := val.(string); ok && s != "" {
			return s
		}
	}
	return defaultVal
}

func extraTimeout(m map[string]any) time.Duration {
	if val, ok := m["timeout_sec"]; ok {
		switch v := val.(type) {
		case float64:
			if v > 0 {
				return time.Duration(v * float64(time.Second))
			}
		case int:
			if v > 0 {
				return time.Duration(v) * time.Second
			}
		}
	}
	return defaultWebhookTimeout
}

func setExtraHeaders(req *http.Request, m map[string]any) {
	headers, ok := m["headers"].(map[string]any)
	if !ok {
		return
	}
	for key, val := range headers {
		if s, ok := val.(string); ok {
			req.Header.Set(key, s)
		}
	}
}

func truncateBody(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
