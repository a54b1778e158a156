package bridge

import (
	"encoding/json"
	"strings"
)

// NoTextOutput — sentinel-текст для вывода без распознаваемого текста.
// Downstream-потребители никогда не видят пустую строку или nil.
const NoTextOutput = "(agent produced no text output)"

// Output — разобранный результат вызова агента.
type Output struct {
	// Text — извлечённый текст. Никогда не пустой.
	Text string

	// CostUSD — стоимость вызова из usage-метаданных.
	CostUSD float64

	// TokensUsed — потраченные токены из usage-метаданных.
	TokensUsed int
}

// rawOutput — верхнеуровневая структура JSON-вывода агент-процесса.
type rawOutput struct {
	Type     string       `json:"type,omitempty"`
	Result   string       `json:"result,omitempty"`
	Payloads []rawPayload `json:"payloads,omitempty"`
	Usage    *rawUsage    `json:"usage,omitempty"`
	Meta     *rawMeta     `json:"meta,omitempty"`

	TotalCostUSD float64 `json:"total_cost_usd,omitempty"`
}

type rawPayload struct {
	Text    string          `json:"text,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

type rawUsage struct {
	TotalCostUSD             float64 `json:"total_cost_usd,omitempty"`
	InputTokens              int     `json:"input_tokens,omitempty"`
	OutputTokens             int     `json:"output_tokens,omitempty"`
	CacheReadInputTokens     int     `json:"cache_read_input_tokens,omitempty"`
	CacheCreationInputTokens int     `json:"cache_creation_input_tokens,omitempty"`
}

type rawMeta struct {
	DurationMs int64 `json:"durationMs,omitempty"`
	AgentMeta  *struct {
		Usage struct {
			Total  int `json:"total,omitempty"`
			Input  int `json:"input,omitempty"`
			Output int `json:"output,omitempty"`
		} `json:"usage"`
	} `json:"agentMeta,omitempty"`
}

// Legacy-тарифы для вывода без total_cost_usd (цена за токен).
const (
	legacyInputTokenUSD  = 0.00000015
	legacyOutputTokenUSD = 0.0000006
)

// ParseOutput разбирает сырой вывод агент-процесса.
//
// Стратегии по порядку:
//  1. Структурированный payload-массив — выигрывает первая запись с
//     непустым text.
//  2. Tool-call-only вывод: свободного текста нет, но в content
//     payload'а есть узнаваемый структурный маркер — сырой content
//     возвращается как текст.
//  3. Непарсящийся или пустой вывод — синтезируется sentinel.
//
// Дополнительно извлекаются cost/tokens из usage-метаданных (текущий
// и legacy формат). Ноль — легитимное значение.
func ParseOutput(raw string) Output {
	out := Output{Text: NoTextOutput}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return out
	}

	var parsed rawOutput
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		// Не JSON, но текст есть — возвращаем как есть.
		out.Text = trimmed
		return out
	}

	out.CostUSD, out.TokensUsed = extractUsage(&parsed)

	// Формат {"type":"result","result":"..."} от special handler'ов.
	if parsed.Result != "" {
		out.Text = parsed.Result
		return out
	}

	// Стратегия 1: первый payload с непустым text.
	for _, p := range parsed.Payloads {
		if strings.TrimSpace(p.Text) != "" {
			out.Text = p.Text
			return out
		}
	}

	// Стратегия 2: tool-call-only — content со структурным маркером.
	for _, p := range parsed.Payloads {
		if content := strings.TrimSpace(string(p.Content)); isStructuredContent(content) {
			out.Text = content
			return out
		}
	}

	// Стратегия 3: sentinel уже установлен.
	return out
}

// isStructuredContent проверяет, выглядит ли content как структурный
// tool-call маркер (JSON-объект или массив с полем type).
func isStructuredContent(content string) bool {
	if content == "" || content == "null" {
		return false
	}
	if !strings.HasPrefix(content, "{") && !strings.HasPrefix(content, "[") {
		return false
	}
	return strings.Contains(content, `"type"`)
}

// extractUsage достаёт cost/tokens из текущего или legacy формата.
func extractUsage(parsed *rawOutput) (costUSD float64, tokens int) {
	if parsed.Usage != nil {
		u := parsed.Usage
		return u.TotalCostUSD, u.InputTokens + u.OutputTokens +
			u.CacheReadInputTokens + u.CacheCreationInputTokens
	}

	if parsed.TotalCostUSD != 0 {
		costUSD = parsed.TotalCostUSD
	}

	if parsed.Meta != nil && parsed.Meta.AgentMeta != nil {
		u := parsed.Meta.AgentMeta.Usage
		tokens = u.Total
		if costUSD == 0 {
			costUSD = float64(u.Input)*legacyInputTokenUSD + float64(u.Output)*legacyOutputTokenUSD
		}
	}

	return costUSD, tokens
}
