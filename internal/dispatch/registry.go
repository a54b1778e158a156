package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// DefaultRegistry возвращает реестр со встроенными handler'ами.
//
// Встроенные handler'ы детерминированы и ничего не стоят:
//
//	noop            подтверждает получение, ничего не выполняя
//	context-report  рендерит накопленный контекст pipeline в markdown
//	webhook         доставляет сообщение на внешний HTTP endpoint
//
// Прикладные handler'ы регистрируются поверх через RegisterHandler.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	// Реестр пустой, конфликты невозможны.
	_ = r.RegisterHandler("noop", NoopHandler)
	_ = r.RegisterHandler("context-report", ContextReportHandler)
	_ = r.RegisterHandler("webhook", WebhookHandler)

	return r
}

// NoopHandler подтверждает получение сообщения. Используется как
// заглушка для воркеров, чей эффект происходит вне системы.
func NoopHandler(ctx context.Context, req HandlerRequest) (*HandlerResult, error) {
	return &HandlerResult{
		OutputText: "Acknowledged: " + req.Message,
	}, nil
}

// ContextReportHandler рендерит накопленный контекст pipeline как
// markdown-отчёт. Ключи сортируются для воспроизводимого вывода.
func ContextReportHandler(ctx context.Context, req HandlerRequest) (*HandlerResult, error) {
	if len(req.Context) == 0 {
		return &HandlerResult{OutputText: "No pipeline context collected."}, nil
	}

	keys := make([]string, 0, len(req.Context))
	for k := range req.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("# Pipeline Context Report\n\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", k, renderContextValue(req.Context[k]))
	}

	return &HandlerResult{
		OutputText: strings.TrimRight(b.String(), "\n"),
		Extra:      map[string]any{"content_markdown": b.String()},
	}, nil
}

func renderContextValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return "(empty)"
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
