package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// placeholderRe — плейсхолдер вида {{key}} (только словесные символы).
var placeholderRe = regexp.MustCompile(`\{\{(\w+)\}\}`)

// RenderMessage подставляет значения из контекста в шаблон сообщения.
//
// Значения-строки подставляются как есть, остальные сериализуются в
// JSON. Неразрешённые плейсхолдеры остаются в тексте дословно — никогда
// не выбрасываются молча, чтобы ошибку конфигурации было видно в run'е.
func RenderMessage(tmpl string, context map[string]any) string {
	if tmpl == "" || len(context) == 0 {
		return tmpl
	}

	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		val, ok := context[key]
		if !ok {
			return m
		}
		return stringify(val)
	})
}

// StepMessage строит сообщение шага: рендерит шаблон, а при его
// отсутствии передаёт контекст как JSON либо стандартную инструкцию.
func StepMessage(tmpl string, stepIndex int, context map[string]any) string {
	msg := RenderMessage(tmpl, context)
	if msg != "" {
		return msg
	}

	if len(context) > 0 {
		b, err := json.Marshal(map[string]any{"pipeline_context": context})
		if err == nil {
			return string(b)
		}
	}

	return fmt.Sprintf("Pipeline step %d: execute your standard workflow.", stepIndex+1)
}

// stringify приводит значение контекста к строке для подстановки.
func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
