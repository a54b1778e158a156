package engine

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// maxSummaryItems — сколько элементов массива попадает в сводку.
	maxSummaryItems = 10

	// maxSummaryText — длина текстового фолбэка сводки.
	maxSummaryText = 500
)

// codeFenceRe — JSON внутри markdown code fence.
var codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractSummary извлекает структурированную сводку из вывода воркера
// для передачи следующему шагу pipeline.
//
// Стратегии по порядку:
//  1. Вывод — JSON-объект: узнаваемые поля (leads, contacts,
//     content_markdown, email_body) сворачиваются в счётчики и
//     усечённые массивы; иначе объект возвращается целиком.
//  2. JSON внутри ```code fence```.
//  3. Просто текст — усечённый excerpt с полной длиной.
//
// Непарсящийся вывод — не ошибка: run с таким выводом всё равно completed.
func ExtractSummary(outputText string) map[string]any {
	if outputText == "" {
		return map[string]any{"text": ""}
	}

	if summary, ok := parseStructured(outputText); ok {
		return summary
	}

	if m := codeFenceRe.FindStringSubmatch(outputText); m != nil {
		if summary, ok := parseStructured(strings.TrimSpace(m[1])); ok {
			return summary
		}
	}

	return map[string]any{
		"text":        truncate(outputText, maxSummaryText),
		"full_length": len(outputText),
	}
}

// parseStructured пробует распарсить JSON-объект и свернуть известные поля.
func parseStructured(s string) (map[string]any, bool) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return nil, false
	}

	if leads, ok := parsed["leads"].([]any); ok {
		return map[string]any{
			"leads_count": len(leads),
			"leads":       headItems(leads),
		}, true
	}
	if contacts, ok := parsed["contacts"].([]any); ok {
		return map[string]any{
			"contacts_count": len(contacts),
			"contacts":       headItems(contacts),
		}, true
	}
	if _, ok := parsed["content_markdown"]; ok {
		return map[string]any{
			"title":       parsed["title"],
			"pillar":      parsed["pillar"],
			"has_content": true,
		}, true
	}
	if _, ok := parsed["email_body"]; ok {
		return map[string]any{
			"subject":   parsed["email_subject"],
			"has_email": true,
		}, true
	}

	return parsed, true
}

// MergeStepOutput добавляет сводку шага в накопленный контекст под
// позиционным ключом step_<index>_output и ключом, производным от
// имени воркера (дефисы заменяются подчёркиваниями).
func MergeStepOutput(context map[string]any, stepIndex int, agentID string, summary map[string]any) map[string]any {
	merged := make(map[string]any, len(context)+2)
	for k, v := range context {
		merged[k] = v
	}

	merged[positionalKey(stepIndex)] = summary
	merged[workerKey(agentID)] = summary
	return merged
}

func positionalKey(stepIndex int) string {
	return "step_" + strconv.Itoa(stepIndex) + "_output"
}

func workerKey(agentID string) string {
	return strings.ReplaceAll(agentID, "-", "_") + "_output"
}

func headItems(items []any) []any {
	if len(items) <= maxSummaryItems {
		return items
	}
	return items[:maxSummaryItems]
}

// truncate режет строку не длиннее maxLen байт по границе руны,
// чтобы не оставить в summary битый UTF-8.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
