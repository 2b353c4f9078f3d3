package telegram

import "strings"

const (
	messageLimit = 4096
	captionLimit = 1024
)

// SplitMessage режет текст на части не длиннее лимита сообщения Telegram.
func SplitMessage(text string) []string {
	return split(text, messageLimit)
}

// TruncateCaption обрезает подпись к фото до лимита Telegram.
func TruncateCaption(caption string) string {
	runes := []rune(caption)
	if len(runes) <= captionLimit {
		return caption
	}
	return string(runes[:captionLimit-1]) + "…"
}

// split предпочитает границы строк, чтобы не рвать абзацы.
func split(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	runes := []rune(trimmed)
	if len(runes) <= limit {
		return []string{trimmed}
	}

	var parts []string
	for start := 0; start < len(runes); {
		end := min(start+limit, len(runes))
		cut := end
		if end < len(runes) {
			if nl := lastNewline(runes[start:end]); nl > 0 {
				cut = start + nl
			}
		}
		if chunk := strings.Trim(string(runes[start:cut]), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}
		start = cut
		for start < len(runes) && runes[start] == '\n' {
			start++
		}
	}
	return parts
}

// lastNewline возвращает позицию сразу после последнего перевода строки или 0.
func lastNewline(runes []rune) int {
	for i := len(runes); i > 0; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	return 0
}
