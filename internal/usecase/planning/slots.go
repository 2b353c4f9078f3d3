package planning

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"tg-photo-moderator/internal/domain"
)

var slotRegex = regexp.MustCompile(`^(\d{1,2})(?::(\d{1,2}))?$`)

// ParseSlots разбирает строку вида "8 9 10:30". Некорректные токены пропускаются.
func ParseSlots(text string) []domain.TimeSlot {
	var out []domain.TimeSlot
	for _, token := range strings.Fields(text) {
		m := slotRegex.FindStringSubmatch(token)
		if m == nil {
			continue
		}
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		slot := domain.TimeSlot{Hour: hour, Minute: minute}
		if !slot.Valid() {
			continue
		}
		out = append(out, slot)
	}
	return out
}

// FireTime возвращает время публикации фото с порядковым номером idx:
// день idx/len(slots) от сегодняшнего, слот idx%len(slots), в часовом поясе loc.
func FireTime(now time.Time, loc *time.Location, slots []domain.TimeSlot, idx int) time.Time {
	local := now.In(loc)
	day := idx / len(slots)
	slot := slots[idx%len(slots)]
	return time.Date(local.Year(), local.Month(), local.Day()+day, slot.Hour, slot.Minute, 0, 0, loc)
}

// FormatSlots выводит слоты как "08:00, 10:30".
func FormatSlots(slots []domain.TimeSlot) string {
	parts := make([]string, 0, len(slots))
	for _, s := range slots {
		parts = append(parts, formatSlot(s))
	}
	return strings.Join(parts, ", ")
}

func formatSlot(s domain.TimeSlot) string {
	return time.Date(0, 1, 1, s.Hour, s.Minute, 0, 0, time.UTC).Format("15:04")
}
