// Package similarity хранит отпечатки просмотренного контента и отвечает на вопрос,
// встречалось ли похожее изображение раньше.
//
// Поиск — линейный проход по всем записям. Для ожидаемых объёмов (сотни — единицы тысяч
// записей) этого достаточно; бакетирование по частям хеша можно добавить без изменения контракта.
// Index не синхронизирован: доступ сериализует state.Store.
package similarity

import (
	"sort"

	"tg-photo-moderator/internal/domain"
)

// DefaultThreshold — максимальное расстояние Хэмминга, при котором фото считаются похожими.
const DefaultThreshold = 5

// Index — множество отпечатков с идентификаторами.
type Index struct {
	threshold int
	records   map[string]domain.Fingerprint
}

// NewIndex создаёт пустой индекс с заданным порогом.
func NewIndex(threshold int) *Index {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	return &Index{threshold: threshold, records: make(map[string]domain.Fingerprint)}
}

// Threshold возвращает порог похожести.
func (i *Index) Threshold() int {
	return i.threshold
}

// Add сохраняет отпечаток; повторное добавление того же id заменяет отпечаток.
func (i *Index) Add(id string, fp domain.Fingerprint) {
	i.records[id] = fp
}

// Remove удаляет запись по id.
func (i *Index) Remove(id string) {
	delete(i.records, id)
}

// Has сообщает, занят ли id.
func (i *Index) Has(id string) bool {
	_, ok := i.records[id]
	return ok
}

// IsDuplicate возвращает true, если в индексе есть отпечаток на расстоянии не больше порога.
func (i *Index) IsDuplicate(fp domain.Fingerprint) bool {
	_, ok := i.Match(fp)
	return ok
}

// Match возвращает ближайшую запись в пределах порога.
func (i *Index) Match(fp domain.Fingerprint) (domain.ContentRecord, bool) {
	var (
		best     domain.ContentRecord
		bestDist = i.threshold + 1
	)
	for id, stored := range i.records {
		d := domain.Distance(fp, stored)
		if d > i.threshold {
			continue
		}
		if d < bestDist || (d == bestDist && id < best.ID) {
			best = domain.ContentRecord{ID: id, Fingerprint: stored}
			bestDist = d
		}
	}
	return best, bestDist <= i.threshold
}

// Len возвращает количество записей.
func (i *Index) Len() int {
	return len(i.records)
}

// Records возвращает записи, отсортированные по id.
func (i *Index) Records() []domain.ContentRecord {
	out := make([]domain.ContentRecord, 0, len(i.records))
	for id, fp := range i.records {
		out = append(out, domain.ContentRecord{ID: id, Fingerprint: fp})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// Restore заменяет содержимое индекса.
func (i *Index) Restore(records []domain.ContentRecord) {
	i.records = make(map[string]domain.Fingerprint, len(records))
	for _, rec := range records {
		i.records[rec.ID] = rec.Fingerprint
	}
}
