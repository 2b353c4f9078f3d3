package domain

import "time"

// ContentRecord связывает идентификатор контента с его отпечатком.
type ContentRecord struct {
	ID          string      `json:"id"`
	Fingerprint Fingerprint `json:"fingerprint"`
}

// Notification хранит сообщения, отправленные администратору на проверку.
type Notification struct {
	PhotoMessageID    int `json:"photo_message_id"`
	ControlsMessageID int `json:"controls_message_id"`
}

// PendingSubmission описывает фото, ожидающее решения администратора.
type PendingSubmission struct {
	Key             string       `json:"key"`
	SourceRef       string       `json:"source_ref"`
	OriginChatID    int64        `json:"origin_chat_id"`
	OriginMessageID int          `json:"origin_message_id"`
	Author          string       `json:"author,omitempty"`
	Notification    Notification `json:"notification"`
	Fingerprint     Fingerprint  `json:"fingerprint"`
	Duplicate       bool         `json:"duplicate,omitempty"`
	SubmittedAt     time.Time    `json:"submitted_at"`
}

// Submission — фото, пришедшее в модерируемую группу.
type Submission struct {
	SourceRef       string
	OriginChatID    int64
	OriginMessageID int
	Author          string
}

// DecisionAction — решение администратора.
type DecisionAction string

const (
	// DecisionApprove публикует фото в канал.
	DecisionApprove DecisionAction = "approve"
	// DecisionReject отклоняет фото.
	DecisionReject DecisionAction = "reject"
)

// TimeSlot — время суток публикации.
type TimeSlot struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// Valid проверяет диапазоны часов и минут.
func (s TimeSlot) Valid() bool {
	return s.Hour >= 0 && s.Hour < 24 && s.Minute >= 0 && s.Minute < 60
}

// PlannedPhoto — фото в плане публикаций.
type PlannedPhoto struct {
	ID          string      `json:"id"`
	SourceRef   string      `json:"source_ref"`
	Fingerprint Fingerprint `json:"fingerprint"`
	Duplicate   bool        `json:"duplicate,omitempty"`
}

// PlanningSession накапливает фото и расписание пользователя до финализации.
type PlanningSession struct {
	OwnerID   int64          `json:"owner_id"`
	Active    bool           `json:"active"`
	Photos    []PlannedPhoto `json:"photos"`
	Slots     []TimeSlot     `json:"time_slots"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Clone возвращает копию сессии, не разделяющую срезы с оригиналом.
func (s PlanningSession) Clone() PlanningSession {
	clone := s
	clone.Photos = append([]PlannedPhoto(nil), s.Photos...)
	clone.Slots = append([]TimeSlot(nil), s.Slots...)
	return clone
}

// ScheduledEntry — одно фото, привязанное к конкретному времени публикации.
type ScheduledEntry struct {
	ID        string    `json:"id"`
	SourceRef string    `json:"source_ref"`
	FireAt    time.Time `json:"fire_at"`
	OwnerID   int64     `json:"owner_id"`
	Attempts  int       `json:"attempts,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Snapshot — сериализуемое состояние процесса: четыре независимые таблицы.
type Snapshot struct {
	Hashes    []ContentRecord     `json:"hashes"`
	Pending   []PendingSubmission `json:"pending"`
	Scheduled []ScheduledEntry    `json:"scheduled"`
	Sessions  []PlanningSession   `json:"sessions"`
}
