package domain

import (
	"context"
	"errors"
)

// ErrNotFound возвращается, если ключ, индекс или сессия отсутствуют.
var ErrNotFound = errors.New("не найдено")

// Button — кнопка под сообщением; Data приходит обратно в callback.
type Button struct {
	Text string
	Data string
}

// Controls — inline-клавиатура, строки кнопок.
type Controls struct {
	Rows [][]Button
}

// Messenger — исходящая часть транспорта.
type Messenger interface {
	SendPhoto(ctx context.Context, chatID int64, ref, caption string, controls *Controls) (int, error)
	SendText(ctx context.Context, chatID int64, text string, controls *Controls) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	Answer(ctx context.Context, callbackID, text string) error
}

// ImageSource выгружает исходные байты изображения по непрозрачной ссылке.
type ImageSource interface {
	Download(ctx context.Context, ref string) ([]byte, error)
}

// Hasher вычисляет перцептивный отпечаток по байтам изображения.
type Hasher interface {
	Hash(data []byte) (Fingerprint, error)
}

// Fingerprinter строит отпечаток по ссылке на изображение.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, ref string) (Fingerprint, error)
}

// Archiver сохраняет копию одобренного изображения.
type Archiver interface {
	Archive(ctx context.Context, key, ref string) error
}

// StateRepo — долговременное хранилище состояния.
// Load для отсутствующих данных возвращает пустые таблицы без ошибки.
// Save перезаписывает таблицы целиком.
type StateRepo interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snapshot Snapshot) error
}
