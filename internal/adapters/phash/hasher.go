// Package phash строит перцептивные отпечатки изображений.
package phash

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/webp"

	"tg-photo-moderator/internal/domain"
)

// ErrEmptyImage возвращается для пустых данных.
var ErrEmptyImage = errors.New("пустое изображение")

// Hasher считает pHash (DCT 32x32 -> 64 бита).
type Hasher struct{}

var _ domain.Hasher = Hasher{}

// NewHasher создаёт хешер.
func NewHasher() Hasher {
	return Hasher{}
}

// Hash декодирует изображение и возвращает его отпечаток.
func (Hasher) Hash(data []byte) (domain.Fingerprint, error) {
	if len(data) == 0 {
		return 0, ErrEmptyImage
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("декодирование изображения: %w", err)
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, fmt.Errorf("phash %s: %w", format, err)
	}
	return domain.Fingerprint(hash.GetHash()), nil
}
