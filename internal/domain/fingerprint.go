package domain

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"strconv"
)

// Fingerprint — 64-битный перцептивный хеш изображения.
type Fingerprint uint64

// Distance возвращает расстояние Хэмминга между отпечатками.
func Distance(a, b Fingerprint) int {
	return bits.OnesCount64(uint64(a ^ b))
}

// String возвращает отпечаток в виде 16 шестнадцатеричных символов.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// ParseFingerprint разбирает шестнадцатеричное представление.
func ParseFingerprint(s string) (Fingerprint, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректный отпечаток %q: %w", s, err)
	}
	return Fingerprint(v), nil
}

// MarshalJSON хранит отпечаток строкой, чтобы не терять старшие биты в JSON-числах.
func (f Fingerprint) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON читает строковое представление отпечатка.
func (f *Fingerprint) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseFingerprint(raw)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
