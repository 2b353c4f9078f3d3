package domain

import (
	"encoding/json"
	"testing"
)

func TestDistanceProperties(t *testing.T) {
	values := []Fingerprint{0, 1, 0xFFFFFFFFFFFFFFFF, 0x8000000000000001, 0x0F0F0F0F0F0F0F0F}
	for _, a := range values {
		if d := Distance(a, a); d != 0 {
			t.Fatalf("Distance(%s, %s) = %d, want 0", a, a, d)
		}
		for _, b := range values {
			if Distance(a, b) != Distance(b, a) {
				t.Fatalf("расстояние несимметрично для %s и %s", a, b)
			}
		}
	}
	if d := Distance(0, 0xFFFFFFFFFFFFFFFF); d != 64 {
		t.Fatalf("ожидали 64, получили %d", d)
	}
	if d := Distance(0b1011, 0b0001); d != 2 {
		t.Fatalf("ожидали 2, получили %d", d)
	}
}

func TestFingerprintJSONKeepsHighBits(t *testing.T) {
	rec := ContentRecord{ID: "k", Fingerprint: 0xFFFFFFFFFFFFFFFE}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if string(data) != `{"id":"k","fingerprint":"fffffffffffffffe"}` {
		t.Fatalf("неожиданный JSON: %s", data)
	}
	var back ContentRecord
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if back != rec {
		t.Fatalf("ожидали %+v, получили %+v", rec, back)
	}
}

func TestTimeSlotValid(t *testing.T) {
	cases := map[TimeSlot]bool{
		{Hour: 0, Minute: 0}:   true,
		{Hour: 23, Minute: 59}: true,
		{Hour: 24, Minute: 0}:  false,
		{Hour: 10, Minute: 60}: false,
		{Hour: -1, Minute: 5}:  false,
	}
	for slot, want := range cases {
		if got := slot.Valid(); got != want {
			t.Fatalf("%+v: ожидали %v, получили %v", slot, want, got)
		}
	}
}
