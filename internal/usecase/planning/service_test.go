package planning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-photo-moderator/internal/adapters/repo"
	"tg-photo-moderator/internal/domain"
	"tg-photo-moderator/internal/state"
)

type fingerprintStub map[string]domain.Fingerprint

func (f fingerprintStub) Fingerprint(_ context.Context, ref string) (domain.Fingerprint, error) {
	fp, ok := f[ref]
	if !ok {
		return 0, errors.New("нет изображения")
	}
	return fp, nil
}

var testNow = time.Date(2026, 5, 10, 7, 15, 0, 0, time.UTC)

func newTestService(t *testing.T, fps fingerprintStub) (*Service, *state.Store, *repo.Memory) {
	t.Helper()
	mem := repo.NewMemory()
	store := state.NewStore(mem, 5, zerolog.Nop())
	require.NoError(t, store.Load(context.Background()))
	svc := NewService(store, fps, time.UTC, zerolog.Nop())
	svc.SetClock(func() time.Time { return testNow })
	return svc, store, mem
}

func TestParseSlots(t *testing.T) {
	got := ParseSlots("8 9 10:30 99:70 14")
	assert.Equal(t, []domain.TimeSlot{{Hour: 8}, {Hour: 9}, {Hour: 10, Minute: 30}, {Hour: 14}}, got)

	assert.Empty(t, ParseSlots("завтра утром"))
	assert.Empty(t, ParseSlots("24 -1 7:60 +5"))
	assert.Equal(t, []domain.TimeSlot{{Hour: 0, Minute: 5}}, ParseSlots("00:05"))
}

func TestFireTimeRoundRobin(t *testing.T) {
	slots := []domain.TimeSlot{{Hour: 8}, {Hour: 20, Minute: 30}}
	cases := []struct {
		idx  int
		want time.Time
	}{
		{0, time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)},
		{1, time.Date(2026, 5, 10, 20, 30, 0, 0, time.UTC)},
		{2, time.Date(2026, 5, 11, 8, 0, 0, 0, time.UTC)},
		{5, time.Date(2026, 5, 12, 20, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		assert.True(t, tc.want.Equal(FireTime(testNow, time.UTC, slots, tc.idx)), "idx %d", tc.idx)
	}
}

func TestFireTimeUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	// 22:00 UTC по местному времени уже 11 мая.
	now := time.Date(2026, 5, 10, 22, 0, 0, 0, time.UTC)
	got := FireTime(now, loc, []domain.TimeSlot{{Hour: 9}}, 0)
	assert.True(t, time.Date(2026, 5, 11, 9, 0, 0, 0, loc).Equal(got))
}

func TestSetScheduleRequiresSession(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	_, err := svc.SetSchedule(context.Background(), 1, "8")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetScheduleKeepsSlotsOnInvalidInput(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()
	require.NoError(t, svc.Start(ctx, 1))

	_, err := svc.SetSchedule(ctx, 1, "8 12:15")
	require.NoError(t, err)
	_, err = svc.SetSchedule(ctx, 1, "abc 25")
	assert.ErrorIs(t, err, ErrNoValidSlots)

	sess, ok := svc.Status(1)
	require.True(t, ok)
	assert.Equal(t, []domain.TimeSlot{{Hour: 8}, {Hour: 12, Minute: 15}}, sess.Slots)
}

func TestStartPreservesExistingPlan(t *testing.T) {
	svc, _, _ := newTestService(t, fingerprintStub{"a": 1})
	ctx := context.Background()
	require.NoError(t, svc.Start(ctx, 1))
	_, err := svc.AddPhoto(ctx, 1, "a")
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx, 1))

	sess, ok := svc.Status(1)
	require.True(t, ok)
	assert.Len(t, sess.Photos, 1)
}

func TestAddPhotoProjectsFireTime(t *testing.T) {
	svc, store, _ := newTestService(t, fingerprintStub{"a": 0xFF, "b": 0xFF00FF00FF00})
	ctx := context.Background()
	require.NoError(t, svc.Start(ctx, 1))

	first, err := svc.AddPhoto(ctx, 1, "a")
	require.NoError(t, err)
	assert.False(t, first.HasFireAt)

	_, err = svc.SetSchedule(ctx, 1, "9")
	require.NoError(t, err)
	second, err := svc.AddPhoto(ctx, 1, "b")
	require.NoError(t, err)
	require.True(t, second.HasFireAt)
	assert.Equal(t, 1, second.Index)
	assert.True(t, time.Date(2026, 5, 11, 9, 0, 0, 0, time.UTC).Equal(second.FireAt))

	store.View(func(tb *state.Tables) {
		assert.True(t, tb.Index.Has(PlanID(1, first.Photo.ID)))
		assert.True(t, tb.Index.Has(PlanID(1, second.Photo.ID)))
	})
}

func TestAddPhotoFlagsDuplicate(t *testing.T) {
	svc, _, _ := newTestService(t, fingerprintStub{"a": 0xF0, "a-copy": 0xF1})
	ctx := context.Background()
	require.NoError(t, svc.Start(ctx, 1))

	first, err := svc.AddPhoto(ctx, 1, "a")
	require.NoError(t, err)
	assert.False(t, first.Photo.Duplicate)
	second, err := svc.AddPhoto(ctx, 1, "a-copy")
	require.NoError(t, err)
	assert.True(t, second.Photo.Duplicate)
}

func TestAddPhotoWithoutSession(t *testing.T) {
	svc, _, _ := newTestService(t, fingerprintStub{"a": 1})
	_, err := svc.AddPhoto(context.Background(), 1, "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRemovePhotoRemovesFingerprint(t *testing.T) {
	svc, store, _ := newTestService(t, fingerprintStub{"a": 1, "b": 0xFFFF0000})
	ctx := context.Background()
	require.NoError(t, svc.Start(ctx, 1))
	a, err := svc.AddPhoto(ctx, 1, "a")
	require.NoError(t, err)
	b, err := svc.AddPhoto(ctx, 1, "b")
	require.NoError(t, err)

	removed, err := svc.RemovePhoto(ctx, 1, 0, a.Photo.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", removed.SourceRef)

	store.View(func(tb *state.Tables) {
		assert.False(t, tb.Index.Has(PlanID(1, a.Photo.ID)))
		assert.True(t, tb.Index.Has(PlanID(1, b.Photo.ID)))
		assert.False(t, tb.Index.IsDuplicate(1), "отпечаток убранного фото больше не находится")
		assert.True(t, tb.Index.IsDuplicate(0xFFFF0000))
	})
	sess, _ := svc.Status(1)
	require.Len(t, sess.Photos, 1)
	assert.Equal(t, b.Photo.ID, sess.Photos[0].ID)
}

func TestRemovePhotoStaleControl(t *testing.T) {
	svc, _, _ := newTestService(t, fingerprintStub{"a": 1, "b": 0xFFFF0000})
	ctx := context.Background()
	require.NoError(t, svc.Start(ctx, 1))
	a, err := svc.AddPhoto(ctx, 1, "a")
	require.NoError(t, err)
	_, err = svc.AddPhoto(ctx, 1, "b")
	require.NoError(t, err)
	_, err = svc.RemovePhoto(ctx, 1, 0, a.Photo.ID)
	require.NoError(t, err)

	// Кнопка второго фото указывала на позицию 1, которой больше нет.
	_, err = svc.RemovePhoto(ctx, 1, 1, "whatever")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	// Та же кнопка первого фото: позиция 0 теперь занята другим фото.
	_, err = svc.RemovePhoto(ctx, 1, 0, a.Photo.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFinalizeDistributesRoundRobin(t *testing.T) {
	fps := fingerprintStub{}
	refs := []string{"p0", "p1", "p2", "p3", "p4"}
	for i, ref := range refs {
		fps[ref] = domain.Fingerprint(uint64(0xFF) << (i * 10))
	}
	svc, store, mem := newTestService(t, fps)
	ctx := context.Background()
	require.NoError(t, svc.Start(ctx, 1))
	_, err := svc.SetSchedule(ctx, 1, "8 12 18:45")
	require.NoError(t, err)
	for _, ref := range refs {
		_, err := svc.AddPhoto(ctx, 1, ref)
		require.NoError(t, err)
	}

	n, ok := svc.Finalize(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, 5, n)

	want := []time.Time{
		time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 5, 10, 18, 45, 0, 0, time.UTC),
		time.Date(2026, 5, 11, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 5, 11, 12, 0, 0, 0, time.UTC),
	}
	store.View(func(tb *state.Tables) {
		require.Len(t, tb.Scheduled, 5)
		for i, e := range tb.Scheduled {
			assert.Equal(t, refs[i], e.SourceRef)
			assert.True(t, want[i].Equal(e.FireAt), "entry %d: %s", i, e.FireAt)
			assert.Equal(t, int64(1), e.OwnerID)
		}
		_, exists := tb.Session(1)
		assert.False(t, exists)
	})

	snap, err := mem.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Scheduled, 5)
	assert.Empty(t, snap.Sessions)
}

func TestFinalizePreconditions(t *testing.T) {
	svc, _, _ := newTestService(t, fingerprintStub{"a": 1})
	ctx := context.Background()

	n, ok := svc.Finalize(ctx, 1)
	assert.False(t, ok)
	assert.Zero(t, n)

	require.NoError(t, svc.Start(ctx, 1))
	_, err := svc.AddPhoto(ctx, 1, "a")
	require.NoError(t, err)
	_, ok = svc.Finalize(ctx, 1)
	assert.False(t, ok, "без расписания план не финализируется")

	_, ok = svc.Status(1)
	assert.True(t, ok)
}
