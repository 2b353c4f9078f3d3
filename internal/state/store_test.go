package state

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
)

// recordingRepo считает сохранения и умеет имитировать сбой хранилища.
type recordingRepo struct {
	*repo.Memory
	saves int
	fail  error
}

func newRecordingRepo() *recordingRepo {
	return &recordingRepo{Memory: repo.NewMemory()}
}

func (r *recordingRepo) Save(ctx context.Context, snap domain.Snapshot) error {
	if r.fail != nil {
		return r.fail
	}
	r.saves++
	return r.Memory.Save(ctx, snap)
}

func TestReloadFromFileReproducesState(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	store := NewStore(repo.NewFile(dir), 5, zerolog.Nop())
	require.NoError(t, store.Load(ctx))
	require.NoError(t, store.Update(ctx, func(t *Tables) (bool, error) {
		t.Index.Add("k1", 0xABCDEF0123456789)
		t.Pending["k2"] = domain.PendingSubmission{Key: "k2", SourceRef: "f2", Fingerprint: 2, SubmittedAt: at}
		t.Scheduled = append(t.Scheduled, domain.ScheduledEntry{ID: "s1", SourceRef: "f3", FireAt: at, OwnerID: 9})
		t.Sessions[9] = &domain.PlanningSession{OwnerID: 9, Active: true, Slots: []domain.TimeSlot{{Hour: 8}}}
		return true, nil
	}))

	reloaded := NewStore(repo.NewFile(dir), 5, zerolog.Nop())
	require.NoError(t, reloaded.Load(ctx))
	reloaded.View(func(tb *Tables) {
		assert.True(t, tb.Index.Has("k1"))
		assert.True(t, tb.Index.IsDuplicate(0xABCDEF0123456789))
		assert.Equal(t, "f2", tb.Pending["k2"].SourceRef)
		require.Len(t, tb.Scheduled, 1)
		assert.True(t, at.Equal(tb.Scheduled[0].FireAt))
		sess, ok := tb.Session(9)
		require.True(t, ok)
		assert.Equal(t, []domain.TimeSlot{{Hour: 8}}, sess.Slots)
		assert.True(t, tb.KeyTaken("k1"))
		assert.True(t, tb.KeyTaken("k2"))
		assert.False(t, tb.KeyTaken("k3"))
	})
}

func TestUpdateSavesOnlyOnChange(t *testing.T) {
	mem := newRecordingRepo()
	store := NewStore(mem, 5, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, func(*Tables) (bool, error) { return false, nil }))
	assert.Equal(t, 0, mem.saves)

	errBoom := errors.New("boom")
	err := store.Update(ctx, func(*Tables) (bool, error) { return false, errBoom })
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 0, mem.saves)

	require.NoError(t, store.Update(ctx, func(t *Tables) (bool, error) {
		t.Index.Add("a", 1)
		return true, nil
	}))
	assert.Equal(t, 1, mem.saves)
}

func TestSaveFailureKeepsMemoryState(t *testing.T) {
	mem := newRecordingRepo()
	mem.fail = errors.New("disk full")
	store := NewStore(mem, 5, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, func(t *Tables) (bool, error) {
		t.Index.Add("a", 1)
		return true, nil
	}))
	store.View(func(tb *Tables) { assert.True(t, tb.Index.Has("a")) })

	mem.fail = nil
	require.NoError(t, store.Update(ctx, func(*Tables) (bool, error) { return true, nil }))
	snap, err := mem.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Hashes, 1)
}

func TestSnapshotOrdersPending(t *testing.T) {
	store := NewStore(repo.NewMemory(), 5, zerolog.Nop())
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Update(context.Background(), func(t *Tables) (bool, error) {
		t.Pending["b"] = domain.PendingSubmission{Key: "b", SubmittedAt: at}
		t.Pending["a"] = domain.PendingSubmission{Key: "a", SubmittedAt: at}
		t.Pending["c"] = domain.PendingSubmission{Key: "c", SubmittedAt: at.Add(-time.Minute)}
		return false, nil
	}))
	snap := store.Snapshot()
	keys := []string{snap.Pending[0].Key, snap.Pending[1].Key, snap.Pending[2].Key}
	assert.Equal(t, []string{"c", "a", "b"}, keys)
}
