package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-photo-moderator/internal/domain"
)

func TestWriteStats(t *testing.T) {
	var buf bytes.Buffer
	writeStats(&buf, domain.Snapshot{
		Hashes:    make([]domain.ContentRecord, 3),
		Scheduled: []domain.ScheduledEntry{{ID: "a"}, {ID: "b", Attempts: 2}},
		Sessions:  []domain.PlanningSession{{OwnerID: 1, Active: true}, {OwnerID: 2}},
	})
	out := buf.String()
	assert.Contains(t, out, "hashes:    3")
	assert.Contains(t, out, "scheduled: 2 (с ошибками: 1)")
	assert.Contains(t, out, "sessions:  2 (активных: 1)")
}

func TestWriteScheduledSortsByFireTime(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	require.NoError(t, writeScheduled(&buf, []domain.ScheduledEntry{
		{ID: "late", FireAt: base.Add(2 * time.Hour)},
		{ID: "early", FireAt: base},
	}, time.UTC))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "early")
	assert.Contains(t, lines[2], "late")
}
