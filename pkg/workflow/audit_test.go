package workflow

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wicaksono/opsagent/pkg/action"
)

func sampleRecord(outcome Status) AuditRecord {
	return AuditRecord{
		ID:        uuid.NewString(),
		RequestID: uuid.NewString(),
		Action:    "restart_service",
		Arguments: map[string]interface{}{"service": "nginx"},
		Risk:      action.RiskDestructive,
		Outcome:   outcome,
		Actor:     "admin",
		Timestamp: time.Now(),
	}
}

func TestMemoryAuditStore_AppendAndList(t *testing.T) {
	store := NewMemoryAuditStore()
	ctx := context.Background()

	first := sampleRecord(StatusExecuted)
	second := sampleRecord(StatusRejected)

	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))

	records, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first
	assert.Equal(t, second.ID, records[0].ID)
	assert.Equal(t, first.ID, records[1].ID)

	limited, err := store.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, second.ID, limited[0].ID)
}

func TestSQLiteAuditStore_AppendAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	store, err := NewSQLiteAuditStore(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	record := sampleRecord(StatusExecuted)
	require.NoError(t, store.Append(ctx, record))

	records, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, record.RequestID, got.RequestID)
	assert.Equal(t, "restart_service", got.Action)
	assert.Equal(t, map[string]interface{}{"service": "nginx"}, got.Arguments)
	assert.Equal(t, action.RiskDestructive, got.Risk)
	assert.Equal(t, StatusExecuted, got.Outcome)
	assert.Equal(t, "admin", got.Actor)
}

func TestStatusTransitionTable(t *testing.T) {
	assert.True(t, canTransition(StatusProposed, StatusConfirmed))
	assert.True(t, canTransition(StatusProposed, StatusRejected))
	assert.True(t, canTransition(StatusProposed, StatusExpired))
	assert.True(t, canTransition(StatusConfirmed, StatusExecuted))
	assert.True(t, canTransition(StatusConfirmed, StatusFailed))

	// No resurrecting a terminal state
	for _, terminal := range []Status{StatusRejected, StatusExecuted, StatusFailed, StatusExpired} {
		assert.True(t, terminal.IsTerminal())
		for _, next := range []Status{StatusProposed, StatusConfirmed, StatusExecuted, StatusFailed} {
			assert.False(t, canTransition(terminal, next))
		}
	}

	assert.False(t, canTransition(StatusProposed, StatusExecuted), "execution requires confirmation")
	assert.False(t, StatusProposed.IsTerminal())
	assert.False(t, StatusConfirmed.IsTerminal())
}
