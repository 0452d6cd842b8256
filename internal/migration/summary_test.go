package migration

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummary_Counters(t *testing.T) {
	s := NewSummary(false)
	s.Record("users", OutcomeImported)
	s.Record("users", OutcomeImported)
	s.Record("users", OutcomeUpdated)
	s.Record("users", OutcomeSkipped)
	s.RecordError("users", "email=x@example.com", errors.New("bad row"))
	s.Demote("users", OutcomeImported, "email=y@example.com", errors.New("unknown permissions"))

	users, ok := s.Stats("users")
	require.True(t, ok)
	assert.Equal(t, 1, users.Imported)
	assert.Equal(t, 1, users.Updated)
	assert.Equal(t, 1, users.Skipped)
	assert.Equal(t, 2, users.Errored)
	assert.Equal(t, 5, users.Processed())
	assert.Equal(t, 2, users.Succeeded())
	assert.Equal(t, []string{"email=x@example.com: bad row", "email=y@example.com: unknown permissions"}, users.Errors)
	assert.True(t, s.HasErrors())
}

func TestSummary_KeepsKindOrder(t *testing.T) {
	s := NewSummary(true)
	s.Kind("permissions")
	s.Kind("users")
	s.Kind("permissions")

	require.Len(t, s.Kinds, 2)
	assert.Equal(t, "permissions", s.Kinds[0].Kind)
	assert.Equal(t, "users", s.Kinds[1].Kind)
	assert.True(t, s.Kinds[1].DryRun)

	_, ok := s.Stats("documents")
	assert.False(t, ok)
	assert.Len(t, s.Kinds, 2)
}

func TestSummary_AbortAndTotals(t *testing.T) {
	s := NewSummary(false)
	s.Kind("permissions").Total = 3
	s.Record("permissions", OutcomeImported)
	s.Kind("documents").Total = 2
	s.Abort("documents", errors.New("connection reset"))
	assert.True(t, s.HasErrors())

	totals := s.Totals()
	assert.Equal(t, Totals{Kinds: 2, Total: 5, Imported: 1, Aborted: 1}, totals)

	docs, _ := s.Stats("documents")
	assert.Equal(t, "connection reset", docs.Error)
}

func TestSummary_ErrorListIsCapped(t *testing.T) {
	s := NewSummary(false)
	for i := 0; i < maxRecordedErrors+5; i++ {
		s.RecordError("documents", fmt.Sprintf("storage_key=doc-%d", i), errors.New("boom"))
	}
	docs, _ := s.Stats("documents")
	assert.Equal(t, maxRecordedErrors+5, docs.Errored)
	assert.Len(t, docs.Errors, maxRecordedErrors)
}

func TestSummary_CleanRun(t *testing.T) {
	s := NewSummary(false)
	s.Record("users", OutcomeUpdated)
	s.Warn("snapshot kind %q is not in the catalog", "widgets")
	s.Finish()

	assert.False(t, s.HasErrors())
	assert.Equal(t, []string{`snapshot kind "widgets" is not in the catalog`}, s.Warnings)
	assert.GreaterOrEqual(t, int64(s.Duration), int64(0))
}
