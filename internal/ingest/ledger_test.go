package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_SkipsUnchangedFiles(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	p, idx := newPipeline(t, provider)

	ledgerPath := filepath.Join(t.TempDir(), "ingested.json")
	ledger, err := OpenLedger(ledgerPath)
	require.NoError(t, err)
	p.SetLedger(ledger)

	dir := t.TempDir()
	path := filepath.Join(dir, "policy.txt")
	require.NoError(t, os.WriteFile(path, []byte("Forklift license required."), 0o644))

	results, err := p.IngestDirectory(ctx, dir, "warehouse", "", false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Skipped)
	calls := provider.calls

	t.Run("second run skips", func(t *testing.T) {
		results, err := p.IngestDirectory(ctx, dir, "warehouse", "", false)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.True(t, results[0].Skipped)
		assert.Equal(t, calls, provider.calls)
	})

	t.Run("new job type re-ingests", func(t *testing.T) {
		results, err := p.IngestDirectory(ctx, dir, "logistics", "", false)
		require.NoError(t, err)
		assert.False(t, results[0].Skipped)

		stats, err := idx.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, "logistics", stats[0].JobType)
	})

	t.Run("modified file re-ingests", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("Forklift license and boots required."), 0o644))
		later := time.Now().Add(time.Minute)
		require.NoError(t, os.Chtimes(path, later, later))

		results, err := p.IngestDirectory(ctx, dir, "logistics", "", false)
		require.NoError(t, err)
		assert.False(t, results[0].Skipped)
	})

	t.Run("force re-ingests", func(t *testing.T) {
		results, err := p.IngestDirectory(ctx, dir, "logistics", "", true)
		require.NoError(t, err)
		assert.False(t, results[0].Skipped)
	})

	t.Run("ledger survives reopen and forgets deleted documents", func(t *testing.T) {
		reopened, err := OpenLedger(ledgerPath)
		require.NoError(t, err)
		assert.Len(t, reopened.Files, 1)

		_, err = p.DeleteDocument(ctx, "policy")
		require.NoError(t, err)

		reopened, err = OpenLedger(ledgerPath)
		require.NoError(t, err)
		assert.Empty(t, reopened.Files)
	})
}

func TestOpenLedger_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingested.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := OpenLedger(path)
	assert.Error(t, err)
}
