package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func addField(field string, val any) MigrateFunc {
	return func(artifact map[string]any) (map[string]any, error) {
		out := make(map[string]any, len(artifact)+1)
		for k, v := range artifact {
			out[k] = v
		}
		out[field] = val
		return out, nil
	}
}

func removeField(field string) MigrateFunc {
	return func(artifact map[string]any) (map[string]any, error) {
		out := make(map[string]any, len(artifact))
		for k, v := range artifact {
			if k != field {
				out[k] = v
			}
		}
		return out, nil
	}
}

func newTestManager(t *testing.T) *Manager {
	m := NewManager(fixedClock(time.Now()))
	require.NoError(t, m.Register(&ArtifactVersion{SemVer: "v1.0.0", Branch: BranchInvoice}))
	require.NoError(t, m.Register(&ArtifactVersion{
		SemVer: "v1.1.0", Branch: BranchInvoice,
		Migrate:  addField("fx_pair", "USD/EUR"),
		Rollback: removeField("fx_pair"),
		Verify:   func(a map[string]any) error { _, ok := a["fx_pair"]; _ = ok; return nil },
	}))
	require.NoError(t, m.Register(&ArtifactVersion{
		SemVer: "v2.0.0", Branch: BranchInvoice,
		Migrate:  addField("terms_days", 30),
		Rollback: removeField("terms_days"),
	}))
	return m
}

func TestMigrateWalksForwardApplyingEachStep(t *testing.T) {
	require := require.New(t)
	m := newTestManager(t)

	out, err := m.Migrate(BranchInvoice, "v1.0.0", "v2.0.0", map[string]any{"id": "INV-1"})
	require.NoError(err)
	require.Equal("USD/EUR", out["fx_pair"])
	require.Equal(30, out["terms_days"])

	log := m.Log()
	require.Len(log, 1)
	require.Equal(MigrationCompleted, log[0].Status)
}

func TestRollbackWalksBackward(t *testing.T) {
	require := require.New(t)
	m := newTestManager(t)

	forward, err := m.Migrate(BranchInvoice, "v1.0.0", "v2.0.0", map[string]any{"id": "INV-1"})
	require.NoError(err)

	back, err := m.Rollback(BranchInvoice, "v2.0.0", "v1.0.0", forward)
	require.NoError(err)
	_, hasFx := back["fx_pair"]
	_, hasTerms := back["terms_days"]
	require.False(hasFx)
	require.False(hasTerms)
}

func TestMigrateRejectsDowngradeDirection(t *testing.T) {
	require := require.New(t)
	m := newTestManager(t)

	_, err := m.Migrate(BranchInvoice, "v2.0.0", "v1.0.0", map[string]any{})
	require.ErrorIs(err, ErrNoPath)
}

func TestMigrateRejectsUnknownVersion(t *testing.T) {
	require := require.New(t)
	m := newTestManager(t)

	_, err := m.Migrate(BranchInvoice, "v1.0.0", "v9.9.9", map[string]any{})
	require.ErrorIs(err, ErrUnknownVersion)
}

func TestLatestReturnsHighestRegisteredSemver(t *testing.T) {
	require := require.New(t)
	m := newTestManager(t)

	latest, err := m.Latest(BranchInvoice)
	require.NoError(err)
	require.Equal("v2.0.0", latest)
}
