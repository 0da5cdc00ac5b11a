package invariant

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/instatrade/itn/internal/ledger"
	"github.com/instatrade/itn/pkg/log"
	"github.com/instatrade/itn/pkg/metric"
	"github.com/instatrade/itn/pkg/seal"
)

func newTestKernel(t *testing.T) (*Kernel, *Registry) {
	secret, err := seal.GenerateSecret()
	require.NoError(t, err)
	led := ledger.New(secret)
	reg := NewRegistry()
	return NewKernel(reg, led, log.NoOp(), metric.New()), reg
}

func TestEnforceRunsInDependencyOrder(t *testing.T) {
	require := require.New(t)
	k, reg := newTestKernel(t)

	var order []string
	reg.MustRegister(&Invariant{ID: "B", DependsOn: []string{"A"}, Pre: func(*Context) (bool, error) {
		order = append(order, "B")
		return true, nil
	}})
	reg.MustRegister(&Invariant{ID: "A", Pre: func(*Context) (bool, error) {
		order = append(order, "A")
		return true, nil
	}})

	ctx := NewContext()
	err := k.Enforce(ctx, []string{"A", "B"}, func(*Context) error { return nil })
	require.NoError(err)
	require.Equal([]string{"A", "B"}, order)
}

func TestEnforceFailedPreBlocksAction(t *testing.T) {
	require := require.New(t)
	k, reg := newTestKernel(t)
	ran := false

	reg.MustRegister(&Invariant{ID: "X", Pre: func(*Context) (bool, error) { return false, nil }})

	ctx := NewContext()
	err := k.Enforce(ctx, []string{"X"}, func(*Context) error { ran = true; return nil })
	require.Error(err)
	require.False(ran)

	var v *Violation
	require.ErrorAs(err, &v)
	require.Equal(PhasePre, v.Phase)
}

func TestEnforceRollsBackOnActionError(t *testing.T) {
	require := require.New(t)
	k, reg := newTestKernel(t)
	rolledBack := false

	reg.MustRegister(&Invariant{
		ID:       "Y",
		Pre:      func(*Context) (bool, error) { return true, nil },
		Rollback: func(*Context, map[string]any) error { rolledBack = true; return nil },
	})

	ctx := NewContext()
	actionErr := errors.New("boom")
	err := k.Enforce(ctx, []string{"Y"}, func(*Context) error { return actionErr })
	require.ErrorIs(err, actionErr)
	require.True(rolledBack)
}

func TestEnforceEscalatesOnRollbackFailure(t *testing.T) {
	require := require.New(t)
	k, reg := newTestKernel(t)

	reg.MustRegister(&Invariant{
		ID:       "Z",
		Post:     func(*Context, error) (bool, error) { return false, nil },
		Rollback: func(*Context, map[string]any) error { return errors.New("rollback failed") },
	})

	ctx := NewContext()
	err := k.Enforce(ctx, []string{"Z"}, func(*Context) error { return nil })
	var c *Compromised
	require.ErrorAs(err, &c)
}

func TestTopoSortDetectsCycle(t *testing.T) {
	require := require.New(t)
	reg := NewRegistry()
	reg.MustRegister(&Invariant{ID: "A", DependsOn: []string{"B"}})
	reg.MustRegister(&Invariant{ID: "B", DependsOn: []string{"A"}})

	_, err := reg.TopoSort([]string{"A", "B"})
	var c *CycleError
	require.ErrorAs(err, &c)
}
