package staging

import (
	"testing"

	"github.com/cuemby/booster/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog map[string]*types.BoosterItem

func (f fakeCatalog) Get(id string) (*types.BoosterItem, bool) {
	item, ok := f[id]
	if !ok {
		return nil, false
	}
	return item.Clone(), true
}

func (f fakeCatalog) IsApplied(id string) (bool, bool) {
	item, ok := f[id]
	if !ok {
		return false, false
	}
	return item.IsApplied, true
}

func testCatalog() fakeCatalog {
	return fakeCatalog{
		"a":    {ID: "a", Reversible: true},
		"b":    {ID: "b", Reversible: true, IsApplied: true},
		"once": {ID: "once", Reversible: false, IsApplied: true},
		"dep":  {ID: "dep", Reversible: true},
		"needs": {
			ID:           "needs",
			Reversible:   true,
			Dependencies: []string{"dep"},
		},
		"clash": {
			ID:         "clash",
			Reversible: true,
			Conflicts:  []string{"b"},
		},
	}
}

func TestStageNoopCollapse(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		ops     []types.Operation
		staged  bool
		finalOp types.Operation
	}{
		{"apply on not applied", "a", []types.Operation{types.OperationApply}, true, types.OperationApply},
		{"revert on not applied", "a", []types.Operation{types.OperationRevert}, false, ""},
		{"apply on applied", "b", []types.Operation{types.OperationApply}, false, ""},
		{"revert on applied", "b", []types.Operation{types.OperationRevert}, true, types.OperationRevert},
		{"round trip on not applied", "a", []types.Operation{types.OperationApply, types.OperationRevert}, false, ""},
		{"round trip on applied", "b", []types.Operation{types.OperationRevert, types.OperationApply}, false, ""},
		{"overwrite keeps last", "a", []types.Operation{types.OperationApply, types.OperationApply}, true, types.OperationApply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger(testCatalog())
			for _, op := range tt.ops {
				require.NoError(t, l.Stage(tt.id, op))
			}
			op, ok := l.Get(tt.id)
			assert.Equal(t, tt.staged, ok)
			assert.Equal(t, tt.finalOp, op)
		})
	}
}

func TestStageRejectsUnknownAndInvalid(t *testing.T) {
	l := NewLedger(testCatalog())

	err := l.Stage("missing", types.OperationApply)
	assert.ErrorIs(t, err, ErrUnknownBooster)

	err = l.Stage("a", types.Operation("toggle"))
	assert.ErrorIs(t, err, ErrInvalidOperation)

	assert.False(t, l.HasChanges())
	assert.Equal(t, uint64(0), l.Version())
}

func TestToggle(t *testing.T) {
	l := NewLedger(testCatalog())

	op, err := l.Toggle("a")
	require.NoError(t, err)
	assert.Equal(t, types.OperationApply, op)
	assert.Equal(t, 1, l.Count())

	eff, ok := l.EffectiveApplied("a")
	assert.True(t, ok)
	assert.True(t, eff)

	op, err = l.Toggle("a")
	require.NoError(t, err)
	assert.Equal(t, types.OperationRevert, op)
	assert.Equal(t, 0, l.Count())

	_, err = l.Toggle("missing")
	assert.ErrorIs(t, err, ErrUnknownBooster)
}

func TestStageBatchOverwrites(t *testing.T) {
	l := NewLedger(testCatalog())
	require.NoError(t, l.Stage("b", types.OperationRevert))

	err := l.StageBatch(map[string]types.Operation{
		"b":   types.OperationApply,
		"a":   types.OperationApply,
		"dep": types.OperationApply,
	})
	require.NoError(t, err)

	// b is applied already, so apply overwrites the revert with nothing
	assert.Equal(t, map[string]types.Operation{
		"a":   types.OperationApply,
		"dep": types.OperationApply,
	}, l.Snapshot())

	err = l.StageBatch(map[string]types.Operation{"missing": types.OperationApply})
	assert.ErrorIs(t, err, ErrUnknownBooster)
	assert.Equal(t, 2, l.Count())
}

func TestStageBatchCollapsesNoops(t *testing.T) {
	l := NewLedger(testCatalog())

	// a is not applied and b is applied: both entries change nothing
	v := l.Version()
	require.NoError(t, l.StageBatch(map[string]types.Operation{
		"a": types.OperationRevert,
		"b": types.OperationApply,
	}))
	assert.Equal(t, 0, l.Count())
	assert.False(t, l.HasChanges())
	assert.Empty(t, l.Snapshot())
	assert.Equal(t, v, l.Version())

	require.NoError(t, l.StageBatch(map[string]types.Operation{
		"a": types.OperationApply,
		"b": types.OperationApply,
	}))
	assert.Equal(t, map[string]types.Operation{"a": types.OperationApply}, l.Snapshot())
	assert.True(t, l.HasChanges())
}

func TestClearAndUnstage(t *testing.T) {
	l := NewLedger(testCatalog())
	require.NoError(t, l.Stage("a", types.OperationApply))
	require.NoError(t, l.Stage("b", types.OperationRevert))

	l.Unstage("a")
	assert.Equal(t, 1, l.Count())

	l.Clear()
	assert.False(t, l.HasChanges())
	assert.Equal(t, 0, l.Count())
}

func TestRederive(t *testing.T) {
	cat := testCatalog()
	l := NewLedger(cat)
	require.NoError(t, l.Stage("a", types.OperationApply))
	require.NoError(t, l.Stage("b", types.OperationRevert))
	require.NoError(t, l.Stage("dep", types.OperationApply))

	// reload: a is now applied, dep disappeared
	cat["a"].IsApplied = true
	delete(cat, "dep")

	removed := l.Rederive()
	assert.Equal(t, []string{"a", "dep"}, removed)
	assert.Equal(t, map[string]types.Operation{"b": types.OperationRevert}, l.Snapshot())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		ops      map[string]types.Operation
		issues   []types.ValidationIssue
		hasError bool
	}{
		{
			name:   "no issues",
			ops:    map[string]types.Operation{"a": types.OperationApply},
			issues: nil,
		},
		{
			name: "missing dependency warns",
			ops:  map[string]types.Operation{"needs": types.OperationApply},
			issues: []types.ValidationIssue{
				{BoosterID: "needs", Severity: types.SeverityWarning, Message: "dependency dep is not applied"},
			},
		},
		{
			name: "dependency staged together",
			ops: map[string]types.Operation{
				"needs": types.OperationApply,
				"dep":   types.OperationApply,
			},
			issues: nil,
		},
		{
			name: "applied conflict errors",
			ops:  map[string]types.Operation{"clash": types.OperationApply},
			issues: []types.ValidationIssue{
				{BoosterID: "clash", Severity: types.SeverityError, Message: "conflicts with applied booster b"},
			},
			hasError: true,
		},
		{
			name: "conflict staged for revert",
			ops: map[string]types.Operation{
				"clash": types.OperationApply,
				"b":     types.OperationRevert,
			},
			issues: nil,
		},
		{
			name: "irreversible revert errors",
			ops:  map[string]types.Operation{"once": types.OperationRevert},
			issues: []types.ValidationIssue{
				{BoosterID: "once", Severity: types.SeverityError, Message: "booster cannot be reverted"},
			},
			hasError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger(testCatalog())
			require.NoError(t, l.StageBatch(tt.ops))
			before := l.Snapshot()

			issues := l.Validate()
			assert.Equal(t, tt.issues, issues)
			assert.Equal(t, tt.hasError, HasErrors(issues))
			assert.Equal(t, before, l.Snapshot())
		})
	}
}
