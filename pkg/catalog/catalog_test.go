package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/booster/pkg/backend/memory"
	"github.com/cuemby/booster/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBackend struct {
	*memory.Backend
	fail map[string]bool
}

func (f *failingBackend) GetBoostersByCategory(ctx context.Context, category, language string) ([]*types.BoosterItem, error) {
	if f.fail[category] {
		return nil, errors.New("backend unavailable")
	}
	return f.Backend.GetBoostersByCategory(ctx, category, language)
}

func newTestCatalog(t *testing.T) (*Catalog, *failingBackend) {
	t.Helper()
	fb := &failingBackend{
		Backend: memory.New(memory.DefaultCatalog(), memory.Options{}),
		fail:    map[string]bool{},
	}
	return NewCatalog(fb), fb
}

func TestLoad(t *testing.T) {
	c, _ := newTestCatalog(t)

	require.NoError(t, c.Load(context.Background(), "performance", "en"))
	assert.Len(t, c.List(), 3)
	assert.Equal(t, uint64(1), c.Version())

	item, ok := c.Get("game-mode")
	require.True(t, ok)
	assert.Equal(t, []string{"power-plan-high"}, item.Dependencies)
}

func TestLoadFailureKeepsSnapshot(t *testing.T) {
	c, fb := newTestCatalog(t)
	require.NoError(t, c.Load(context.Background(), "performance", "en"))

	fb.fail["performance"] = true
	err := c.Load(context.Background(), "performance", "en")
	require.Error(t, err)
	assert.Len(t, c.List(), 3)
	assert.Equal(t, uint64(1), c.Version())
}

func TestLoadAllSkipsFailures(t *testing.T) {
	c, fb := newTestCatalog(t)
	fb.fail["network"] = true

	loaded, err := c.LoadAll(context.Background(), []string{"performance", "network", "privacy"}, "en")
	assert.Error(t, err)
	assert.Equal(t, 2, loaded)
	assert.Equal(t, []string{"performance", "privacy"}, c.Categories())
}

func TestFilter(t *testing.T) {
	c, _ := newTestCatalog(t)
	_, err := c.LoadAll(context.Background(), []string{"performance", "privacy", "cleanup", "network"}, "en")
	require.NoError(t, err)

	applied := true
	tests := []struct {
		name  string
		query Query
		ids   []string
	}{
		{"by category", Query{Category: "privacy"}, []string{"disable-telemetry"}},
		{"by tag", Query{Tag: "power"}, []string{"power-plan-high", "power-saver"}},
		{"by risk", Query{Risk: types.RiskHigh}, []string{"tcp-tuning"}},
		{"by text", Query{Text: "TEMPORARY"}, []string{"clear-temp"}},
		{"applied only", Query{Applied: &applied}, []string{"disable-telemetry"}},
		{"no match", Query{Category: "privacy", Tag: "gaming"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := []string{}
			for _, item := range c.Filter(tt.query) {
				ids = append(ids, item.ID)
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestMarkApplied(t *testing.T) {
	c, _ := newTestCatalog(t)
	require.NoError(t, c.Load(context.Background(), "network", "en"))

	now := time.Now()
	assert.True(t, c.MarkApplied("tcp-tuning", true, now))
	applied, ok := c.IsApplied("tcp-tuning")
	assert.True(t, ok)
	assert.True(t, applied)

	item, _ := c.Get("tcp-tuning")
	require.NotNil(t, item.AppliedAt)
	assert.Equal(t, now, *item.AppliedAt)

	assert.False(t, c.MarkApplied("missing", true, now))

	a, n := c.Counts()
	assert.Equal(t, 1, a)
	assert.Equal(t, 0, n)
}

func TestGetReturnsCopy(t *testing.T) {
	c, _ := newTestCatalog(t)
	require.NoError(t, c.Load(context.Background(), "network", "en"))

	item, _ := c.Get("tcp-tuning")
	item.IsApplied = true

	applied, _ := c.IsApplied("tcp-tuning")
	assert.False(t, applied)
}
