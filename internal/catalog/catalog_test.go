package catalog

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogInvariants(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	categories := c.Categories()
	require.Len(t, categories, 4)

	ids := make(map[string]struct{})
	for _, cat := range categories {
		assert.NotEmpty(t, cat.Items, "category %s must have example items", cat.ID)
		_, dup := ids[cat.ID]
		assert.False(t, dup, "duplicate category id %s", cat.ID)
		ids[cat.ID] = struct{}{}
	}

	for _, item := range c.Items() {
		cat, err := c.CategoryOf(item)
		require.NoError(t, err, "item %s", item.ID)
		assert.Equal(t, cat.BinColor, item.BinColor, "item %s", item.ID)
		assert.Equal(t, cat.Kind, item.Category, "item %s", item.ID)
		assert.NotEmpty(t, item.Tips)
	}
}

func TestDefaultCatalogBadgeThresholds(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	badges := c.Badges()
	require.Len(t, badges, 10)
	assert.Equal(t, 5, badges[0].Threshold)
	assert.Equal(t, 500, badges[len(badges)-1].Threshold)

	for i := 1; i < len(badges); i++ {
		assert.Greater(t, badges[i].Threshold, badges[i-1].Threshold)
	}
}

func TestParseThreshold(t *testing.T) {
	tests := []struct {
		name    string
		badge   string
		want    int
		wantErr bool
	}{
		{name: "simple", badge: "50 XP: Trash Panda", want: 50},
		{name: "padded", badge: "  100 XP: Verified Binfluencer", want: 100},
		{name: "no marker", badge: "Trash Panda", wantErr: true},
		{name: "not a number", badge: "lots XP: Junk Jedi", wantErr: true},
		{name: "negative", badge: "-5 XP: Debt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseThreshold(tt.badge)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRejectsBrokenCatalog(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "bin color mismatch",
			doc: `
categories:
  - {id: "1", name: Recyclables, kind: Recyclable, binColor: Blue, items: [Paper], quotes: [q]}
items:
  - {id: a, name: Can, category: Recyclable, categoryId: "1", binColor: Red, points: 1, tips: [t]}
`,
		},
		{
			name: "unknown category reference",
			doc: `
categories:
  - {id: "1", name: Recyclables, kind: Recyclable, binColor: Blue, items: [Paper], quotes: [q]}
items:
  - {id: a, name: Can, category: Recyclable, categoryId: "9", binColor: Blue, points: 1, tips: [t]}
`,
		},
		{
			name: "duplicate category id",
			doc: `
categories:
  - {id: "1", name: Recyclables, kind: Recyclable, binColor: Blue, items: [Paper], quotes: [q]}
  - {id: "1", name: Compost, kind: Compost, binColor: Green, items: [Peel], quotes: [q]}
items:
  - {id: a, name: Can, category: Recyclable, categoryId: "1", binColor: Blue, points: 1, tips: [t]}
`,
		},
		{
			name: "empty example items",
			doc: `
categories:
  - {id: "1", name: Recyclables, kind: Recyclable, binColor: Blue, items: [], quotes: [q]}
items:
  - {id: a, name: Can, category: Recyclable, categoryId: "1", binColor: Blue, points: 1, tips: [t]}
`,
		},
		{
			name: "item without tips",
			doc: `
categories:
  - {id: "1", name: Recyclables, kind: Recyclable, binColor: Blue, items: [Paper], quotes: [q]}
items:
  - {id: a, name: Can, category: Recyclable, categoryId: "1", binColor: Blue, points: 1, tips: []}
`,
		},
		{
			name: "badge without threshold",
			doc: `
categories:
  - {id: "1", name: Recyclables, kind: Recyclable, binColor: Blue, items: [Paper], quotes: [q]}
items:
  - {id: a, name: Can, category: Recyclable, categoryId: "1", binColor: Blue, points: 1, tips: [t]}
badges:
  - {id: "1", name: Rookie, icon: ribbon-outline}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidCatalog), "got %v", err)
		})
	}
}

func TestCategoryLookup(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	cat, err := c.Category("4")
	require.NoError(t, err)
	assert.Equal(t, "Hazardous Waste", cat.Name)

	_, err = c.Category("nope")
	assert.ErrorIs(t, err, ErrCategoryNotFound)

	_, err = c.Item("nope")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestCatalogReturnsCopies(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	items := c.Items()
	items[0].Tips[0] = "mutated"

	again, err := c.Item(items[0].ID)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again.Tips[0])
}

func TestConcurrentLookups(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, item := range c.Items() {
				_, err := c.Item(item.ID)
				assert.NoError(t, err)
				_, err = c.Category(item.CategoryID)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}
