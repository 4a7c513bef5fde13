package categories

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/bookkeeper/constants"
	"github.com/joseph-ayodele/bookkeeper/internal/common"
)

func TestNewCatalog_Builtin(t *testing.T) {
	c, err := NewCatalog("", nil)
	require.NoError(t, err)

	assert.Contains(t, c.IDs(), constants.DefaultJurisdiction)
	list, err := c.Categories(context.Background(), "US-Schedule-C ")
	require.NoError(t, err)
	assert.Equal(t, "Gross receipts or sales", list[0], "file order is kept")
	assert.Contains(t, list, "Office Supplies")

	_, err = c.Categories(context.Background(), "atlantis")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
	assert.Equal(t, "CATEGORIES_ERROR", common.CodeOf(err))
}

func TestNewCatalog_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cats.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
jurisdictions:
  - id: us-schedule-c
    name: trimmed
    categories:
      - { name: "Consulting", type: income }
      - { name: "Software" }
  - id: freelance
    categories:
      - { name: "Gigs", type: income }
`), 0o644))

	c, err := NewCatalog(path, nil)
	require.NoError(t, err)

	list, err := c.Categories(context.Background(), "us-schedule-c")
	require.NoError(t, err)
	assert.Equal(t, []string{"Consulting", "Software"}, list)

	j, err := c.Jurisdiction("freelance")
	require.NoError(t, err)
	assert.Equal(t, constants.Income, j.Categories[0].Type)
	assert.Contains(t, c.IDs(), "uk-self-assessment")
}

func TestNewCatalog_BadOverlay(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"no id":        "jurisdictions:\n  - categories: [{name: x}]\n",
		"empty name":   "jurisdictions:\n  - id: a\n    categories: [{name: \" \"}]\n",
		"bad type":     "jurisdictions:\n  - id: a\n    categories: [{name: x, type: transfer}]\n",
		"invalid yaml": "jurisdictions: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := NewCatalog(path, nil)
			require.Error(t, err)
			assert.Equal(t, "CATEGORIES_ERROR", common.CodeOf(err))
		})
	}

	_, err := NewCatalog(filepath.Join(dir, "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestCanonical(t *testing.T) {
	list := []string{"Office Supplies", "Travel"}

	got, ok := Canonical(list, "  office supplies ")
	assert.True(t, ok)
	assert.Equal(t, "Office Supplies", got)

	_, ok = Canonical(list, "Office")
	assert.False(t, ok)
	assert.True(t, Contains(list, "TRAVEL"))
	assert.False(t, Contains(nil, "Travel"))
}

func TestStatic_ReturnsCopy(t *testing.T) {
	s := Static{"A", "B"}
	list, err := s.Categories(context.Background(), "anything")
	require.NoError(t, err)
	list[0] = "changed"
	assert.Equal(t, "A", s[0])
}
