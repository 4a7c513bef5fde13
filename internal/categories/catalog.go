// Package categories supplies the ordered category list for a tax jurisdiction.
package categories

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/bookkeeper/constants"
	"github.com/joseph-ayodele/bookkeeper/internal/common"
)

//go:embed jurisdictions.yaml
var builtin []byte

// Provider returns the ordered list of valid category labels for a jurisdiction.
type Provider interface {
	Categories(ctx context.Context, jurisdiction string) ([]string, error)
}

// Category is one label and the side of the ledger it normally sits on.
type Category struct {
	Name string           `yaml:"name"`
	Type constants.TxType `yaml:"type"`
}

// Jurisdiction is a named, ordered category set.
type Jurisdiction struct {
	ID         string     `yaml:"id"`
	Name       string     `yaml:"name"`
	Categories []Category `yaml:"categories"`
}

type file struct {
	Jurisdictions []Jurisdiction `yaml:"jurisdictions"`
}

// Catalog is the YAML-backed Provider. Safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	byID   map[string]Jurisdiction
	logger *slog.Logger
}

// NewCatalog loads the built-in jurisdictions and, if overlayPath is set, a user file
// whose jurisdictions replace built-ins with the same id.
func NewCatalog(overlayPath string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{byID: map[string]Jurisdiction{}, logger: logger}
	if err := c.load(builtin, "builtin"); err != nil {
		return nil, err
	}
	if overlayPath != "" {
		data, err := os.ReadFile(overlayPath)
		if err != nil {
			return nil, common.NewAppError("CATEGORIES_ERROR", "read categories file "+overlayPath, err)
		}
		if err := c.load(data, overlayPath); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) load(data []byte, source string) error {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return common.NewAppError("CATEGORIES_ERROR", "parse "+source, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, j := range f.Jurisdictions {
		id := strings.ToLower(strings.TrimSpace(j.ID))
		if id == "" {
			return common.NewAppError("CATEGORIES_ERROR", source+": jurisdiction without id", common.ErrInvalidInput)
		}
		for i, cat := range j.Categories {
			if strings.TrimSpace(cat.Name) == "" {
				return common.NewAppError("CATEGORIES_ERROR", fmt.Sprintf("%s: %s category #%d has no name", source, id, i+1), common.ErrInvalidInput)
			}
			if cat.Type != "" && !cat.Type.IsValid() {
				return common.NewAppError("CATEGORIES_ERROR", fmt.Sprintf("%s: %s category %q has type %q", source, id, cat.Name, cat.Type), common.ErrInvalidInput)
			}
		}
		j.ID = id
		c.byID[id] = j
		c.logger.Debug("categories.loaded", "jurisdiction", id, "count", len(j.Categories), "source", source)
	}
	return nil
}

// Categories implements Provider. Order is the file order.
func (c *Catalog) Categories(_ context.Context, jurisdiction string) ([]string, error) {
	j, err := c.Jurisdiction(jurisdiction)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(j.Categories))
	for i, cat := range j.Categories {
		out[i] = cat.Name
	}
	return out, nil
}

// Jurisdiction returns the full definition for id.
func (c *Catalog) Jurisdiction(id string) (Jurisdiction, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	j, ok := c.byID[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Jurisdiction{}, common.NewAppError("CATEGORIES_ERROR", fmt.Sprintf("unknown jurisdiction %q", id), common.ErrNotFound)
	}
	return j, nil
}

// IDs lists known jurisdiction ids, sorted.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Static is a fixed Provider, handy for tests and single-jurisdiction setups.
type Static []string

func (s Static) Categories(context.Context, string) ([]string, error) {
	out := make([]string, len(s))
	copy(out, s)
	return out, nil
}

// Canonical returns the list entry matching label case-insensitively (after trimming).
func Canonical(list []string, label string) (string, bool) {
	l := strings.TrimSpace(label)
	for _, c := range list {
		if strings.EqualFold(c, l) {
			return c, true
		}
	}
	return "", false
}

// Contains reports whether label is in list, ignoring case.
func Contains(list []string, label string) bool {
	_, ok := Canonical(list, label)
	return ok
}
