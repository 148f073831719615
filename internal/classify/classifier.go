// Package classify resolves addresses to user-supplied labels and
// categories. Mapping files are flat address-to-value documents in YAML,
// TOML or JSON; the format is inferred from the file extension.
package classify

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/RyanBruno/arb-gnucash-importer/internal/models"
)

// Classifier is a pure lookup table from normalized lowercase hex
// addresses to classification data. Lookups for unknown addresses return
// the zero Classification; that is never an error.
type Classifier struct {
	entries   map[string]models.Classification
	overrides int
	logger    *logrus.Logger
}

// New creates an empty Classifier.
func New(logger *logrus.Logger) *Classifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &Classifier{
		entries: make(map[string]models.Classification),
		logger:  logger,
	}
}

// LoadLabels merges a label mapping file (address -> label). When a later
// file redefines an address the new value wins and an override notice is
// logged.
func (c *Classifier) LoadLabels(path string) error {
	settings, err := readMapping(path)
	if err != nil {
		return err
	}

	for addr, val := range settings {
		label, ok := val.(string)
		if !ok {
			return fmt.Errorf("mapping file %s: address %s: expected string label, got %T", path, addr, val)
		}
		if err := c.merge(path, addr, func(cl *models.Classification) bool {
			changed := cl.Label != "" && cl.Label != label
			cl.Label = label
			return changed
		}); err != nil {
			return err
		}
	}
	return nil
}

// LoadCategories merges a category mapping file. Each value is either a
// plain string category or a table with category and optional
// description keys (the legacy and current formats of the original
// tooling).
func (c *Classifier) LoadCategories(path string) error {
	settings, err := readMapping(path)
	if err != nil {
		return err
	}

	for addr, val := range settings {
		var category, description string
		switch v := val.(type) {
		case string:
			category = v
		case map[string]interface{}:
			category, _ = v["category"].(string)
			description, _ = v["description"].(string)
			if category == "" {
				return fmt.Errorf("category file %s: address %s: missing category key", path, addr)
			}
		default:
			return fmt.Errorf("category file %s: address %s: unsupported value type %T", path, addr, val)
		}

		if err := c.merge(path, addr, func(cl *models.Classification) bool {
			changed := cl.Category != "" && cl.Category != category
			cl.Category = category
			if description != "" {
				cl.Description = description
			}
			return changed
		}); err != nil {
			return err
		}
	}
	return nil
}

// Lookup resolves an address case-insensitively. Unclassified addresses
// pass through with an empty result.
func (c *Classifier) Lookup(address string) models.Classification {
	return c.entries[models.NormalizeAddress(address)]
}

// Overrides returns how many entries were overridden by later-loaded
// files.
func (c *Classifier) Overrides() int { return c.overrides }

// Len returns the number of classified addresses.
func (c *Classifier) Len() int { return len(c.entries) }

func (c *Classifier) merge(path, addr string, apply func(*models.Classification) bool) error {
	norm := models.NormalizeAddress(addr)
	if !models.IsHexAddress(norm) {
		return fmt.Errorf("mapping file %s: %q is not a 42-character hex address", path, addr)
	}

	cl := c.entries[norm]
	if apply(&cl) {
		c.overrides++
		c.logger.WithFields(logrus.Fields{
			"address": norm,
			"file":    path,
		}).Warn("classification override: later-loaded file wins")
	}
	c.entries[norm] = cl
	return nil
}

// readMapping loads a flat mapping document. Viper lowercases keys, which
// also gives us case-insensitive addresses for free.
func readMapping(path string) (map[string]interface{}, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read mapping file %s: %w", path, err)
	}
	return v.AllSettings(), nil
}
