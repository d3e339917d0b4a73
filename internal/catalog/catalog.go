// Package catalog holds the ordered class labels the classifier was trained
// against together with their curated reference pages.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/example/dermscan/internal/reference"
)

// Catalog is immutable once loaded. Labels are index-aligned with the
// classifier output.
type Catalog struct {
	Labels     []string           `yaml:"labels"`
	References map[string]*string `yaml:"references"`
}

var defaultLabels = []string{
	"Actinic keratosis",
	"Atopic Dermatitis",
	"Benign keratosis",
	"Dermatofibroma",
	"Melanocytic nevus",
	"Melanoma",
	"Squamous cell carcinoma",
	"Tinea Ringworm Candidiasis",
	"Vascular lesion",
}

// Default returns the built-in nine-class skin lesion catalog.
func Default() *Catalog {
	labels := make([]string, len(defaultLabels))
	copy(labels, defaultLabels)
	return &Catalog{Labels: labels, References: reference.DefaultReferences()}
}

// Load reads a catalog from a YAML file. An empty path yields Default.
// A references entry with a null value is kept as an explicit fallback.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that labels are present, non-blank and unique
// (case-insensitively, matching reference lookups).
func (c *Catalog) Validate() error {
	if len(c.Labels) == 0 {
		return errors.New("catalog has no labels")
	}
	seen := make(map[string]int, len(c.Labels))
	for i, label := range c.Labels {
		key := strings.ToLower(strings.TrimSpace(label))
		if key == "" {
			return fmt.Errorf("catalog label %d is blank", i)
		}
		if j, dup := seen[key]; dup {
			return fmt.Errorf("catalog label %q at %d duplicates index %d", label, i, j)
		}
		seen[key] = i
	}
	return nil
}

// Len returns the number of classes.
func (c *Catalog) Len() int {
	return len(c.Labels)
}

// Resolver builds a reference resolver over the catalog's curated pages.
func (c *Catalog) Resolver(opts reference.Options) *reference.Resolver {
	return reference.NewResolver(c.References, opts)
}
