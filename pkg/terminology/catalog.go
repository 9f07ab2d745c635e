package terminology

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog normalizes the loosely spelled lab flags and units that come out
// of document extraction into the canonical vocabulary stored on Lab rows.
type Catalog struct {
	Flags map[string]string `yaml:"flags" json:"flags"`
	Units map[string]string `yaml:"units" json:"units"`
}

func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), err
	}

	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return Catalog{}, err
	}
	if cat.Flags == nil {
		cat.Flags = DefaultCatalog().Flags
	}
	if cat.Units == nil {
		cat.Units = DefaultCatalog().Units
	}
	return cat, nil
}

func DefaultCatalog() Catalog {
	return Catalog{
		Flags: map[string]string{
			"h":        "H",
			"high":     "H",
			"abnormal high": "H",
			"l":        "L",
			"low":      "L",
			"abnormal low": "L",
			"crit":     "critical",
			"critical": "critical",
			"panic":    "critical",
		},
		Units: map[string]string{
			"mg/dl":   "mg/dL",
			"mmol/l":  "mmol/L",
			"g/dl":    "g/dL",
			"iu/l":    "IU/L",
			"u/l":     "U/L",
			"meq/l":   "mEq/L",
			"ng/ml":   "ng/mL",
			"pg/ml":   "pg/mL",
			"cells/ul": "cells/uL",
			"%":       "%",
		},
	}
}

// NormalizeFlag maps a raw flag to the canonical vocabulary. Unknown flags
// are kept as-is so upstream variants are never silently discarded.
func (c Catalog) NormalizeFlag(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return ""
	}
	if canonical, ok := c.Flags[key]; ok {
		return canonical
	}
	return strings.TrimSpace(raw)
}

func (c Catalog) NormalizeUnit(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return ""
	}
	if canonical, ok := c.Units[key]; ok {
		return canonical
	}
	return strings.TrimSpace(raw)
}
