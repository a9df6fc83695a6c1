// Package catalog holds the mapping from hidden challenge flags to level
// labels. The built-in set matches the flags planted in the frontend; an
// operator can override it with a YAML file without rebuilding.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog maps flag strings to level labels. Lookups never reveal the known
// flags: callers only learn whether their exact candidate matched.
type Catalog struct {
	flags map[string]string
}

// Default returns the built-in flag set.
func Default() *Catalog {
	return &Catalog{flags: map[string]string{
		"FLAG{w3lc0me_t0_th3_gr1d}":       "recon",
		"FLAG{c0ns0le_c0wb0y}":            "terminal",
		"FLAG{gh0st_1n_th3_sh3ll}":        "source-dive",
		"FLAG{d34d_m4ns_sw1tch_d1s4rm3d}": "deep-access",
	}}
}

type fileFormat struct {
	Flags []struct {
		Flag  string `yaml:"flag"`
		Level string `yaml:"level"`
	} `yaml:"flags"`
}

// LoadFile reads a YAML catalog:
//
//	flags:
//	  - flag: "FLAG{...}"
//	    level: "recon"
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	if len(ff.Flags) == 0 {
		return nil, fmt.Errorf("catalog: %s defines no flags", path)
	}

	c := &Catalog{flags: make(map[string]string, len(ff.Flags))}
	for _, f := range ff.Flags {
		if f.Flag == "" || f.Level == "" {
			return nil, fmt.Errorf("catalog: %s has an entry with empty flag or level", path)
		}
		c.flags[f.Flag] = f.Level
	}
	return c, nil
}

// Level returns the level label for a candidate flag and whether it matched.
func (c *Catalog) Level(flag string) (string, bool) {
	lvl, ok := c.flags[flag]
	return lvl, ok
}

// Len returns the number of known flags.
func (c *Catalog) Len() int {
	return len(c.flags)
}
