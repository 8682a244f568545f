package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RoleKeywords lists the header substrings that identify each canonical column.
type RoleKeywords struct {
	Code             []string `yaml:"code"`
	ShortDescription []string `yaml:"short_description"`
	LongDescription  []string `yaml:"long_description"`
	Category         []string `yaml:"category"`
	Chapter          []string `yaml:"chapter"`
}

func DefaultRoleKeywords() RoleKeywords {
	return RoleKeywords{
		Code:             []string{"code", "icd"},
		ShortDescription: []string{"short", "desc"},
		LongDescription:  []string{"long"},
		Category:         []string{"category", "group"},
		Chapter:          []string{"chapter"},
	}
}

// WithDefaults fills roles left empty with the built-in keywords.
func (k RoleKeywords) WithDefaults() RoleKeywords {
	defaults := DefaultRoleKeywords()
	return RoleKeywords{
		Code:             pickKeywords(k.Code, defaults.Code),
		ShortDescription: pickKeywords(k.ShortDescription, defaults.ShortDescription),
		LongDescription:  pickKeywords(k.LongDescription, defaults.LongDescription),
		Category:         pickKeywords(k.Category, defaults.Category),
		Chapter:          pickKeywords(k.Chapter, defaults.Chapter),
	}
}

// LoadRoleKeywords reads a YAML override file. An empty path yields the defaults.
func LoadRoleKeywords(path string) (RoleKeywords, error) {
	if path == "" {
		return DefaultRoleKeywords(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RoleKeywords{}, fmt.Errorf("read role keywords: %w", err)
	}
	var k RoleKeywords
	if err := yaml.Unmarshal(data, &k); err != nil {
		return RoleKeywords{}, fmt.Errorf("decode role keywords: %w", err)
	}
	return k.WithDefaults(), nil
}

func pickKeywords(custom, fallback []string) []string {
	if len(custom) == 0 {
		return append([]string(nil), fallback...)
	}
	return append([]string(nil), custom...)
}
