package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/artpar/scopedb/domain/coltype"
)

// file is the YAML shape of a schema declaration.
type file struct {
	Tables []tableDecl `yaml:"tables"`
}

type tableDecl struct {
	Name        string       `yaml:"table"`
	NoReference bool         `yaml:"no_reference,omitempty"`
	Columns     []columnDecl `yaml:"columns"`
}

type columnDecl struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Unique      bool   `yaml:"unique,omitempty"`
	Index       bool   `yaml:"index,omitempty"`
	NoReference bool   `yaml:"no_reference,omitempty"`
}

// ParseFile parses a schema declaration from a YAML file.
func ParseFile(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("read file %s: %w", path, err)
	}

	desc, err := Parse(data)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%s: %w", path, err)
	}
	return desc, nil
}

// Parse parses a schema declaration from YAML bytes.
// Only syntax is checked here; RegisterSchema reports everything else.
func Parse(data []byte) (Descriptor, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Descriptor{}, fmt.Errorf("parse yaml: %w", err)
	}

	desc := Descriptor{Tables: make([]TableDescriptor, 0, len(f.Tables))}
	for _, td := range f.Tables {
		t := TableDescriptor{Name: td.Name}
		if td.NoReference {
			t.Flags |= Unreferenced
		}
		for _, cd := range td.Columns {
			c := ColumnDescriptor{Name: cd.Name, Declared: cd.Type}
			// Unparseable types stay invalid and surface during registration.
			if typ, err := coltype.ParseType(cd.Type); err == nil {
				c.Type = typ
			}
			if cd.Unique {
				c.Flags |= Unique
			}
			if cd.Index {
				c.Flags |= Indexed
			}
			if cd.NoReference {
				c.Flags |= NoReference
			}
			t.Columns = append(t.Columns, c)
		}
		desc.Tables = append(desc.Tables, t)
	}

	return desc, nil
}

// ParseDir parses every .yaml/.yml file in dir, including subdirectories,
// and merges their tables into one Descriptor.
func ParseDir(dir string) (Descriptor, error) {
	var merged Descriptor

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Descriptor{}, fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			sub, err := ParseDir(path)
			if err != nil {
				return Descriptor{}, err
			}
			merged.Tables = append(merged.Tables, sub.Tables...)
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		desc, err := ParseFile(path)
		if err != nil {
			return Descriptor{}, err
		}
		merged.Tables = append(merged.Tables, desc.Tables...)
	}

	return merged, nil
}

// ParsePaths parses a mix of files and directories into one Descriptor.
func ParsePaths(paths ...string) (Descriptor, error) {
	var merged Descriptor
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return Descriptor{}, fmt.Errorf("stat %s: %w", p, err)
		}
		var desc Descriptor
		if info.IsDir() {
			desc, err = ParseDir(p)
		} else {
			desc, err = ParseFile(p)
		}
		if err != nil {
			return Descriptor{}, err
		}
		merged.Tables = append(merged.Tables, desc.Tables...)
	}
	return merged, nil
}

// isValidIdentifier checks if a string is a valid identifier.
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		if i == 0 {
			if !isLetter(c) && c != '_' {
				return false
			}
		} else {
			if !isLetter(c) && !isDigit(c) && c != '_' {
				return false
			}
		}
	}

	return true
}

func isLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}
