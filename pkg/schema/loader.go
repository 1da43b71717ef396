package schema

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFS walks the provided filesystem and merges every JSON/YAML schema file
// into one Config. Tables may be spread across files; the sequence must be
// declared exactly once. A nil filesystem yields an empty Config.
func LoadFS(fsys fs.FS) (Config, error) {
	cfg := Config{Tables: make(map[string]TableMeta)}
	if fsys == nil {
		return cfg, nil
	}

	sequenceSource := ""
	err := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !isSchemaFile(path) {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("schema: read %s: %w", path, err)
		}
		doc, err := Parse(data, path)
		if err != nil {
			return err
		}

		if len(doc.Sequence) > 0 {
			if sequenceSource != "" {
				return fmt.Errorf("schema: sequence declared in both %s and %s", sequenceSource, path)
			}
			sequenceSource = path
			cfg.Sequence = doc.Sequence
		}
		for name, meta := range doc.Tables {
			if _, exists := cfg.Tables[name]; exists {
				return fmt.Errorf("schema: duplicate table %q (file %s)", name, path)
			}
			cfg.Tables[name] = meta
		}
		return nil
	})
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes a single schema document, trying JSON first and falling back
// to YAML. Table names, columns and keys are trimmed; relationship kinds are
// normalised.
func Parse(data []byte, source string) (Config, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Config{}, fmt.Errorf("schema: file %s is empty", source)
	}

	var doc documentFile
	if err := json.Unmarshal(data, &doc); err != nil {
		doc = documentFile{}
		if yerr := yaml.Unmarshal(data, &doc); yerr != nil {
			return Config{}, fmt.Errorf("schema: parse %s: invalid JSON or YAML", source)
		}
	}
	return normaliseDocument(doc, source)
}

type documentFile struct {
	Sequence []string             `json:"sequence" yaml:"sequence"`
	Tables   map[string]tableFile `json:"tables" yaml:"tables"`
}

type tableFile struct {
	BusinessKeys  []string                    `json:"businessKeys" yaml:"businessKeys"`
	Columns       []string                    `json:"columns" yaml:"columns"`
	ForeignKeys   map[string]string           `json:"foreignKeys" yaml:"foreignKeys"`
	Relationships map[string]relationshipFile `json:"relationships" yaml:"relationships"`
}

// relationshipFile accepts both "kind" and the older "type" spelling.
type relationshipFile struct {
	Kind        string `json:"kind" yaml:"kind"`
	Type        string `json:"type" yaml:"type"`
	ParentKey   string `json:"parentKey" yaml:"parentKey"`
	ParentTable string `json:"parentTable" yaml:"parentTable"`
	ChildKey    string `json:"childKey" yaml:"childKey"`
	ChildTable  string `json:"childTable" yaml:"childTable"`
}

func normaliseDocument(doc documentFile, source string) (Config, error) {
	cfg := Config{Tables: make(map[string]TableMeta, len(doc.Tables))}

	seen := make(map[string]struct{}, len(doc.Sequence))
	for idx, raw := range doc.Sequence {
		name := strings.TrimSpace(raw)
		if name == "" {
			return Config{}, fmt.Errorf("schema: file %s sequence entry %d is empty", source, idx)
		}
		if _, dup := seen[name]; dup {
			return Config{}, fmt.Errorf("schema: file %s lists table %q twice in sequence", source, name)
		}
		seen[name] = struct{}{}
		cfg.Sequence = append(cfg.Sequence, name)
	}

	for rawName, raw := range doc.Tables {
		name := strings.TrimSpace(rawName)
		if name == "" {
			return Config{}, fmt.Errorf("schema: file %s defines a table with an empty name", source)
		}
		if _, exists := cfg.Tables[name]; exists {
			return Config{}, fmt.Errorf("schema: file %s defines duplicate table %q", source, name)
		}
		meta, err := normaliseTable(raw, name, source)
		if err != nil {
			return Config{}, err
		}
		cfg.Tables[name] = meta
	}
	return cfg, nil
}

func normaliseTable(raw tableFile, name, source string) (TableMeta, error) {
	meta := TableMeta{
		BusinessKeys: trimAll(raw.BusinessKeys),
		Columns:      trimAll(raw.Columns),
	}

	if len(raw.ForeignKeys) > 0 {
		meta.ForeignKeys = make(map[string]string, len(raw.ForeignKeys))
		for column, parent := range raw.ForeignKeys {
			column = strings.TrimSpace(column)
			parent = strings.TrimSpace(parent)
			if column == "" || parent == "" {
				return TableMeta{}, fmt.Errorf("schema: table %q (file %s) has an incomplete foreign key", name, source)
			}
			meta.ForeignKeys[column] = parent
		}
	}

	if len(raw.Relationships) > 0 {
		meta.Relationships = make(map[string]RelationshipMeta, len(raw.Relationships))
		for relName, rel := range raw.Relationships {
			relName = strings.TrimSpace(relName)
			if relName == "" {
				return TableMeta{}, fmt.Errorf("schema: table %q (file %s) has a relationship with an empty name", name, source)
			}
			rawKind := rel.Kind
			if strings.TrimSpace(rawKind) == "" {
				rawKind = rel.Type
			}
			kind, ok := normalizeRelationshipKind(rawKind)
			if !ok {
				return TableMeta{}, fmt.Errorf("schema: table %q (file %s) relationship %q has unknown kind %q", name, source, relName, rawKind)
			}
			meta.Relationships[relName] = RelationshipMeta{
				Kind:        kind,
				ParentKey:   strings.TrimSpace(rel.ParentKey),
				ParentTable: strings.TrimSpace(rel.ParentTable),
				ChildKey:    strings.TrimSpace(rel.ChildKey),
				ChildTable:  strings.TrimSpace(rel.ChildTable),
			}
		}
	}
	return meta, nil
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func isSchemaFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
