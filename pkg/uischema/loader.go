package uischema

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFS walks the provided filesystem and parses JSON/YAML UI documents.
// Screens are appended in walk order (lexical by path). When fsys is nil or no
// documents are present, the returned config is empty.
func LoadFS(fsys fs.FS) (Config, error) {
	var cfg Config
	if fsys == nil {
		return cfg, nil
	}

	ids := make(map[string]string)
	err := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() {
			return nil
		}
		if !isSchemaFile(path) {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("uischema: read %s: %w", path, err)
		}

		doc, err := Parse(data, path)
		if err != nil {
			return err
		}
		for _, screen := range doc.Screens {
			if previous, exists := ids[screen.ID]; exists {
				return fmt.Errorf("uischema: duplicate screen %q (files %s and %s)", screen.ID, previous, path)
			}
			ids[screen.ID] = path
			cfg.Screens = append(cfg.Screens, screen)
		}
		return nil
	})
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Parse decodes one UI document. JSON is attempted first, then YAML.
func Parse(data []byte, source string) (Config, error) {
	doc, err := parseDocument(data, source)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{Screens: make([]Screen, 0, len(doc.Screens))}
	for idx, raw := range doc.Screens {
		screen, err := normaliseScreen(raw, idx, source)
		if err != nil {
			return Config{}, err
		}
		cfg.Screens = append(cfg.Screens, screen)
	}
	return cfg, nil
}

type documentFile struct {
	Screens []screenFile `json:"screens" yaml:"screens"`
}

type screenFile struct {
	ID          string        `json:"id" yaml:"id"`
	Table       string        `json:"table" yaml:"table"`
	Title       string        `json:"title" yaml:"title"`
	Description string        `json:"description" yaml:"description"`
	Sections    []sectionFile `json:"sections" yaml:"sections"`
}

type sectionFile struct {
	ID                   string      `json:"id" yaml:"id"`
	Title                string      `json:"title" yaml:"title"`
	Description          string      `json:"description" yaml:"description"`
	IsBusinessKeySection bool        `json:"isBusinessKeySection" yaml:"isBusinessKeySection"`
	Fields               []Field     `json:"fields" yaml:"fields"`
	Nested               *repeatFile `json:"nested" yaml:"nested"`
	Repeat               *repeatFile `json:"repeat" yaml:"repeat"`
}

type repeatFile struct {
	Table    string        `json:"table" yaml:"table"`
	Title    string        `json:"title" yaml:"title"`
	MinRows  int           `json:"minRows" yaml:"minRows"`
	Sections []sectionFile `json:"sections" yaml:"sections"`
}

func parseDocument(data []byte, source string) (documentFile, error) {
	var doc documentFile
	if len(strings.TrimSpace(string(data))) == 0 {
		return documentFile{}, fmt.Errorf("uischema: file %s is empty", source)
	}

	if err := json.Unmarshal(data, &doc); err == nil {
		return doc, nil
	}

	doc = documentFile{}
	if err := yaml.Unmarshal(data, &doc); err == nil {
		return doc, nil
	}

	return documentFile{}, fmt.Errorf("uischema: parse %s: invalid JSON or YAML", source)
}

func normaliseScreen(raw screenFile, idx int, source string) (Screen, error) {
	table := strings.TrimSpace(raw.Table)
	if table == "" {
		return Screen{}, fmt.Errorf("uischema: file %s screen %d has no table", source, idx)
	}
	id := strings.TrimSpace(raw.ID)
	if id == "" {
		id = table
	}

	screen := Screen{
		ID:          id,
		Table:       table,
		Title:       strings.TrimSpace(raw.Title),
		Description: strings.TrimSpace(raw.Description),
	}
	sections, err := normaliseSections(raw.Sections, id, source)
	if err != nil {
		return Screen{}, err
	}
	screen.Sections = sections
	return screen, nil
}

// normaliseSections converts file sections into the tagged variant. Nested
// repeat blocks are flattened with an explicit work list rather than
// recursion; each entry writes its converted sections back into its parent.
func normaliseSections(raw []sectionFile, owner, source string) ([]Section, error) {
	type pending struct {
		raw    []sectionFile
		owner  string
		assign func([]Section)
	}

	var root []Section
	work := []pending{{raw: raw, owner: owner, assign: func(out []Section) { root = out }}}

	for len(work) > 0 {
		item := work[len(work)-1]
		work = work[:len(work)-1]

		out := make([]Section, len(item.raw))
		for idx, rawSection := range item.raw {
			section := Section{
				ID:                   strings.TrimSpace(rawSection.ID),
				Title:                strings.TrimSpace(rawSection.Title),
				Description:          strings.TrimSpace(rawSection.Description),
				IsBusinessKeySection: rawSection.IsBusinessKeySection,
			}
			if section.ID == "" {
				section.ID = fmt.Sprintf("%s_%d", item.owner, idx)
			}

			fields, err := normaliseFields(rawSection.Fields, section.ID, source)
			if err != nil {
				return nil, err
			}

			switch {
			case rawSection.Repeat != nil && len(fields) > 0:
				return nil, fmt.Errorf("uischema: file %s section %q declares both fields and a repeat block", source, section.ID)
			case rawSection.Repeat != nil && rawSection.Nested != nil:
				return nil, fmt.Errorf("uischema: file %s section %q declares both nested and repeat blocks", source, section.ID)
			case rawSection.Repeat != nil:
				spec, err := repeatHeader(*rawSection.Repeat, section.ID, source)
				if err != nil {
					return nil, err
				}
				section.Body = Repeat{Spec: spec}
				work = append(work, pending{
					raw:   rawSection.Repeat.Sections,
					owner: section.ID,
					assign: bindRepeat(out, idx, func(s *Section, children []Section) {
						body := s.Body.(Repeat)
						body.Spec.Sections = children
						s.Body = body
					}),
				})
			case rawSection.Nested != nil:
				if len(fields) == 0 {
					return nil, fmt.Errorf("uischema: file %s section %q nests a repeat block without fields of its own", source, section.ID)
				}
				spec, err := repeatHeader(*rawSection.Nested, section.ID, source)
				if err != nil {
					return nil, err
				}
				section.Body = Simple{Fields: fields, Nested: &spec}
				work = append(work, pending{
					raw:   rawSection.Nested.Sections,
					owner: section.ID,
					assign: bindRepeat(out, idx, func(s *Section, children []Section) {
						body := s.Body.(Simple)
						nested := *body.Nested
						nested.Sections = children
						body.Nested = &nested
						s.Body = body
					}),
				})
			default:
				if len(fields) == 0 {
					return nil, fmt.Errorf("uischema: file %s section %q declares neither fields nor a repeat block", source, section.ID)
				}
				section.Body = Simple{Fields: fields}
			}
			out[idx] = section
		}
		item.assign(out)
	}

	return root, nil
}

// bindRepeat returns an assign callback that stores child sections into the
// section at out[idx]. The slice header is shared so the write is visible to
// the parent once it is itself assigned.
func bindRepeat(out []Section, idx int, set func(*Section, []Section)) func([]Section) {
	return func(children []Section) {
		set(&out[idx], children)
	}
}

func repeatHeader(raw repeatFile, sectionID, source string) (RepeatSpec, error) {
	table := strings.TrimSpace(raw.Table)
	if table == "" {
		return RepeatSpec{}, fmt.Errorf("uischema: file %s section %q repeat block has no table", source, sectionID)
	}
	if len(raw.Sections) == 0 {
		return RepeatSpec{}, fmt.Errorf("uischema: file %s section %q repeat block has no sections", source, sectionID)
	}
	if raw.MinRows < 0 {
		return RepeatSpec{}, fmt.Errorf("uischema: file %s section %q repeat block has negative minRows", source, sectionID)
	}
	return RepeatSpec{
		Table:   table,
		Title:   strings.TrimSpace(raw.Title),
		MinRows: raw.MinRows,
	}, nil
}

func normaliseFields(raw []Field, sectionID, source string) ([]Field, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]Field, 0, len(raw))
	for idx, field := range raw {
		field.Name = strings.TrimSpace(field.Name)
		if field.Name == "" {
			return nil, fmt.Errorf("uischema: file %s section %q field %d has no name", source, sectionID, idx)
		}
		if _, dup := seen[field.Name]; dup {
			return nil, fmt.Errorf("uischema: file %s section %q defines duplicate field %q", source, sectionID, field.Name)
		}
		seen[field.Name] = struct{}{}
		field.Widget = strings.ToLower(strings.TrimSpace(field.Widget))
		if len(field.Options) > 0 {
			field.Options = append([]Option(nil), field.Options...)
		}
		out = append(out, field)
	}
	return out, nil
}

func isSchemaFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
