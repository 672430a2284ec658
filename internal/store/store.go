// Package store persists records as markdown notes with YAML
// frontmatter under a base directory. A record's identifier is its
// path relative to the base directory, without the .md extension, so
// identity is stable across process restarts.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"notecal/internal/model"
)

// ErrNotFound is returned when an operation targets a record that no
// longer exists.
var ErrNotFound = errors.New("record not found")

// ErrExists is returned by Create when the name is already taken.
var ErrExists = errors.New("record already exists")

const noteExt = ".md"

var frontmatterDelim = []byte("---")

// NoteStore is a filesystem-backed record store.
type NoteStore struct {
	dir string
}

// Open returns a NoteStore rooted at dir, creating it if needed.
func Open(dir string) (*NoteStore, error) {
	if dir == "" {
		return nil, errors.New("note directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create note directory: %w", err)
	}
	return &NoteStore{dir: dir}, nil
}

// Dir returns the store's base directory.
func (s *NoteStore) Dir() string { return s.dir }

func (s *NoteStore) pathFor(id string) string {
	return filepath.Join(s.dir, filepath.FromSlash(id)+noteExt)
}

// Exists reports whether a record name is already taken.
func (s *NoteStore) Exists(name string) bool {
	_, err := os.Stat(s.pathFor(name))
	return err == nil
}

// Create writes a new note with the given fields and an empty body.
// The name becomes the record id; creating over an existing note fails.
func (s *NoteStore) Create(name string, fields map[string]any) (model.Record, error) {
	if name == "" {
		return model.Record{}, errors.New("record name is empty")
	}
	path := s.pathFor(name)
	if _, err := os.Stat(path); err == nil {
		return model.Record{}, fmt.Errorf("%w: %s", ErrExists, name)
	}

	rec := model.Record{ID: name, Fields: fields}
	if rec.Fields == nil {
		rec.Fields = make(map[string]any)
	}
	if err := s.write(path, rec.Fields, nil); err != nil {
		return model.Record{}, err
	}
	return rec, nil
}

// Update rewrites the note's frontmatter, preserving its body. It fails
// if the identified record no longer exists.
func (s *NoteStore) Update(rec model.Record) error {
	if rec.ID == "" {
		return errors.New("record id is empty")
	}
	path := s.pathFor(rec.ID)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, rec.ID)
		}
		return err
	}

	_, body := splitFrontmatter(data)
	return s.write(path, rec.Fields, body)
}

// Delete removes a note; a missing id is not an error.
func (s *NoteStore) Delete(id string) error {
	if id == "" {
		return nil
	}
	err := os.Remove(s.pathFor(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Records walks the base directory and returns a snapshot of all notes,
// ordered by id. Notes that fail to parse are skipped.
func (s *NoteStore) Records() ([]model.Record, error) {
	var out []model.Record

	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), noteExt) {
			return nil
		}

		rel, rerr := filepath.Rel(s.dir, path)
		if rerr != nil {
			return rerr
		}
		id := filepath.ToSlash(strings.TrimSuffix(rel, noteExt))

		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return rerr
		}

		fields, _ := splitFrontmatter(data)
		rec := model.Record{ID: id, Fields: fields}
		if rec.Fields == nil {
			rec.Fields = make(map[string]any)
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// write renders frontmatter + body and replaces the note atomically
// (temp file in the same directory, then rename).
func (s *NoteStore) write(path string, fields map[string]any, body []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Write(frontmatterDelim)
	buf.WriteByte('\n')

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(orderedFields(fields)); err != nil {
		return fmt.Errorf("encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}

	buf.Write(frontmatterDelim)
	buf.WriteByte('\n')
	if len(body) > 0 {
		buf.Write(body)
	}

	tmp, err := os.CreateTemp(dir, ".notecal-note-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// orderedFields renders fields as a yaml mapping with sorted keys so
// rewrites are deterministic and diffs stay small.
func orderedFields(fields map[string]any) *yaml.Node {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		var keyNode, valNode yaml.Node
		keyNode.SetString(k)
		if err := valNode.Encode(fields[k]); err != nil {
			continue
		}
		node.Content = append(node.Content, &keyNode, &valNode)
	}
	return node
}

// splitFrontmatter separates a note into its parsed frontmatter fields
// and raw body. Notes without frontmatter have all content as body.
func splitFrontmatter(data []byte) (map[string]any, []byte) {
	if !bytes.HasPrefix(data, frontmatterDelim) {
		return nil, data
	}
	rest := data[len(frontmatterDelim):]
	if len(rest) == 0 || (rest[0] != '\n' && !bytes.HasPrefix(rest, []byte("\r\n"))) {
		return nil, data
	}
	rest = rest[bytes.IndexByte(rest, '\n')+1:]

	end := bytes.Index(rest, append([]byte("\n"), frontmatterDelim...))
	var yamlPart, body []byte
	if end < 0 {
		yamlPart = rest
	} else {
		yamlPart = rest[:end]
		body = rest[end+1+len(frontmatterDelim):]
		// Drop the delimiter's trailing newline.
		if i := bytes.IndexByte(body, '\n'); i >= 0 {
			body = body[i+1:]
		} else {
			body = nil
		}
	}

	var fields map[string]any
	if err := yaml.Unmarshal(yamlPart, &fields); err != nil {
		return nil, data
	}
	return fields, body
}
