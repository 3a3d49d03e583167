// Package mount projects a file tree into the nested record a sandbox mounts.
package mount

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/felixgeelhaar/blitz/internal/filetree"
)

// Record maps entry names to files or directories at one level.
type Record map[string]Entry

// File holds a file's contents.
type File struct {
	Contents string `json:"contents"`
}

// Entry is either a file or a directory. Exactly one of the two is set.
type Entry struct {
	File      *File
	Directory Record
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.File == nil
}

// MarshalJSON encodes the entry as {"file":{...}} or {"directory":{...}}.
// An empty directory is encoded as {"directory":{}}.
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.File != nil {
		return json.Marshal(struct {
			File *File `json:"file"`
		}{e.File})
	}
	dir := e.Directory
	if dir == nil {
		dir = Record{}
	}
	return json.Marshal(struct {
		Directory Record `json:"directory"`
	}{dir})
}

// UnmarshalJSON decodes either entry form.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw struct {
		File      *File  `json:"file"`
		Directory Record `json:"directory"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.File != nil && raw.Directory != nil {
		return fmt.Errorf("mount entry has both file and directory")
	}
	e.File = raw.File
	e.Directory = raw.Directory
	if e.File == nil && e.Directory == nil {
		e.Directory = Record{}
	}
	return nil
}

// Project converts tree into a mount record. It is pure and deterministic:
// equal trees always yield equal records.
func Project(tree filetree.Tree) Record {
	return projectLevel(tree.Roots)
}

func projectLevel(items []*filetree.Item) Record {
	rec := make(Record, len(items))
	for _, it := range items {
		if it.IsFolder() {
			rec[it.Name] = Entry{Directory: projectLevel(it.Children)}
			continue
		}
		rec[it.Name] = Entry{File: &File{Contents: it.Content}}
	}
	return rec
}

// Canonicalize returns the record as JSON with sorted keys.
func Canonicalize(rec Record) ([]byte, error) {
	if rec == nil {
		rec = Record{}
	}
	// encoding/json sorts map keys, which is all the ordering a record has.
	return json.Marshal(rec)
}

// Digest returns the hex BLAKE3 hash of the canonical record, used to skip
// re-mounting a record that has not changed.
func Digest(rec Record) (string, error) {
	canonical, err := Canonicalize(rec)
	if err != nil {
		return "", fmt.Errorf("canonicalize mount record: %w", err)
	}

	hasher := blake3.New()
	if _, err := hasher.Write(canonical); err != nil {
		return "", fmt.Errorf("hash mount record: %w", err)
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// Files flattens the record into slash-separated path to contents.
func Files(rec Record) map[string]string {
	out := make(map[string]string)
	var walk func(prefix string, r Record)
	walk = func(prefix string, r Record) {
		for name, e := range r {
			p := name
			if prefix != "" {
				p = prefix + "/" + name
			}
			if e.IsDir() {
				walk(p, e.Directory)
				continue
			}
			out[p] = e.File.Contents
		}
	}
	walk("", rec)
	return out
}

// Names returns the entry names of one level in sorted order.
func (r Record) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
