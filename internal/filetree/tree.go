// Package filetree holds the hierarchical project tree and the pure fold that
// applies build steps to it.
package filetree

import (
	"strings"
)

// ItemType distinguishes files from folders.
type ItemType string

const (
	TypeFile   ItemType = "file"
	TypeFolder ItemType = "folder"
)

// Item is one node of the tree. Path is the full slash-separated path from the
// root without a leading slash; it is unique within a tree.
type Item struct {
	Name     string   `json:"name" yaml:"name"`
	Type     ItemType `json:"type" yaml:"type"`
	Path     string   `json:"path" yaml:"path"`
	Content  string   `json:"content,omitempty" yaml:"content,omitempty"`
	Children []*Item  `json:"children,omitempty" yaml:"children,omitempty"`
}

// IsFolder reports whether the item is a folder.
func (i *Item) IsFolder() bool {
	return i.Type == TypeFolder
}

func (i *Item) clone() *Item {
	c := &Item{
		Name:    i.Name,
		Type:    i.Type,
		Path:    i.Path,
		Content: i.Content,
	}
	if i.Children != nil {
		c.Children = make([]*Item, len(i.Children))
		for n, ch := range i.Children {
			c.Children[n] = ch.clone()
		}
	}
	return c
}

// Tree is an ordered forest of top-level items. The zero value is an empty tree.
type Tree struct {
	Roots []*Item `json:"roots" yaml:"roots"`
}

// Stats counts the nodes of a tree.
type Stats struct {
	Files   int `json:"files"`
	Folders int `json:"folders"`
}

// Clone returns a deep copy of the tree.
func (t Tree) Clone() Tree {
	if t.Roots == nil {
		return Tree{}
	}
	out := Tree{Roots: make([]*Item, len(t.Roots))}
	for n, r := range t.Roots {
		out.Roots[n] = r.clone()
	}
	return out
}

// Empty reports whether the tree has no nodes.
func (t Tree) Empty() bool {
	return len(t.Roots) == 0
}

// Find returns the item at path. Leading slashes, empty segments and "."
// segments are ignored, matching how step paths are placed.
func (t Tree) Find(path string) (*Item, bool) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, false
	}

	level := t.Roots
	var cur *Item
	for _, seg := range segs {
		if cur = find(level, seg); cur == nil {
			return nil, false
		}
		level = cur.Children
	}
	return cur, cur != nil
}

// Walk visits every item depth first in insertion order. Returning a non-nil
// error from fn stops the walk and returns that error.
func (t Tree) Walk(fn func(depth int, item *Item) error) error {
	var visit func(depth int, items []*Item) error
	visit = func(depth int, items []*Item) error {
		for _, it := range items {
			if err := fn(depth, it); err != nil {
				return err
			}
			if it.IsFolder() {
				if err := visit(depth+1, it.Children); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return visit(0, t.Roots)
}

// Stats counts files and folders.
func (t Tree) Stats() Stats {
	var s Stats
	_ = t.Walk(func(_ int, it *Item) error {
		if it.IsFolder() {
			s.Folders++
		} else {
			s.Files++
		}
		return nil
	})
	return s
}

// Paths lists every item path in walk order.
func (t Tree) Paths() []string {
	var out []string
	_ = t.Walk(func(_ int, it *Item) error {
		out = append(out, it.Path)
		return nil
	})
	return out
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// splitPath normalises a step path into segments.
func splitPath(path string) ([]string, error) {
	raw := strings.Split(path, "/")
	segs := make([]string, 0, len(raw))
	for _, s := range raw {
		switch s {
		case "", ".":
			continue
		case "..":
			return nil, errParentSegment
		}
		segs = append(segs, s)
	}
	if len(segs) == 0 {
		return nil, errEmptyPath
	}
	return segs, nil
}
