package filetree

import (
	stderrors "errors"

	"github.com/felixgeelhaar/blitz/internal/errors"
	"github.com/felixgeelhaar/blitz/internal/step"
)

var (
	errEmptyPath     = stderrors.New("path is empty")
	errParentSegment = stderrors.New("path contains a '..' segment")
)

// Failure is a step that could not be placed in the tree. The step stays pending.
type Failure struct {
	Step step.Step `json:"step"`
	Err  error     `json:"-"`
}

// Result reports what a fold did.
type Result struct {
	// Applied holds the ids of file and folder steps whose effect is in the new tree.
	Applied []int64
	// Commands holds run-command steps, in order, for dispatch to a sandbox.
	Commands []step.Step
	Failed   []Failure
}

// Apply folds steps into a copy of tree and returns the new tree. The input
// tree is never modified. Steps are applied in the order given; a later step
// writing the same file replaces its content.
func Apply(tree Tree, steps []step.Step) (Tree, Result) {
	out := tree.Clone()
	var res Result

	for _, st := range steps {
		var err error
		switch {
		case st.Kind == step.KindRunCommand:
			res.Commands = append(res.Commands, st)
			continue
		case st.Kind.WritesFile():
			err = out.writeFile(st.Path, st.Content)
		case st.Kind == step.KindCreateFolder:
			err = out.makeFolder(st.Path)
		default:
			err = errors.New(errors.ErrCodeTreeMalformedPath, "unsupported step kind "+string(st.Kind))
		}

		if err != nil {
			res.Failed = append(res.Failed, Failure{Step: st, Err: err})
			continue
		}
		res.Applied = append(res.Applied, st.ID)
	}

	return out, res
}

// writeFile creates or overwrites the file at path, creating missing parent
// folders. Conflicts are detected before any node is created.
func (t *Tree) writeFile(path, content string) error {
	segs, err := splitPath(path)
	if err != nil {
		return errors.NewMalformedPathError(path, err.Error())
	}

	level := &t.Roots
	cum := ""
	for n, seg := range segs {
		cum = joinPath(cum, seg)
		existing := find(*level, seg)
		last := n == len(segs)-1

		if last {
			switch {
			case existing == nil:
				*level = append(*level, &Item{Name: seg, Type: TypeFile, Path: cum, Content: content})
			case existing.IsFolder():
				return errors.NewTypeConflictError(cum, string(TypeFolder))
			default:
				existing.Content = content
			}
			return nil
		}

		switch {
		case existing == nil:
			existing = &Item{Name: seg, Type: TypeFolder, Path: cum, Children: []*Item{}}
			*level = append(*level, existing)
		case !existing.IsFolder():
			return errors.NewTypeConflictError(cum, string(TypeFile))
		}
		level = &existing.Children
	}
	return nil
}

// makeFolder creates every segment of path as a folder. Existing folders are reused.
func (t *Tree) makeFolder(path string) error {
	segs, err := splitPath(path)
	if err != nil {
		return errors.NewMalformedPathError(path, err.Error())
	}

	// Check first so a conflict leaves the tree untouched.
	level := t.Roots
	cum := ""
	for _, seg := range segs {
		cum = joinPath(cum, seg)
		existing := find(level, seg)
		if existing == nil {
			break
		}
		if !existing.IsFolder() {
			return errors.NewTypeConflictError(cum, string(TypeFile))
		}
		level = existing.Children
	}

	lvl := &t.Roots
	cum = ""
	for _, seg := range segs {
		cum = joinPath(cum, seg)
		existing := find(*lvl, seg)
		if existing == nil {
			existing = &Item{Name: seg, Type: TypeFolder, Path: cum, Children: []*Item{}}
			*lvl = append(*lvl, existing)
		}
		lvl = &existing.Children
	}
	return nil
}

func find(items []*Item, name string) *Item {
	for _, it := range items {
		if it.Name == name {
			return it
		}
	}
	return nil
}
