package index

import (
	"os"
	"path/filepath"

	"github.com/zjrosen/gto/internal/log"
	"github.com/zjrosen/gto/internal/registry/errs"
)

// Change describes an index file edit: the file content before and
// after, for diff rendering at the boundary.
type Change struct {
	Path   string
	Before string
	After  string
}

// Writer edits the index file in the working tree.
type Writer struct {
	root string // repo root
	path string // index path relative to root
}

// NewWriter creates a Writer for the index file at path under root.
func NewWriter(root, path string) *Writer {
	return &Writer{root: root, path: path}
}

func (w *Writer) fullPath() string {
	return filepath.Join(w.root, w.path)
}

func (w *Writer) load() (Index, string, error) {
	data, err := os.ReadFile(w.fullPath())
	if err != nil {
		if os.IsNotExist(err) {
			return Index{}, "", nil
		}
		return nil, "", errs.Wrap(errs.KindRepository, err, "reading %s", w.path)
	}
	idx, err := Parse(data)
	if err != nil {
		return nil, "", err
	}
	return idx, string(data), nil
}

func (w *Writer) save(idx Index, before string) (Change, error) {
	data, err := Marshal(idx)
	if err != nil {
		return Change{}, errs.Wrap(errs.KindRepository, err, "encoding %s", w.path)
	}
	if err := os.WriteFile(w.fullPath(), data, 0o644); err != nil { //nolint:gosec // G306: index is a tracked repo file
		return Change{}, errs.Wrap(errs.KindRepository, err, "writing %s", w.path)
	}
	return Change{Path: w.path, Before: before, After: string(data)}, nil
}

// Annotate adds or updates an artifact row. Zero-valued inputs leave
// the existing field untouched so repeated annotate calls compose.
func (w *Writer) Annotate(name string, update Artifact, setVirtual bool) (Change, error) {
	idx, before, err := w.load()
	if err != nil {
		return Change{}, err
	}
	row, exists := idx[name]
	if !exists {
		row = Artifact{Virtual: true}
	}
	if update.Type != "" {
		row.Type = update.Type
	}
	if update.Path != "" {
		row.Path = update.Path
	}
	if setVirtual {
		row.Virtual = update.Virtual
	}
	if len(update.Labels) > 0 {
		row.Labels = mergeLabels(row.Labels, update.Labels)
	}
	if update.Description != "" {
		row.Description = update.Description
	}
	for k, v := range update.Custom {
		if row.Custom == nil {
			row.Custom = map[string]any{}
		}
		row.Custom[k] = v
	}
	idx[name] = row

	log.Info(log.CatIndex, "Annotating artifact", "name", name, "created", !exists)
	return w.save(idx, before)
}

// Remove deletes an artifact row.
func (w *Writer) Remove(name string) (Change, error) {
	idx, before, err := w.load()
	if err != nil {
		return Change{}, err
	}
	if _, ok := idx[name]; !ok {
		return Change{}, errs.New(errs.KindNotFound, "artifact %q is not in the index", name).WithInput(name)
	}
	delete(idx, name)

	log.Info(log.CatIndex, "Removing artifact from index", "name", name)
	return w.save(idx, before)
}

func mergeLabels(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	out := append([]string(nil), existing...)
	for _, l := range existing {
		seen[l] = true
	}
	for _, l := range added {
		if !seen[l] {
			out = append(out, l)
			seen[l] = true
		}
	}
	return out
}
