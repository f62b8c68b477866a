// Package diff turns raw unified diff text into review-ready change units.
package diff

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"github.com/joescharf/cr/internal/models"
)

// LineSet maps new-side line numbers to the text added at that line.
type LineSet map[int]string

// Contains reports whether line n was added or modified in the diff.
func (s LineSet) Contains(n int) bool {
	_, ok := s[n]
	return ok
}

// Overlaps reports whether any line in [start, end] is in the set.
func (s LineSet) Overlaps(start, end int) bool {
	for n := start; n <= end; n++ {
		if s.Contains(n) {
			return true
		}
	}
	return false
}

// ChangeSet is the parsed, filtered form of one diff: the units handed to
// analysis plus the changed-line sets evidence grounding checks against.
type ChangeSet struct {
	Units   []models.ChangeUnit
	Changed map[string]LineSet
	Skipped []string // paths filtered out before review
}

// Paths returns the reviewed file paths in diff order.
func (cs *ChangeSet) Paths() []string {
	paths := make([]string, len(cs.Units))
	for i, u := range cs.Units {
		paths[i] = u.Path
	}
	return paths
}

// Lines returns the changed-line set for path, which may be empty.
func (cs *ChangeSet) Lines(path string) LineSet {
	if ls, ok := cs.Changed[path]; ok {
		return ls
	}
	return LineSet{}
}

// lockfiles and generated artifacts that add noise without review value.
var skipNames = map[string]bool{
	"go.sum":            true,
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"cargo.lock":        true,
	"gemfile.lock":      true,
	"poetry.lock":       true,
	"composer.lock":     true,
}

var skipDirs = []string{
	"vendor/",
	"node_modules/",
	"dist/",
	"build/",
	".next/",
}

var skipExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".ico": true, ".pdf": true, ".woff": true, ".woff2": true,
	".min.js": true,
}

// Skippable reports whether a path should be excluded from review:
// lockfiles, vendored/generated directories, and binary-ish assets.
func Skippable(path string) bool {
	if skipNames[strings.ToLower(filepath.Base(path))] {
		return true
	}
	for _, dir := range skipDirs {
		if strings.HasPrefix(path, dir) || strings.Contains(path, "/"+dir) {
			return true
		}
	}
	if strings.HasSuffix(path, ".min.js") || strings.HasSuffix(path, ".min.css") {
		return true
	}
	return skipExts[strings.ToLower(filepath.Ext(path))]
}

// Parse reads unified diff text and returns the filtered change set.
func Parse(raw string) (*ChangeSet, error) {
	files, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	cs := &ChangeSet{Changed: make(map[string]LineSet)}
	for _, f := range files {
		path := f.NewName
		if path == "" {
			path = f.OldName
		}

		if f.IsBinary || Skippable(path) {
			cs.Skipped = append(cs.Skipped, path)
			continue
		}

		unit := models.ChangeUnit{
			Path: path,
			Type: changeType(f),
		}

		lines := LineSet{}
		var content strings.Builder
		for _, frag := range f.TextFragments {
			content.WriteString(frag.Header())
			content.WriteString("\n")
			newLine := int(frag.NewPosition)
			for _, line := range frag.Lines {
				content.WriteString(line.String())
				switch line.Op {
				case gitdiff.OpAdd:
					lines[newLine] = strings.TrimRight(line.Line, "\n")
					newLine++
				case gitdiff.OpContext:
					newLine++
				}
			}
		}
		unit.Content = content.String()

		cs.Units = append(cs.Units, unit)
		cs.Changed[path] = lines
	}

	return cs, nil
}

func changeType(f *gitdiff.File) models.ChangeType {
	switch {
	case f.IsNew:
		return models.ChangeTypeAdd
	case f.IsDelete:
		return models.ChangeTypeDelete
	default:
		return models.ChangeTypeModify
	}
}
