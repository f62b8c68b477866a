// Package standards gathers a project's coding conventions into one opaque
// text block that review prompts can cite.
package standards

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Well-known convention files, probed in order. The list favors prose
// guidelines first, then tool configs.
var standardsFiles = []string{
	"CLAUDE.md",
	"CONTRIBUTING.md",
	"STYLE.md",
	"docs/style.md",
	".editorconfig",
	".golangci.yml",
	".golangci.yaml",
	".eslintrc.json",
	".prettierrc",
	"ruff.toml",
}

const (
	maxPerFile = 4 * 1024
	maxTotal   = 16 * 1024
)

// Source names one file that contributed to the standards block.
type Source struct {
	Path string
	Size int
}

// Gather reads every standards file present under root and concatenates
// them, capping each file and the total so prompts stay bounded. Returns
// the block plus the sources that contributed.
func Gather(root string) (string, []Source) {
	var sb strings.Builder
	var sources []Source

	for _, name := range standardsFiles {
		if sb.Len() >= maxTotal {
			break
		}
		path := filepath.Join(root, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			continue
		}
		if len(text) > maxPerFile {
			text = text[:maxPerFile] + "\n[truncated]"
		}

		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", name, text)
		sources = append(sources, Source{Path: name, Size: len(data)})
	}

	return strings.TrimSpace(sb.String()), sources
}
