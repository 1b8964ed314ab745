// Package diff renders the change a fix made to the code under review.
package diff

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// File is the parsed diff of one logical file: the code before and after a
// fix.
type File struct {
	Name         string
	Raw          string // unified diff text with display labels
	Fragments    []*gitdiff.TextFragment
	AddedLines   int
	DeletedLines int
}

// Changed reports whether the fix altered anything.
func (f *File) Changed() bool {
	return len(f.Fragments) > 0
}

// Compare produces the unified diff between two versions of the named code.
// It shells out to git, which is already a hard dependency of the review
// workflow's surroundings.
func Compare(name, before, after string) (*File, error) {
	dir, err := os.MkdirTemp("", "revu-diff-")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	beforePath := filepath.Join(dir, "before")
	afterPath := filepath.Join(dir, "after")
	if err := os.WriteFile(beforePath, []byte(before), 0600); err != nil {
		return nil, err
	}
	if err := os.WriteFile(afterPath, []byte(after), 0600); err != nil {
		return nil, err
	}

	// --no-index exits 1 when the files differ; only other codes are errors.
	cmd := exec.Command("git", "diff", "--no-index", "--unified=3", beforePath, afterPath)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			return nil, fmt.Errorf("git diff: %w", err)
		}
	}

	raw := string(out)
	if strings.TrimSpace(raw) == "" {
		return &File{Name: name}, nil
	}

	// Replace the temp paths with stable display labels. Git renders them
	// either with the usual a/ b/ prefixes (leading slash stripped) or as
	// literal absolute paths, so cover both forms.
	raw = strings.ReplaceAll(raw, "a/"+strings.TrimPrefix(beforePath, "/"), "a/"+name)
	raw = strings.ReplaceAll(raw, "b/"+strings.TrimPrefix(afterPath, "/"), "b/"+name)
	raw = strings.ReplaceAll(raw, beforePath, "a/"+name)
	raw = strings.ReplaceAll(raw, afterPath, "b/"+name)

	return Parse(name, raw)
}

// Parse reads a unified diff for a single file.
func Parse(name, raw string) (*File, error) {
	parsed, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	f := &File{Name: name, Raw: raw}
	if len(parsed) == 0 {
		return f, nil
	}

	for _, frag := range parsed[0].TextFragments {
		f.Fragments = append(f.Fragments, frag)
		for _, line := range frag.Lines {
			switch line.Op {
			case gitdiff.OpAdd:
				f.AddedLines++
			case gitdiff.OpDelete:
				f.DeletedLines++
			}
		}
	}
	return f, nil
}
