package preprocessor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ---------------- Include resolution ----------------

var (
	ErrUnresolvedInclude = errors.New("unresolved include")
	ErrIncludeCycle      = errors.New("include cycle")
)

// IncludeError reports an include reference found at neither candidate
// location.
type IncludeError struct {
	File       string
	Line       int
	Ref        string
	Candidates []string
}

func (e *IncludeError) Error() string {
	return fmt.Sprintf("%s:%d: include %q: not found (tried %s)",
		shortPath(e.File), e.Line, e.Ref, strings.Join(e.Candidates, ", "))
}

func (e *IncludeError) Unwrap() error { return ErrUnresolvedInclude }

// splitRef splits an include reference at its last '/' into directory
// part (with the trailing slash) and bare file name.
func splitRef(ref string) (dir, name string) {
	i := strings.LastIndexByte(ref, '/')
	if i < 0 {
		return "", ref
	}
	return ref[:i+1], ref[i+1:]
}

// headerName is the deduplication key of an include reference.
func headerName(ref string) string {
	_, name := splitRef(ref)
	return name
}

// candidates lists, in order, where ref is looked up when included from a
// file in fromDir: next to the including file, then under the root include
// directory. An "internal/x.h" reference made from inside the internal
// directory itself is local.
func (p *Preprocessor) candidates(ref, fromDir string) []string {
	dir, name := splitRef(ref)
	if p.InternalDir != "" && dir == p.InternalDir+"/" && filepath.Base(fromDir) == p.InternalDir {
		dir = ""
	}
	return []string{
		filepath.Join(fromDir, filepath.FromSlash(dir), name),
		filepath.Join(p.RootDir, filepath.FromSlash(dir), name),
	}
}

// resolve returns the first candidate that exists.
func (p *Preprocessor) resolve(ref, fromDir string) (string, []string, bool) {
	cands := p.candidates(ref, fromDir)
	for _, c := range cands {
		if fileExists(c) {
			return filepath.Clean(c), cands, true
		}
	}
	return "", cands, false
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

func shortPath(p string) string {
	// nicer errors
	if p == "" {
		return p
	}
	return filepath.Base(p)
}
