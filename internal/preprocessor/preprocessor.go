package preprocessor

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ---------------- Preprocessor ----------------

// Preprocessor flattens a tree of headers connected by local #include
// directives into one body. It only recognizes a handful of line patterns
// (see Classifier); no macro is ever expanded.
type Preprocessor struct {
	// RootDir is the fallback include directory.
	RootDir string
	// InternalDir names the conventional internal subdirectory.
	InternalDir string
	// AlwaysExpand lists header names that are expanded at every inclusion.
	AlwaysExpand []string
	// IncludeImpl keeps implementation regions in the output.
	IncludeImpl bool
	Logger      *slog.Logger

	classifier *Classifier
}

func NewPreprocessor(guardPrefix, implSymbol string) *Preprocessor {
	return &Preprocessor{
		InternalDir: "internal",
		IncludeImpl: true,
		classifier:  NewClassifier(guardPrefix, implSymbol),
	}
}

// Result is the outcome of one run.
type Result struct {
	Output *Output
	// Headers lists header names in the order their bodies were expanded.
	Headers []string
	// Files lists the absolute path of every file read, root first.
	Files []string
}

// run holds everything that lives for exactly one traversal.
type run struct {
	p          *Preprocessor
	log        *slog.Logger
	policy     policy
	depth      *depthTracker
	out        *Output
	seen       map[string]bool
	always     map[string]bool
	inProgress map[string]bool
	headers    []string
	files      []string
}

// Process expands root and everything it transitively includes.
func (p *Preprocessor) Process(root string) (*Result, error) {
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	r := &run{
		p:          p,
		log:        log,
		policy:     policy{includeImpl: p.IncludeImpl},
		depth:      newDepthTracker(),
		out:        &Output{},
		seen:       map[string]bool{},
		always:     map[string]bool{},
		inProgress: map[string]bool{},
	}
	for _, name := range p.AlwaysExpand {
		r.always[name] = true
	}
	if err := r.walk(root); err != nil {
		return nil, err
	}
	if d := r.depth.Depth(); d != 0 {
		log.Debug("guard depth not balanced at end of run", "depth", d)
	}
	return &Result{Output: r.out, Headers: r.headers, Files: r.files}, nil
}

func (r *run) walk(filename string) error {
	key, err := filepath.Abs(filename)
	if err != nil {
		key = filepath.Clean(filename)
	}
	if r.inProgress[key] {
		return fmt.Errorf("%w at %q", ErrIncludeCycle, filename)
	}
	r.inProgress[key] = true
	defer delete(r.inProgress, key)

	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	r.files = append(r.files, key)

	dir := filepath.Dir(filename)
	lr := newLineReader(f)
	lineNo := 0
	for {
		line, ok, err := lr.next()
		if err != nil {
			return fmt.Errorf("%s: %w", shortPath(filename), err)
		}
		if !ok {
			return nil
		}
		lineNo++

		l := r.p.classifier.Classify(line)
		r.depth.Apply(l)

		if l.Kind.Has(KindInclude) {
			if err := r.include(l.Ref, dir, filename, lineNo); err != nil {
				return err
			}
			continue
		}

		if l.Kind.Has(KindImplOpen) {
			r.depth.MarkImpl()
		}
		if r.policy.admit(l, r.depth) {
			r.out.writeLine(l.Text)
		}
	}
}

// include writes the provenance marker for ref and expands the header
// unless its name was already expanded earlier in the run.
func (r *run) include(ref, dir, filename string, lineNo int) error {
	if r.policy.open(r.depth) {
		r.out.writeMarker(ref)
	}
	name := headerName(ref)
	if r.seen[name] {
		r.log.Debug("header already expanded", "header", name, "from", shortPath(filename), "line", lineNo)
		return nil
	}
	if !r.always[name] {
		r.seen[name] = true
	}

	resolved, cands, ok := r.p.resolve(ref, dir)
	if !ok {
		return &IncludeError{File: filename, Line: lineNo, Ref: ref, Candidates: cands}
	}
	r.log.Debug("expanding header", "header", name, "path", resolved)
	r.headers = append(r.headers, name)
	return r.walk(resolved)
}

// ---------------- Line reader ----------------

type lineReader struct {
	r *bufio.Reader
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReader(r)}
}

// next returns the next line without its "\n" or "\r\n" terminator.
func (lr *lineReader) next() (line string, ok bool, err error) {
	s, err := lr.r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", false, err
	}
	if len(s) == 0 && err == io.EOF {
		return "", false, nil
	}
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s, true, nil
}
