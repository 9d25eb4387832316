package preprocessor

import (
	"fmt"
	"io"
	"strings"
	"unicode"
)

// ---------------- Output policy ----------------

// MarkerPrefix starts the provenance line written at every include site.
const MarkerPrefix = "// #included from: "

type policy struct {
	includeImpl bool
}

// open reports whether anything may be written right now. With
// implementation code disabled, nothing inside an open region is written,
// provenance markers included.
func (p policy) open(d *depthTracker) bool {
	return p.includeImpl || !d.InImpl()
}

// admit decides whether a non-include line is written. Guard directives
// are structural and dropped, except defines which are always kept. Block
// comment lines are dropped; the emitter writes a single banner instead.
func (p policy) admit(l Line, d *depthTracker) bool {
	if !p.open(d) {
		return false
	}
	if l.Kind.Has(KindGuard) && !l.Kind.Has(KindDefine) {
		return false
	}
	if l.Kind.Has(KindCommentOpen | KindCommentCont) {
		return false
	}
	return true
}

// Output is the append-only body of one run. A blank line directly after
// another blank line is dropped, so runs of blanks collapse to one.
type Output struct {
	lines     []string
	lastBlank bool
	markers   int
}

func (o *Output) writeLine(s string) {
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	blank := s == ""
	if blank && o.lastBlank {
		return
	}
	o.lastBlank = blank
	o.lines = append(o.lines, s)
}

func (o *Output) writeMarker(ref string) {
	o.markers++
	o.writeLine(MarkerPrefix + ref)
}

// Lines returns the emitted lines without terminators.
func (o *Output) Lines() []string { return o.lines }

// Markers returns how many provenance markers were written.
func (o *Output) Markers() int { return o.markers }

// WriteTo writes every line followed by '\n'.
func (o *Output) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, l := range o.lines {
		m, err := fmt.Fprintln(w, l)
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
