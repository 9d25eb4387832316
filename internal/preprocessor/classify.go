package preprocessor

import (
	"regexp"
)

// ---------------- Line classification ----------------

// Kind is a set of categories. The tests are independent, so one line may
// carry several of them (e.g. "#define FOO_H_" is both a guard directive and
// a define).
type Kind uint16

const (
	KindInclude     Kind = 1 << iota // #include "ref"
	KindGuard                        // any directive naming a <prefix>_*_H_ macro
	KindGuardOpen                    // #ifndef <prefix>_*_H_
	KindGuardClose                   // #endif // <prefix>_*_H_
	KindDefine                       // #define
	KindImplOpen                     // #ifdef <impl symbol>
	KindCommentOpen                  // /*
	KindCommentCont                  //  *
	KindBlank
)

func (k Kind) Has(f Kind) bool { return k&f != 0 }

func (k Kind) String() string {
	names := []string{"include", "guard", "guard-open", "guard-close", "define", "impl-open", "comment-open", "comment-cont", "blank"}
	s := ""
	for i, n := range names {
		if k&(1<<i) != 0 {
			if s != "" {
				s += "|"
			}
			s += n
		}
	}
	if s == "" {
		return "text"
	}
	return s
}

// Line is one input line (terminator removed) together with its categories.
type Line struct {
	Text string
	Kind Kind
	Ref  string
}

type Classifier struct {
	include     *regexp.Regexp
	guard       *regexp.Regexp
	guardOpen   *regexp.Regexp
	guardClose  *regexp.Regexp
	define      *regexp.Regexp
	implOpen    *regexp.Regexp
	commentOpen *regexp.Regexp
	commentCont *regexp.Regexp
	blank       *regexp.Regexp
}

// NewClassifier builds the pattern table for a guard naming convention
// (<guardPrefix>_*_H_) and an implementation-region symbol.
func NewClassifier(guardPrefix, implSymbol string) *Classifier {
	gp := regexp.QuoteMeta(guardPrefix)
	return &Classifier{
		include:     regexp.MustCompile(`^\s*#\s*include\s*"(.*)"`),
		guard:       regexp.MustCompile(`^\s*#.*` + gp + `_.*_H_`),
		guardOpen:   regexp.MustCompile(`^\s*#ifndef ` + gp + `_.*_H_`),
		guardClose:  regexp.MustCompile(`^\s*#endif // ` + gp + `_.*_H_`),
		define:      regexp.MustCompile(`^\s*#define`),
		implOpen:    regexp.MustCompile(`^\s*#ifdef ` + regexp.QuoteMeta(implSymbol)),
		commentOpen: regexp.MustCompile(`^\s*/\*`),
		commentCont: regexp.MustCompile(`^ \*`),
		blank:       regexp.MustCompile(`^\s*$`),
	}
}

// Classify runs every pattern against text. Guard open and close are
// exclusive in that order; everything else is tested independently.
func (c *Classifier) Classify(text string) Line {
	l := Line{Text: text}
	switch {
	case c.guardOpen.MatchString(text):
		l.Kind |= KindGuardOpen
	case c.guardClose.MatchString(text):
		l.Kind |= KindGuardClose
	}
	if m := c.include.FindStringSubmatch(text); m != nil {
		l.Kind |= KindInclude
		l.Ref = m[1]
	}
	if c.implOpen.MatchString(text) {
		l.Kind |= KindImplOpen
	}
	if c.guard.MatchString(text) {
		l.Kind |= KindGuard
	}
	if c.define.MatchString(text) {
		l.Kind |= KindDefine
	}
	if c.commentOpen.MatchString(text) {
		l.Kind |= KindCommentOpen
	}
	if c.commentCont.MatchString(text) {
		l.Kind |= KindCommentCont
	}
	if c.blank.MatchString(text) {
		l.Kind |= KindBlank
	}
	return l
}
