package preprocessor

// ---------------- Conditionals ----------------

// depthTracker counts guard nesting across the whole run (the expanded text
// is one linear stream, so file boundaries do not reset it) and remembers
// the depth at which an implementation region was entered.
//
// Opens and closes are not checked for balance.
type depthTracker struct {
	depth     int
	inImpl    bool
	implDepth int
}

func newDepthTracker() *depthTracker { return &depthTracker{} }

func (d *depthTracker) Depth() int { return d.depth }

func (d *depthTracker) Open() { d.depth++ }

// Close leaves one guard level; the implementation region ends when the
// depth returns to the value recorded when it began.
func (d *depthTracker) Close() {
	d.depth--
	if d.inImpl && d.depth == d.implDepth {
		d.inImpl = false
	}
}

// MarkImpl records the current depth as the start of an implementation
// region. Nested markers are ignored: the first one wins until it closes.
func (d *depthTracker) MarkImpl() {
	if d.inImpl {
		return
	}
	d.inImpl = true
	d.implDepth = d.depth
}

func (d *depthTracker) InImpl() bool { return d.inImpl }

// Apply updates the tracker for one classified line.
func (d *depthTracker) Apply(l Line) {
	switch {
	case l.Kind.Has(KindGuardOpen):
		d.Open()
	case l.Kind.Has(KindGuardClose):
		d.Close()
	}
}
