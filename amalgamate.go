/*
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package amalgamate flattens a header-only library into a single header.
package amalgamate

import (
	"bytes"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/nanostl/amalgamate/internal/preprocessor"
)

// Options describes one amalgamation run.
type Options struct {
	// IncludeDir is the root include directory; RootFile is resolved in it.
	IncludeDir string
	RootFile   string
	// Output is the artifact path, always fully regenerated.
	Output string

	Project   string
	Version   string
	Copyright string

	GuardPrefix        string
	ImplSymbol         string
	InternalDir        string
	AlwaysExpand       []string
	SingleIncludeGuard string

	// IncludeImpl keeps implementation regions in the output.
	IncludeImpl bool

	Logger *slog.Logger
	// Now stamps the banner; defaults to time.Now.
	Now func() time.Time
}

// Result summarizes what a run emitted.
type Result struct {
	// Headers lists expanded header names in expansion order.
	Headers []string
	// Files holds the absolute path of every file read, root first.
	Files   []string
	Lines   int
	Markers int
	Bytes   int
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Render produces the complete single header in memory: banner, top-level
// guard, expanded body of the root file, closing guard.
func Render(opts Options) ([]byte, Result, error) {
	log := opts.logger()

	p := preprocessor.NewPreprocessor(opts.GuardPrefix, opts.ImplSymbol)
	p.RootDir = opts.IncludeDir
	p.InternalDir = opts.InternalDir
	p.AlwaysExpand = opts.AlwaysExpand
	p.IncludeImpl = opts.IncludeImpl
	p.Logger = log

	res, err := p.Process(filepath.Join(opts.IncludeDir, opts.RootFile))
	if err != nil {
		return nil, Result{}, err
	}

	var buf bytes.Buffer
	writeBanner(&buf, opts.Project, opts.Version, opts.Copyright, opts.now())
	fmt.Fprintf(&buf, "#ifndef %s\n", opts.SingleIncludeGuard)
	fmt.Fprintf(&buf, "#define %s\n", opts.SingleIncludeGuard)
	if _, err := res.Output.WriteTo(&buf); err != nil {
		return nil, Result{}, err
	}
	fmt.Fprintf(&buf, "#endif // %s\n\n", opts.SingleIncludeGuard)

	return buf.Bytes(), Result{
		Headers: res.Headers,
		Files:   res.Files,
		Lines:   len(res.Output.Lines()),
		Markers: res.Output.Markers(),
		Bytes:   buf.Len(),
	}, nil
}

// Generate renders the single header and replaces opts.Output with it.
// Nothing is written unless the whole tree was expanded.
func Generate(opts Options) (Result, error) {
	log := opts.logger()
	start := time.Now()
	if !opts.IncludeImpl {
		log.Info("not including impl code")
	}

	data, res, err := Render(opts)
	if err != nil {
		return Result{}, err
	}
	if err := writeFileAtomic(opts.Output, data); err != nil {
		return Result{}, fmt.Errorf("write %s: %w", opts.Output, err)
	}

	log.Info("generated single include",
		"project", opts.Project,
		"version", opts.Version,
		"output", opts.Output,
		"headers", len(res.Headers),
		"lines", res.Lines,
		"dur_ms", time.Since(start).Milliseconds())
	return res, nil
}
