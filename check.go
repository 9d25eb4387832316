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

package amalgamate

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ErrStale is returned by Check when the artifact differs from a fresh render.
var ErrStale = errors.New("single include is out of date")

var generatedLine = regexp.MustCompile(`(?m)^ \* Generated: .*$`)

// Check renders the single header and compares it with the artifact on
// disk, ignoring the banner timestamp. On mismatch it returns a line diff
// (artifact to fresh render) and an error wrapping ErrStale.
func Check(opts Options) (string, error) {
	fresh, _, err := Render(opts)
	if err != nil {
		return "", err
	}
	old, err := os.ReadFile(opts.Output)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s does not exist", ErrStale, opts.Output)
		}
		return "", err
	}

	a := normalize(string(old))
	b := normalize(string(fresh))
	if a == b {
		return "", nil
	}
	return lineDiff(a, b), fmt.Errorf("%w: %s", ErrStale, opts.Output)
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return generatedLine.ReplaceAllString(s, " * Generated:")
}

// lineDiff reports changed lines only, prefixed with "- " and "+ ".
func lineDiff(old, fresh string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(old, fresh)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		default:
			continue
		}
		for _, l := range strings.SplitAfter(d.Text, "\n") {
			if l == "" {
				continue
			}
			sb.WriteString(prefix)
			sb.WriteString(strings.TrimSuffix(l, "\n"))
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
