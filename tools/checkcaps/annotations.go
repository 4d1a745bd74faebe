// Copyright 2026 The checkcaps Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package checkcaps

import (
	"fmt"
	"go/token"
	"slices"
	"strings"
)

const (
	capAnnotation        = "// +checkcaps:"
	capAnnotationShared  = "// +checkcapsshared:"
	capAcquires          = "// +checkcapsacquire:"
	capAcquiresShared    = "// +checkcapsacquireshared:"
	capReleases          = "// +checkcapsrelease:"
	capReleasesShared    = "// +checkcapsreleaseshared:"
	capTryAcquires       = "// +checkcapstry:"
	capTryAcquiresShared = "// +checkcapstryshared:"
	capDowngrades        = "// +checkcapsdowngrade:"
	capExcludes          = "// +checkcapsexclude:"
	capExcludesWrite     = "// +checkcapsexcludewrite:"
	capDerefGuard        = "// +checkcapsderef:"
	capAlias             = "// +checkcapsalias:"
	capIgnore            = "// +checkcapsignore"
	capForce             = "// +checkcapsforce"
	capFail              = "// +checkcapsfail"
)

// failData indicates an expected failure.
type failData struct {
	pos   token.Pos
	wants []string
}

// positionKey is a file/line string.
//
// The position of a failure annotation is not the position of the failure
// itself (the column and offset differ), so only the file and line number
// identify a failure site.
type positionKey string

func (pc *passContext) positionKey(pos token.Pos) positionKey {
	position := pc.pass.Fset.Position(pos)
	return positionKey(fmt.Sprintf("%s:%d", position.Filename, position.Line))
}

// addFailures adds an expected failure.
func (pc *passContext) addFailures(pos token.Pos, s string) {
	s, want, ok := strings.Cut(s, "=")
	if !ok && s != "" {
		pc.pass.Reportf(pos, "unable to parse failure annotation %q", s)
		return
	}
	pc.failures[pc.positionKey(pos)] = &failData{
		pos:   pos,
		wants: strings.Split(want, "|"),
	}
}

// addExemption adds an exemption.
func (pc *passContext) addExemption(pos token.Pos) {
	pc.exemptions[pc.positionKey(pos)] = struct{}{}
}

// addForce adds a force annotation.
func (pc *passContext) addForce(pos token.Pos) {
	pc.forced[pc.positionKey(pos)] = struct{}{}
}

// maybeFail reports a failure unless it matches an expected failure or an
// exemption for the same line.
func (pc *passContext) maybeFail(pos token.Pos, fmtStr string, args ...any) {
	if fd, ok := pc.failures[pc.positionKey(pos)]; ok {
		msg := fmt.Sprintf(fmtStr, args...)
		index := slices.IndexFunc(fd.wants, func(want string) bool {
			return strings.Contains(msg, want)
		})
		if index != -1 {
			fd.wants = slices.Delete(fd.wants, index, index+1)
			return
		}
	}
	if _, ok := pc.exemptions[pc.positionKey(pos)]; ok {
		return // Ignored, not counted.
	}
	if !pos.IsValid() {
		return // Ignored, implicit.
	}
	pc.pass.Reportf(pos, fmtStr, args...)
}

// checkFailures reports expected failures that never materialized.
func (pc *passContext) checkFailures() {
	for _, fd := range pc.failures {
		wildcards := 0
		for _, want := range fd.wants {
			if want == "" {
				wildcards++
				continue
			}
			pc.pass.Reportf(fd.pos, "missing expected failure %q", want)
		}
		if wildcards != 0 {
			pc.pass.Reportf(fd.pos, "missing %d expected failures", wildcards)
		}
	}
}

// extractAnnotations dispatches on the annotation prefixes present in s.
// The longest matching prefix wins, so e.g. +checkcapsacquireshared: is not
// consumed by the +checkcapsacquire: handler.
func (pc *passContext) extractAnnotations(s string, fns map[string]func(p string)) {
	bestLen := 0
	var best func(string)
	var rest string
	for prefix, fn := range fns {
		if strings.HasPrefix(s, prefix) && len(prefix) > bestLen {
			bestLen = len(prefix)
			best = fn
			rest = s[len(prefix):]
		}
	}
	if best != nil {
		best(rest)
	}
}

// extractLineFailures extracts all line-based exemptions and expected
// failures. Function-wide and field exemptions are extracted separately as
// part of the saved facts for those objects.
func (pc *passContext) extractLineFailures() {
	for _, f := range pc.pass.Files {
		for _, cg := range f.Comments {
			for _, c := range cg.List {
				pc.extractAnnotations(c.Text, map[string]func(string){
					capFail:   func(p string) { pc.addFailures(c.Pos(), p) },
					capIgnore: func(string) { pc.addExemption(c.Pos()) },
					capForce:  func(string) { pc.addForce(c.Pos()) },
				})
			}
		}
	}
}
