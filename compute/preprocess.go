// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"
)

// errPreprocess marks a source that produced preprocessor diagnostics.
var errPreprocess = errors.New("preprocessing failed")

var identRe = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*\b`)

// preprocessor expands the small C-like directive set accepted in kernel
// sources: #include, #define, #undef, #ifdef, #ifndef, #else, #endif and
// #error. Includes resolve against the including file's directory first and
// the source root second; every file is included at most once.
type preprocessor struct {
	fsys     fs.FS
	defines  map[string]string
	included map[string]bool
	out      strings.Builder
	diags    []string
}

// parseDefinitions converts NAME or NAME=VALUE definitions into a map.
func parseDefinitions(defs []string) map[string]string {
	m := make(map[string]string, len(defs))
	for _, d := range defs {
		d = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(d), "-D"))
		if d == "" {
			continue
		}
		name, value, _ := strings.Cut(d, "=")
		m[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return m
}

// preprocess expands file and returns the flattened source, the definitions
// in effect at its end and the preprocessor log. A missing top-level file is
// a *SourceError; every other problem is a diagnostic in the log and
// errPreprocess.
func preprocess(fsys fs.FS, file string, defs []string) (string, map[string]string, string, error) {
	p := &preprocessor{
		fsys:     fsys,
		defines:  parseDefinitions(defs),
		included: make(map[string]bool),
	}

	name := path.Clean(file)
	src, err := fs.ReadFile(fsys, name)
	if err != nil {
		return "", nil, "", &SourceError{File: file, Err: err}
	}
	p.included[name] = true
	p.expand(name, string(src))

	log := strings.Join(p.diags, "\n")
	if len(p.diags) > 0 {
		return "", nil, log, errPreprocess
	}
	return p.out.String(), p.defines, log, nil
}

func (p *preprocessor) errorf(file string, line int, format string, args ...any) {
	p.diags = append(p.diags, fmt.Sprintf("%s:%d: error: %s", file, line, fmt.Sprintf(format, args...)))
}

// condition is one level of #ifdef nesting.
type condition struct {
	parentActive bool
	taken        bool
	active       bool
	seenElse     bool
	line         int
}

func (p *preprocessor) expand(file, src string) {
	var stack []condition
	active := func() bool {
		return len(stack) == 0 || stack[len(stack)-1].active
	}

	for i, raw := range strings.Split(src, "\n") {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if !strings.HasPrefix(line, "#") {
			if active() {
				p.out.WriteString(p.substitute(raw))
				p.out.WriteByte('\n')
			}
			continue
		}

		directive, rest, _ := strings.Cut(strings.TrimSpace(line[1:]), " ")
		rest = strings.TrimSpace(rest)

		switch directive {
		case "ifdef", "ifndef":
			_, defined := p.defines[rest]
			cond := defined
			if directive == "ifndef" {
				cond = !defined
			}
			parent := active()
			stack = append(stack, condition{parentActive: parent, taken: cond, active: parent && cond, line: lineNo})
		case "else":
			if len(stack) == 0 {
				p.errorf(file, lineNo, "#else without #ifdef")
				continue
			}
			top := &stack[len(stack)-1]
			if top.seenElse {
				p.errorf(file, lineNo, "duplicate #else")
				continue
			}
			top.seenElse = true
			top.active = top.parentActive && !top.taken
		case "endif":
			if len(stack) == 0 {
				p.errorf(file, lineNo, "#endif without #ifdef")
				continue
			}
			stack = stack[:len(stack)-1]
		default:
			if !active() {
				continue
			}
			p.directive(file, lineNo, directive, rest)
		}
	}

	for _, c := range stack {
		p.errorf(file, c.line, "unterminated conditional")
	}
}

func (p *preprocessor) directive(file string, line int, directive, rest string) {
	switch directive {
	case "include":
		target := strings.Trim(rest, `"<>`)
		if target == "" {
			p.errorf(file, line, "#include expects a file name")
			return
		}
		p.include(file, line, target)
	case "define":
		name, value, _ := strings.Cut(rest, " ")
		if name == "" {
			p.errorf(file, line, "#define expects a name")
			return
		}
		p.defines[name] = strings.TrimSpace(value)
	case "undef":
		delete(p.defines, rest)
	case "error":
		p.errorf(file, line, "#error %s", rest)
	default:
		p.errorf(file, line, "unknown directive #%s", directive)
	}
}

func (p *preprocessor) include(from string, line int, target string) {
	candidates := []string{
		path.Join(path.Dir(from), target),
		path.Clean(target),
	}
	for _, name := range candidates {
		if p.included[name] {
			return
		}
		src, err := fs.ReadFile(p.fsys, name)
		if err != nil {
			continue
		}
		p.included[name] = true
		p.expand(name, string(src))
		return
	}
	p.errorf(from, line, "cannot open include file %q", target)
}

// substitute replaces identifiers that carry a defined value.
func (p *preprocessor) substitute(line string) string {
	if len(p.defines) == 0 {
		return line
	}
	return identRe.ReplaceAllStringFunc(line, func(tok string) string {
		if v, ok := p.defines[tok]; ok && v != "" {
			return v
		}
		return tok
	})
}
