package compute

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ParamKind classifies a kernel argument slot.
type ParamKind int

const (
	// ParamUniform is a small by-value argument (scalar or vector).
	ParamUniform ParamKind = iota

	// ParamStorageRead is a read-only buffer.
	ParamStorageRead

	// ParamStorage is a read-write buffer.
	ParamStorage
)

// String returns the WGSL address space spelling of the kind.
func (k ParamKind) String() string {
	switch k {
	case ParamUniform:
		return "uniform"
	case ParamStorageRead:
		return "storage, read"
	case ParamStorage:
		return "storage, read_write"
	default:
		return fmt.Sprintf("ParamKind(%d)", int(k))
	}
}

// Param is one argument slot of a kernel signature.
type Param struct {
	Binding uint32
	Name    string
	Kind    ParamKind
	Type    string

	// Size is the exact byte size of a uniform argument; zero for buffers.
	Size int
}

// IsBuffer reports whether the slot takes a buffer.
func (p Param) IsBuffer() bool { return p.Kind != ParamUniform }

// EntryPoint describes a compute entry point and the arguments it declares.
type EntryPoint struct {
	Name          string
	WorkgroupSize [3]uint32
	Params        []Param
}

// Param returns the slot declared at binding.
func (e *EntryPoint) Param(binding uint32) (Param, bool) {
	i := sort.Search(len(e.Params), func(i int) bool { return e.Params[i].Binding >= binding })
	if i < len(e.Params) && e.Params[i].Binding == binding {
		return e.Params[i], true
	}
	return Param{}, false
}

// GroupInvocations returns the number of invocations in one workgroup.
func (e *EntryPoint) GroupInvocations() uint32 {
	return e.WorkgroupSize[0] * e.WorkgroupSize[1] * e.WorkgroupSize[2]
}

var (
	bindingRe = regexp.MustCompile(`@group\(\s*0\s*\)\s*@binding\(\s*(\d+)\s*\)\s*var(?:<\s*(\w+)\s*(?:,\s*(\w+)\s*)?>)?\s+(\w+)\s*:\s*([^;]+);`)
	swappedRe = regexp.MustCompile(`@binding\(\s*(\d+)\s*\)\s*@group\(\s*0\s*\)`)
	entryRe   = regexp.MustCompile(`((?:@\w+(?:\([^)]*\))?\s*)+)fn\s+(\w+)\s*\(`)
	constRe   = regexp.MustCompile(`(?m)^\s*const\s+(\w+)\s*(?::\s*\w+)?\s*=\s*([^;]+);`)
	wgRe      = regexp.MustCompile(`@workgroup_size\(([^)]*)\)`)
)

// stripComments blanks out line and (nested) block comments, keeping line
// breaks so line-anchored patterns still apply.
func stripComments(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	depth := 0
	for i := 0; i < len(src); i++ {
		switch {
		case depth == 0 && strings.HasPrefix(src[i:], "//"):
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				b.WriteByte('\n')
			}
		case strings.HasPrefix(src[i:], "/*"):
			depth++
			i++
			b.WriteString("  ")
		case depth > 0 && strings.HasPrefix(src[i:], "*/"):
			depth--
			i++
			b.WriteString("  ")
		case depth > 0:
			if src[i] == '\n' {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		default:
			b.WriteByte(src[i])
		}
	}
	return b.String()
}

// evalConst evaluates a constant integer expression made of literals and
// known constants joined by + and *.
func evalConst(expr string, consts map[string]uint32) (uint32, bool) {
	var sum uint64
	for _, term := range strings.Split(expr, "+") {
		prod := uint64(1)
		for _, f := range strings.Split(term, "*") {
			f = strings.TrimSpace(f)
			if v, ok := consts[f]; ok {
				if prod *= uint64(v); prod > math.MaxUint32 {
					return 0, false
				}
				continue
			}
			v, err := strconv.ParseUint(strings.TrimRight(f, "ui"), 0, 32)
			if err != nil {
				return 0, false
			}
			prod *= v
			if prod > math.MaxUint32 {
				return 0, false
			}
		}
		if sum += prod; sum > math.MaxUint32 {
			return 0, false
		}
	}
	return uint32(sum), true
}

// uniformSize returns the byte size of a WGSL uniform type.
func uniformSize(typ string) (int, bool) {
	typ = strings.ReplaceAll(typ, " ", "")
	switch typ {
	case "u32", "i32", "f32":
		return 4, true
	case "vec2<u32>", "vec2<i32>", "vec2<f32>", "vec2u", "vec2i", "vec2f":
		return 8, true
	case "vec3<u32>", "vec3<i32>", "vec3<f32>", "vec3u", "vec3i", "vec3f":
		return 12, true
	case "vec4<u32>", "vec4<i32>", "vec4<f32>", "vec4u", "vec4i", "vec4f":
		return 16, true
	case "mat4x4<f32>", "mat4x4f":
		return 64, true
	}
	return 0, false
}

// parseBindings extracts the group 0 bindings of a preprocessed module.
func parseBindings(src string) ([]Param, []string) {
	var (
		params []Param
		diags  []string
		seen   = make(map[uint32]bool)
	)
	src = swappedRe.ReplaceAllString(stripComments(src), "@group(0) @binding($1)")
	for _, m := range bindingRe.FindAllStringSubmatch(src, -1) {
		n, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			diags = append(diags, fmt.Sprintf("binding %q: %v", m[1], err))
			continue
		}
		binding := uint32(n)
		if seen[binding] {
			diags = append(diags, fmt.Sprintf("binding %d declared twice", binding))
			continue
		}
		seen[binding] = true

		p := Param{Binding: binding, Name: m[4], Type: strings.Join(strings.Fields(m[5]), "")}
		switch m[2] {
		case "uniform":
			size, ok := uniformSize(p.Type)
			if !ok {
				diags = append(diags, fmt.Sprintf("binding %d (%s): unsupported uniform type %s", binding, p.Name, p.Type))
				continue
			}
			p.Kind, p.Size = ParamUniform, size
		case "storage":
			p.Kind = ParamStorageRead
			if m[3] == "read_write" {
				p.Kind = ParamStorage
			}
		default:
			diags = append(diags, fmt.Sprintf("binding %d (%s): unsupported resource %q", binding, p.Name, m[0]))
			continue
		}
		params = append(params, p)
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Binding < params[j].Binding })
	return params, diags
}

// findEntryPoint locates the named @compute function.
func findEntryPoint(src, name string) (*EntryPoint, error) {
	src = stripComments(src)
	consts := make(map[string]uint32)
	for _, m := range constRe.FindAllStringSubmatch(src, -1) {
		if v, ok := evalConst(m[2], consts); ok {
			consts[m[1]] = v
		}
	}

	for _, m := range entryRe.FindAllStringSubmatch(src, -1) {
		if m[2] != name || !strings.Contains(m[1], "@compute") {
			continue
		}
		ep := &EntryPoint{Name: name, WorkgroupSize: [3]uint32{1, 1, 1}}
		wg := wgRe.FindStringSubmatch(m[1])
		if wg == nil {
			return nil, fmt.Errorf("entry point %s: missing @workgroup_size", name)
		}
		for i, part := range strings.Split(wg[1], ",") {
			part = strings.TrimSpace(part)
			if part == "" && i > 0 {
				break
			}
			if i > 2 {
				return nil, fmt.Errorf("entry point %s: too many workgroup dimensions", name)
			}
			v, ok := evalConst(part, consts)
			if !ok || v == 0 {
				return nil, fmt.Errorf("entry point %s: bad workgroup size %q", name, part)
			}
			ep.WorkgroupSize[i] = v
		}
		return ep, nil
	}
	return nil, nil
}
