package compute

import (
	"strings"
	"testing"
)

const signatureSrc = `
const WG: u32 = 128u;

@group(0) @binding(3) var<storage, read_write> out: array<f32>;
@group(0) @binding(0) var<uniform> dims: vec2<u32>;
@group(0) @binding(1) var<uniform> params: vec4<f32>;
@group(0) @binding(2) var<storage, read> input: array<vec4<f32>>;

@compute @workgroup_size(16, 8)
fn tiled(@builtin(global_invocation_id) gid: vec3<u32>) {}

@compute @workgroup_size(WG)
fn linear(@builtin(global_invocation_id) gid: vec3<u32>) {}

fn helper() {}
`

func TestParseBindings(t *testing.T) {
	params, diags := parseBindings(signatureSrc)
	if len(diags) != 0 {
		t.Fatalf("diags = %v", diags)
	}

	want := []Param{
		{Binding: 0, Name: "dims", Kind: ParamUniform, Type: "vec2<u32>", Size: 8},
		{Binding: 1, Name: "params", Kind: ParamUniform, Type: "vec4<f32>", Size: 16},
		{Binding: 2, Name: "input", Kind: ParamStorageRead, Type: "array<vec4<f32>>"},
		{Binding: 3, Name: "out", Kind: ParamStorage, Type: "array<f32>"},
	}
	if len(params) != len(want) {
		t.Fatalf("len(params) = %d, want %d", len(params), len(want))
	}
	for i := range want {
		if params[i] != want[i] {
			t.Errorf("params[%d] = %+v, want %+v", i, params[i], want[i])
		}
	}
}

func TestParseBindings_Diagnostics(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"@group(0) @binding(0) var<uniform> m: mat3x3<f32>;", "unsupported uniform type"},
		{"@group(0) @binding(0) var tex: texture_2d<f32>;", "unsupported resource"},
		{"@group(0) @binding(1) var<uniform> a: u32;\n@group(0) @binding(1) var<uniform> b: u32;", "declared twice"},
	}
	for _, tt := range tests {
		_, diags := parseBindings(tt.src)
		if len(diags) == 0 || !strings.Contains(diags[0], tt.want) {
			t.Errorf("parseBindings(%q) diags = %v, want %q", tt.src, diags, tt.want)
		}
	}
}

func TestFindEntryPoint(t *testing.T) {
	tests := []struct {
		name string
		want [3]uint32
	}{
		{"tiled", [3]uint32{16, 8, 1}},
		{"linear", [3]uint32{128, 1, 1}},
	}
	for _, tt := range tests {
		ep, err := findEntryPoint(signatureSrc, tt.name)
		if err != nil || ep == nil {
			t.Fatalf("findEntryPoint(%s) = %v, %v", tt.name, ep, err)
		}
		if ep.WorkgroupSize != tt.want {
			t.Errorf("%s workgroup = %v, want %v", tt.name, ep.WorkgroupSize, tt.want)
		}
	}

	for _, missing := range []string{"helper", "absent"} {
		ep, err := findEntryPoint(signatureSrc, missing)
		if err != nil || ep != nil {
			t.Errorf("findEntryPoint(%s) = %v, %v; want nil, nil", missing, ep, err)
		}
	}
}

func TestFindEntryPoint_BadWorkgroup(t *testing.T) {
	src := "@compute @workgroup_size(UNKNOWN)\nfn k() {}\n"
	if _, err := findEntryPoint(src, "k"); err == nil {
		t.Error("expected error for unresolved workgroup size")
	}
	src = "@compute\nfn k() {}\n"
	if _, err := findEntryPoint(src, "k"); err == nil {
		t.Error("expected error for missing @workgroup_size")
	}
}

func TestEntryPoint_Param(t *testing.T) {
	params, _ := parseBindings(signatureSrc)
	ep := EntryPoint{Params: params}
	if p, ok := ep.Param(2); !ok || p.Name != "input" {
		t.Errorf("Param(2) = %+v, %v", p, ok)
	}
	if _, ok := ep.Param(7); ok {
		t.Error("Param(7) should not exist")
	}
}

func TestParseBindings_CommentsAndLayout(t *testing.T) {
	src := `
// @group(0) @binding(0) var<uniform> stale: u32;
/* @group(0) @binding(1) var<uniform> old: u32;
   /* nested */ @group(0) @binding(2) var<uniform> older: u32; */
@group(0)
@binding(0)
var<storage, read>
    rays: array<
        vec4<f32>>;
@binding(1) @group(0) var<uniform> dims: vec2<u32>; // trailing
`
	params, diags := parseBindings(src)
	if len(diags) != 0 {
		t.Fatalf("diags = %v", diags)
	}
	want := []Param{
		{Binding: 0, Name: "rays", Kind: ParamStorageRead, Type: "array<vec4<f32>>"},
		{Binding: 1, Name: "dims", Kind: ParamUniform, Type: "vec2<u32>", Size: 8},
	}
	if len(params) != len(want) {
		t.Fatalf("params = %+v, want %+v", params, want)
	}
	for i := range want {
		if params[i] != want[i] {
			t.Errorf("params[%d] = %+v, want %+v", i, params[i], want[i])
		}
	}
}

func TestFindEntryPoint_Expressions(t *testing.T) {
	src := `
const TILE: u32 = 8u;
const LANES = TILE * 4u;
// const TILE: u32 = 1u;

/*
@compute @workgroup_size(1)
fn k() {}
*/
@compute @workgroup_size(TILE * 2, LANES + 0x10u,)
fn k() {}
`
	ep, err := findEntryPoint(src, "k")
	if err != nil || ep == nil {
		t.Fatalf("findEntryPoint(k) = %v, %v", ep, err)
	}
	if want := [3]uint32{16, 48, 1}; ep.WorkgroupSize != want {
		t.Errorf("workgroup = %v, want %v", ep.WorkgroupSize, want)
	}
}

func TestEvalConst(t *testing.T) {
	consts := map[string]uint32{"N": 3}
	tests := []struct {
		expr string
		want uint32
		ok   bool
	}{
		{"64u", 64, true},
		{"N * 2 + 1", 7, true},
		{"0x100", 256, true},
		{"1.5", 0, false},
		{"M", 0, false},
		{"65536 * 65536", 0, false},
	}
	for _, tt := range tests {
		got, ok := evalConst(tt.expr, consts)
		if got != tt.want || ok != tt.ok {
			t.Errorf("evalConst(%q) = %d, %v; want %d, %v", tt.expr, got, ok, tt.want, tt.ok)
		}
	}
}
