package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/wavefront/integrator"
)

const tomlConfig = `
width = 320
height = 200
samples = 16
tonemap = "raw"
output = "out.exr"

[scene]
obj = "bunny.obj"
flip_yz = true

[camera]
eye = [0.0, 1.0, 4.0]
fov = 60.0

[[lights]]
type = "directional"
vector = [0.0, -1.0, -1.0]
radiance = [3.0, 3.0, 3.0]

[publish]
bucket = "frames"
prefix = "bunny"
`

const yamlConfig = `
width: 320
height: 200
samples: 16
tonemap: raw
output: out.exr
scene:
  obj: bunny.obj
  flip_yz: true
camera:
  eye: [0, 1, 4]
  fov: 60
lights:
  - type: directional
    vector: [0, -1, -1]
    radiance: [3, 3, 3]
publish:
  bucket: frames
  prefix: bunny
`

func write(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct{ name, data string }{
		{"render.toml", tomlConfig},
		{"render.yaml", yamlConfig},
		{"render.yml", yamlConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Load(write(t, tt.name, tt.data))
			if err != nil {
				t.Fatal(err)
			}
			if c.Width != 320 || c.Height != 200 || c.Samples != 16 {
				t.Errorf("size = %dx%d@%d", c.Width, c.Height, c.Samples)
			}
			if c.Bounces != integrator.DefaultMaxBounces {
				t.Errorf("Bounces = %d, want default %d", c.Bounces, integrator.DefaultMaxBounces)
			}
			if c.Scene.Scale != 1 || !c.Scene.FlipYZ || c.Scene.OBJ != "bunny.obj" {
				t.Errorf("Scene = %+v", c.Scene)
			}
			if c.Camera.Eye != [3]float32{0, 1, 4} || c.Camera.FOV != 60 {
				t.Errorf("Camera = %+v", c.Camera)
			}
			if len(c.Lights) != 1 || c.Lights[0].Type != "directional" || c.Lights[0].Radiance[0] != 3 {
				t.Errorf("Lights = %+v", c.Lights)
			}
			if c.Publish.Bucket != "frames" || c.Publish.Prefix != "bunny" {
				t.Errorf("Publish = %+v", c.Publish)
			}
			o, err := c.IntegratorOptions()
			if err != nil {
				t.Fatal(err)
			}
			if o.ToneMap != integrator.ToneMapRaw || o.Exposure != 1 {
				t.Errorf("IntegratorOptions() = %+v", o)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct{ name, data string }{
		{"bad.json", "{}"},
		{"bad.toml", "width = ["},
		{"size.toml", "width = 0"},
		{"fov.yaml", "camera:\n  fov: 180\n"},
		{"tonemap.toml", `tonemap = "aces"`},
		{"light.yaml", "lights:\n  - type: spot\n"},
	}
	for _, tt := range tests {
		if _, err := Load(write(t, tt.name, tt.data)); err == nil {
			t.Errorf("Load(%s) succeeded, want error", tt.name)
		}
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load(missing) succeeded, want error")
	}
}

func TestSave_RoundTrip(t *testing.T) {
	for _, name := range []string{"c.toml", "c.yaml"} {
		path := filepath.Join(t.TempDir(), name)
		want := Default()
		want.Samples = 7
		want.Lights = []Light{{Type: "point", Vector: [3]float32{1, 2, 3}, Radiance: [3]float32{1, 1, 1}}}
		if err := Save(path, want); err != nil {
			t.Fatal(err)
		}
		got, err := Load(path)
		if err != nil {
			t.Fatal(err)
		}
		if got.Samples != 7 || len(got.Lights) != 1 || got.Lights[0].Vector != want.Lights[0].Vector {
			t.Errorf("%s: Load(Save(c)) = %+v", name, got)
		}
	}
}
