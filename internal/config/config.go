// Package config decodes render configuration files for the wavefront CLI.
//
// The format follows the file extension: .toml uses TOML, .yaml and .yml use
// YAML. Unset fields keep the values of Default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/wavefront/integrator"
	"github.com/gogpu/wavefront/internal/publish"
)

// Config describes one render.
type Config struct {
	Width    int     `toml:"width" yaml:"width"`
	Height   int     `toml:"height" yaml:"height"`
	Samples  int     `toml:"samples" yaml:"samples"`
	Bounces  int     `toml:"bounces" yaml:"bounces"`
	ToneMap  string  `toml:"tonemap" yaml:"tonemap"`
	Exposure float32 `toml:"exposure" yaml:"exposure"`

	// Output is the image path; .exr writes linear radiance, anything else PNG.
	Output string `toml:"output" yaml:"output"`

	Scene   Scene          `toml:"scene" yaml:"scene"`
	Camera  Camera         `toml:"camera" yaml:"camera"`
	Lights  []Light        `toml:"lights" yaml:"lights"`
	Publish publish.Config `toml:"publish" yaml:"publish"`
}

// Scene selects the geometry and environment.
type Scene struct {
	OBJ    string  `toml:"obj" yaml:"obj"`
	Scale  float32 `toml:"scale" yaml:"scale"`
	FlipYZ bool    `toml:"flip_yz" yaml:"flip_yz"`

	// Albedo is the sRGB color of faces without a usemtl material.
	Albedo [3]float32 `toml:"albedo" yaml:"albedo"`

	// Environment is an EXR lat-long map. It takes precedence over Sky.
	Environment string     `toml:"environment" yaml:"environment"`
	Sky         [3]float32 `toml:"sky" yaml:"sky"`
}

// Camera places the viewer. A zero Eye frames the scene bounds.
type Camera struct {
	Eye    [3]float32 `toml:"eye" yaml:"eye"`
	Target [3]float32 `toml:"target" yaml:"target"`
	FOV    float32    `toml:"fov" yaml:"fov"`
}

// Light is a point or directional light.
type Light struct {
	Type     string     `toml:"type" yaml:"type"`
	Vector   [3]float32 `toml:"vector" yaml:"vector"`
	Radiance [3]float32 `toml:"radiance" yaml:"radiance"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Width:    640,
		Height:   480,
		Samples:  64,
		Bounces:  integrator.DefaultMaxBounces,
		ToneMap:  integrator.ToneMapReinhard.String(),
		Exposure: 1,
		Output:   "render.png",
		Scene: Scene{
			Scale:  1,
			Albedo: [3]float32{0.8, 0.8, 0.8},
		},
		Camera: Camera{FOV: 45},
	}
}

// Load reads path on top of Default and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	c := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, &c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &c)
	default:
		return Config{}, fmt.Errorf("config: unsupported format %q", ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Save writes c to path in the format selected by its extension.
func Save(path string, c Config) error {
	var (
		data []byte
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		data, err = toml.Marshal(c)
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		return fmt.Errorf("config: unsupported format %q", ext)
	}
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("config: invalid size %dx%d", c.Width, c.Height)
	case c.Samples <= 0:
		return fmt.Errorf("config: samples must be positive, got %d", c.Samples)
	case c.Bounces <= 0:
		return fmt.Errorf("config: bounces must be positive, got %d", c.Bounces)
	case c.Camera.FOV <= 0 || c.Camera.FOV >= 180:
		return fmt.Errorf("config: fov %v out of range", c.Camera.FOV)
	}
	if _, err := c.ParsedToneMap(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for i, l := range c.Lights {
		if l.Type != "point" && l.Type != "directional" {
			return fmt.Errorf("config: light %d: unknown type %q", i, l.Type)
		}
	}
	return nil
}

// ParsedToneMap returns the tone map operator named by c.ToneMap.
func (c *Config) ParsedToneMap() (integrator.ToneMap, error) {
	return integrator.ParseToneMap(c.ToneMap)
}

// IntegratorOptions converts the render settings into integrator options.
func (c *Config) IntegratorOptions() (integrator.Options, error) {
	tm, err := c.ParsedToneMap()
	if err != nil {
		return integrator.Options{}, err
	}
	o := integrator.DefaultOptions()
	o.MaxBounces = c.Bounces
	o.ToneMap = tm
	o.Exposure = c.Exposure
	return o, nil
}
