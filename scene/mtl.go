package scene

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// mtlMaterial is one newmtl block before its texture maps are loaded.
type mtlMaterial struct {
	name string
	desc MaterialDesc
	maps map[string]string
}

// mtlParser holds the state of one material library read.
type mtlParser struct {
	line      int
	materials []*mtlMaterial
	current   *mtlMaterial
}

func (p *mtlParser) errorf(format string, args ...any) error {
	return fmt.Errorf("mtl line %d: %s", p.line, fmt.Sprintf(format, args...))
}

// parseMTL reads a Wavefront material library. Kd and Ks are taken as sRGB;
// Ke, Pr, Pm, Ni and Tf are stored as written.
func parseMTL(r io.Reader) ([]*mtlMaterial, error) {
	p := &mtlParser{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		p.line++
		if err := p.parseLine(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return p.materials, nil
}

func (p *mtlParser) parseLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}
	key, args := fields[0], fields[1:]
	if key == "newmtl" {
		if len(args) < 1 {
			return p.errorf("newmtl with no name")
		}
		p.current = &mtlMaterial{
			name: args[0],
			desc: MaterialDesc{IOR: 1, SRGB: true},
			maps: make(map[string]string),
		}
		p.materials = append(p.materials, p.current)
		return nil
	}
	if p.current == nil {
		// Statements before the first newmtl have nothing to apply to.
		return nil
	}
	d := &p.current.desc

	var err error
	switch key {
	case "Kd":
		d.Albedo, err = p.color(key, args)
	case "Ks":
		d.Specular, err = p.color(key, args)
	case "Ke":
		d.Emission, err = p.color(key, args)
	case "Tf":
		var tf mgl32.Vec3
		tf, err = p.color(key, args)
		d.Transparency = tf[0]
	case "Pr":
		d.Roughness, err = p.scalar(key, args)
	case "Pm":
		d.Metalness, err = p.scalar(key, args)
	case "Ni":
		d.IOR, err = p.scalar(key, args)
	case "map_Kd", "map_Ks", "map_Ke", "map_Pr", "map_Pm", "map_d":
		if len(args) < 1 {
			return p.errorf("%s with no file", key)
		}
		// Options such as -bm precede the file name.
		p.current.maps[key] = args[len(args)-1]
	}
	return err
}

// color parses "r [g b]"; a single value is replicated. A leading "xyz" or
// "spectral" qualifier is not supported.
func (p *mtlParser) color(key string, args []string) (mgl32.Vec3, error) {
	if len(args) != 1 && len(args) != 3 {
		return mgl32.Vec3{}, p.errorf("%s needs 1 or 3 values, got %d", key, len(args))
	}
	var c mgl32.Vec3
	for i := range c {
		v, err := strconv.ParseFloat(args[min(i, len(args)-1)], 32)
		if err != nil {
			return mgl32.Vec3{}, p.errorf("%s: %v", key, err)
		}
		c[i] = float32(v)
	}
	return c, nil
}

func (p *mtlParser) scalar(key string, args []string) (float32, error) {
	if len(args) < 1 {
		return 0, p.errorf("%s with no value", key)
	}
	v, err := strconv.ParseFloat(args[0], 32)
	if err != nil {
		return 0, p.errorf("%s: %v", key, err)
	}
	return float32(v), nil
}

// LoadMTL adds every material of a Wavefront material library and returns
// their indices by name. Texture maps are resolved relative to the library
// and go through the LoadTexture cache.
func (s *Scene) LoadMTL(path string) (map[string]uint32, error) {
	if s.finalized {
		return nil, ErrFinalized
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("scene: open material library: %w", err)
	}
	defer func() { _ = f.Close() }()

	materials, err := parseMTL(f)
	if err != nil {
		return nil, fmt.Errorf("scene: %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	byName := make(map[string]uint32, len(materials))
	for _, m := range materials {
		for _, slot := range []struct {
			key string
			ref *TextureRef
		}{
			{"map_Kd", &m.desc.AlbedoMap},
			{"map_Ks", &m.desc.SpecularMap},
			{"map_Ke", &m.desc.EmissionMap},
			{"map_Pr", &m.desc.RoughnessMap},
			{"map_Pm", &m.desc.MetalnessMap},
			{"map_d", &m.desc.TransparencyMap},
		} {
			name, ok := m.maps[slot.key]
			if !ok {
				continue
			}
			idx, err := s.LoadTexture(filepath.Join(dir, filepath.FromSlash(name)))
			if err != nil {
				return nil, fmt.Errorf("scene: material %s: %w", m.name, err)
			}
			*slot.ref = TextureIndex(idx)
		}
		idx, err := s.AddMaterial(m.desc)
		if err != nil {
			return nil, err
		}
		byName[m.name] = idx
	}
	return byName, nil
}
