// Command wavefront renders an OBJ scene with the wavefront path tracer.
//
// Settings come from an optional TOML or YAML config file; flags that are
// set explicitly override it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/wavefront"
	"github.com/gogpu/wavefront/compute"
	_ "github.com/gogpu/wavefront/compute/gpu"
	"github.com/gogpu/wavefront/integrator"
	"github.com/gogpu/wavefront/internal/config"
	"github.com/gogpu/wavefront/internal/publish"
	"github.com/gogpu/wavefront/scene"
)

func main() {
	var (
		configPath = flag.String("config", "", "render config file (.toml, .yaml)")
		width      = flag.Int("width", 0, "image width")
		height     = flag.Int("height", 0, "image height")
		samples    = flag.Int("samples", 0, "samples per pixel")
		bounces    = flag.Int("bounces", 0, "maximum path length")
		output     = flag.String("output", "", "output file (.png or .exr)")
		obj        = flag.String("obj", "", "OBJ mesh to render")
		env        = flag.String("env", "", "EXR environment map")
		backend    = flag.String("backend", "", "compute backend (vulkan, host)")
		kernels    = flag.String("kernels", "", "load kernels from this directory instead of the embedded copy")
		watch      = flag.Bool("watch", false, "render until interrupted, reloading kernels on change")
		devices    = flag.Bool("devices", false, "list compute devices and exit")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	wavefront.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *devices {
		for _, d := range compute.EnumerateDevices(compute.DeviceSelector{Backend: *backend}) {
			fmt.Printf("%s/%d\t%s\t%s\tunits=%d workgroup=%d\n",
				d.Backend, d.Index, d.Type, d.Name, d.ComputeUnits, d.MaxWorkgroupSize)
		}
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "width":
			cfg.Width = *width
		case "height":
			cfg.Height = *height
		case "samples":
			cfg.Samples = *samples
		case "bounces":
			cfg.Bounces = *bounces
		case "output":
			cfg.Output = *output
		case "obj":
			cfg.Scene.OBJ = *obj
		case "env":
			cfg.Scene.Environment = *env
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	s, err := buildScene(&cfg)
	if err != nil {
		log.Fatalf("Failed to build scene: %v", err)
	}
	iopts, err := cfg.IntegratorOptions()
	if err != nil {
		log.Fatal(err)
	}

	opts := []wavefront.RendererOption{
		wavefront.WithDevice(compute.DeviceSelector{Backend: *backend}),
		wavefront.WithIntegratorOptions(iopts),
	}
	if cfg.Camera.Eye != ([3]float32{}) {
		c := integrator.NewCamera(mgl32.Vec3(cfg.Camera.Eye), mgl32.Vec3(cfg.Camera.Target),
			mgl32.DegToRad(cfg.Camera.FOV), float32(cfg.Width)/float32(cfg.Height))
		opts = append(opts, wavefront.WithCamera(c))
	}
	if *kernels != "" {
		opts = append(opts, wavefront.WithKernelSources(os.DirFS(*kernels)))
	}

	r, err := wavefront.NewRenderer(s, cfg.Width, cfg.Height, opts...)
	if err != nil {
		log.Fatalf("Failed to create renderer: %v", err)
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	maxFrames := cfg.Samples
	var onFrame wavefront.FrameFunc
	if *watch {
		maxFrames = 0
		if *kernels != "" {
			go func() {
				if err := r.Context().WatchKernels(ctx, *kernels); err != nil {
					log.Printf("Kernel watch stopped: %v", err)
				}
			}()
		}
		onFrame = func(frame int, fb *wavefront.Framebuffer) error {
			if frame%cfg.Samples != 0 {
				return nil
			}
			return save(fb, cfg.Output)
		}
	}

	if err := r.RenderLoop(ctx, maxFrames, onFrame); err != nil && ctx.Err() == nil {
		log.Fatalf("Render failed: %v", err)
	}
	fb, err := r.Readback()
	if err != nil {
		log.Fatalf("Readback failed: %v", err)
	}
	if err := save(fb, cfg.Output); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	log.Printf("Render saved to %s (%dx%d)\n", cfg.Output, cfg.Width, cfg.Height)

	if cfg.Publish.Bucket != "" {
		if err := upload(context.Background(), cfg.Publish, cfg.Output); err != nil {
			log.Fatalf("Failed to publish: %v", err)
		}
	}
}

func buildScene(cfg *config.Config) (*scene.Scene, error) {
	s := scene.New()
	mat, err := s.AddMaterial(scene.MaterialDesc{Albedo: mgl32.Vec3(cfg.Scene.Albedo), SRGB: true})
	if err != nil {
		return nil, err
	}
	if cfg.Scene.OBJ != "" {
		n, err := s.LoadOBJ(cfg.Scene.OBJ, scene.OBJOptions{
			Scale:    cfg.Scene.Scale,
			FlipYZ:   cfg.Scene.FlipYZ,
			Material: mat,
		})
		if err != nil {
			return nil, err
		}
		log.Printf("Loaded %d triangles from %s\n", n, cfg.Scene.OBJ)
	}
	for _, l := range cfg.Lights {
		v, e := mgl32.Vec3(l.Vector), mgl32.Vec3(l.Radiance)
		if l.Type == "point" {
			err = s.AddPointLight(v, e)
		} else {
			err = s.AddDirectionalLight(v, e)
		}
		if err != nil {
			return nil, err
		}
	}
	switch {
	case cfg.Scene.Environment != "":
		err = s.LoadEnvironment(cfg.Scene.Environment)
	case cfg.Scene.Sky != ([3]float32{}):
		err = s.SetEnvImage(scene.UniformEnvironment(mgl32.Vec3(cfg.Scene.Sky)))
	}
	if err != nil {
		return nil, err
	}
	s.Finalize()
	return s, nil
}

func save(fb *wavefront.Framebuffer, path string) error {
	if strings.EqualFold(filepath.Ext(path), ".exr") {
		return fb.SaveEXR(path)
	}
	return fb.SavePNG(path)
}

func upload(ctx context.Context, cfg publish.Config, path string) error {
	p, err := publish.New(cfg)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	name := filepath.Base(path)
	key, err := p.Upload(ctx, name, publish.ContentType(name), data)
	if err != nil {
		return err
	}
	log.Printf("Published s3://%s/%s\n", cfg.Bucket, key)
	return nil
}
