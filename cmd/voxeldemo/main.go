// Command voxeldemo flies a camera over generated terrain and reports pool
// and chunk statistics. It runs headless or on the noop GPU backend.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/voxel"
)

func main() {
	var (
		config  = flag.String("config", "", "YAML config file")
		frames  = flag.Int("frames", 600, "frames to render")
		speed   = flag.Float64("speed", 0.5, "camera speed in voxels per frame")
		useGPU  = flag.Bool("gpu", false, "record draws on the noop GPU backend")
		every   = flag.Int("report", 60, "report interval in frames")
		verbose = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if *verbose {
		voxel.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	cfg := voxel.DefaultConfig()
	if *config != "" {
		var err error
		if cfg, err = voxel.LoadConfig(*config); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	var (
		device hal.Device
		queue  hal.Queue
	)
	if *useGPU {
		api := noop.API{}
		instance, err := api.CreateInstance(nil)
		if err != nil {
			log.Fatalf("Failed to create instance: %v", err)
		}
		defer instance.Destroy()
		openDev, err := instance.EnumerateAdapters(nil)[0].Adapter.Open(0, gputypes.DefaultLimits())
		if err != nil {
			log.Fatalf("Failed to open device: %v", err)
		}
		defer openDev.Device.Destroy()
		device, queue = openDev.Device, openDev.Queue
	}

	d, err := voxel.NewDriver(device, queue, cfg)
	if err != nil {
		log.Fatalf("Failed to create driver: %v", err)
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := cfg.World.Terrain.BaseHeight + cfg.World.Terrain.Amplitude + 8
	in := &flight{
		cam:    voxel.DefaultCamera([3]float32{0, start, 0}),
		speed:  float32(*speed),
		frames: *frames,
	}
	in.cam.Yaw = 0.6
	in.cam.Pitch = -0.3

	out := &reporter{driver: d, every: *every}
	if err := d.Run(ctx, in, out); err != nil && ctx.Err() == nil {
		log.Fatalf("Run failed: %v", err)
	}

	log.Printf("Done after %d frames", d.Frame())
	log.Printf("%s", d.Pool().Stats())
	log.Printf("%s", d.Chunks().Stats())
}

// flight moves the camera along its view direction in the horizontal plane.
type flight struct {
	cam    voxel.Camera
	speed  float32
	frames int
}

func (f *flight) Poll() (voxel.Camera, bool) {
	if f.frames == 0 {
		return voxel.Camera{}, false
	}
	f.frames--
	fwd := f.cam.Forward()
	f.cam.Position[0] += fwd[0] * f.speed
	f.cam.Position[2] += fwd[2] * f.speed
	return f.cam, true
}
