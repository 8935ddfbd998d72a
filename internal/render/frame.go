// Package render is a small CPU ray tracer that splits a frame into tiles and
// renders them as tasks on a thread pool.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/jzx17/threadpool/pkg/types"
	"github.com/jzx17/threadpool/pkg/worker"
	"github.com/rs/zerolog"
)

// Predefined errors
var (
	// ErrInvalidSize indicates a frame without pixels
	ErrInvalidSize = errors.New("frame width and height must be positive")

	// ErrInvalidSamples indicates a non-positive sample count
	ErrInvalidSamples = errors.New("samples per pixel must be positive")

	// ErrTilesAbandoned indicates the pool shut down before every tile was rendered
	ErrTilesAbandoned = errors.New("tiles abandoned")

	// ErrTilesFailed indicates tiles whose rendering panicked
	ErrTilesFailed = errors.New("tiles failed")
)

// ProgressFunc is called after each rendered tile, possibly concurrently
type ProgressFunc func(done, total int)

// Options defines the parameters of a frame
type Options struct {
	Width   int
	Height  int
	Samples int

	// Seed offsets the per-tile sample generators
	Seed int64

	// Scene to render (optional, defaults to DefaultScene)
	Scene *Scene

	// Camera to render through (optional, defaults to DefaultCamera)
	Camera *Camera

	// Progress receives tile completion counts (optional)
	Progress ProgressFunc

	// Logger for render events (optional, defaults to a no-op logger)
	Logger *zerolog.Logger
}

// Frame is an image to be rendered tile by tile
type Frame struct {
	width   int
	height  int
	samples int
	seed    int64
	scene   *Scene
	camera  *Camera
	tiles   []Tile

	progress ProgressFunc
	logger   zerolog.Logger
}

// NewFrame validates opts and splits the frame into tiles
func NewFrame(opts Options) (*Frame, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("%w, got %dx%d", ErrInvalidSize, opts.Width, opts.Height)
	}
	if opts.Samples <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidSamples, opts.Samples)
	}

	f := &Frame{
		width:    opts.Width,
		height:   opts.Height,
		samples:  opts.Samples,
		seed:     opts.Seed,
		scene:    opts.Scene,
		camera:   opts.Camera,
		tiles:    splitTiles(opts.Width, opts.Height),
		progress: opts.Progress,
		logger:   zerolog.Nop(),
	}
	if f.scene == nil {
		f.scene = DefaultScene()
	}
	if f.camera == nil {
		f.camera = DefaultCamera(float64(opts.Width) / float64(opts.Height))
	}
	if opts.Logger != nil {
		f.logger = *opts.Logger
	}
	return f, nil
}

// Bounds returns the pixel bounds of the frame
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.width, f.height)
}

// Tiles returns the row-major tiles of the frame
func (f *Frame) Tiles() []Tile {
	return append([]Tile(nil), f.tiles...)
}

func (f *Frame) reportProgress(done int64) {
	if f.progress != nil {
		f.progress(int(done), len(f.tiles))
	}
}

// Render submits every tile to pool and waits for all of them. If ctx is
// cancelled first, tiles still queued are retracted and Render returns once
// the dispatched ones have finished. Tiles abandoned by a pool shutdown are
// reported as ErrTilesAbandoned and tiles that panicked as ErrTilesFailed.
func (f *Frame) Render(ctx context.Context, pool types.TaskPool) (*image.RGBA, error) {
	start := time.Now()
	img := image.NewRGBA(f.Bounds())

	var finished int64
	tasks := make([]*TileTask, len(f.tiles))
	for i, tile := range f.tiles {
		tasks[i] = newTileTask(f, tile, img, &finished)
	}
	for _, task := range tasks {
		pool.AddTask(task)
	}

	if err := worker.WaitAll(ctx, tasks...); err != nil {
		retracted := 0
		for _, task := range tasks {
			if pool.RetractTask(task) {
				task.retract()
				retracted++
			}
		}
		// dispatched tiles still write into img
		_ = worker.WaitAll(context.Background(), tasks...)

		f.logger.Warn().Err(err).Int("retracted", retracted).Int("tiles", len(tasks)).Msg("render cancelled")
		return nil, err
	}

	abandoned, failed := 0, 0
	for _, task := range tasks {
		switch task.Status() {
		case TileAbandoned:
			abandoned++
		case TileFailed:
			failed++
		}
	}
	if failed > 0 {
		f.logger.Error().Int("failed", failed).Int("tiles", len(tasks)).Msg("render failed")
		return nil, fmt.Errorf("%w: %d of %d", ErrTilesFailed, failed, len(tasks))
	}
	if abandoned > 0 {
		return nil, fmt.Errorf("%w: %d of %d: %w", ErrTilesAbandoned, abandoned, len(tasks), types.ErrPoolDestroyed)
	}

	f.logger.Debug().
		Int("tiles", len(tasks)).
		Int("samples", f.samples).
		Dur("took", time.Since(start)).
		Msg("frame rendered")
	return img, nil
}

// RenderSerial renders every tile on the calling goroutine
func (f *Frame) RenderSerial() *image.RGBA {
	img := image.NewRGBA(f.Bounds())
	var finished int64
	for _, tile := range f.tiles {
		newTileTask(f, tile, img, &finished).Execute()
	}
	return img
}
