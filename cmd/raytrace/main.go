// Command raytrace renders a demo scene on a pinned thread pool and writes it
// to an image file.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/jzx17/threadpool/internal/render"
	"github.com/jzx17/threadpool/pkg/thread"
	"github.com/jzx17/threadpool/pkg/worker"
	"github.com/rs/zerolog"
	"github.com/sasha-s/go-deadlock"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/time/rate"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "raytrace",
		Usage: "render a ray traced scene on a thread pool",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "threads",
				Aliases: []string{"t"},
				EnvVars: []string{"RAYTRACE_THREADS"},
				Usage:   "number of worker threads (0 uses GOMAXPROCS)",
			},
			&cli.IntFlag{
				Name:  "width",
				Value: 640,
				Usage: "image width in pixels",
			},
			&cli.IntFlag{
				Name:  "height",
				Value: 360,
				Usage: "image height in pixels",
			},
			&cli.IntFlag{
				Name:  "samples",
				Value: 16,
				Usage: "samples per pixel",
			},
			&cli.Int64Flag{
				Name:  "seed",
				Value: 1,
				Usage: "seed for sample jitter",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Value:   "frame.png",
				Usage:   "output file",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "output format: png, bmp or tiff (default from the file extension)",
			},
			&cli.BoolFlag{
				Name:  "pin",
				Usage: "pin worker i to CPU i",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"RAYTRACE_LOG_LEVEL"},
				Value:   "info",
				Usage:   "trace, debug, info, warn or error",
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "write logs as JSON instead of console text",
			},
			&cli.BoolFlag{
				Name:  "detect-deadlocks",
				Usage: "report lock waits longer than 30s",
			},
		},
		Action: renderAction,
	}
}

func renderAction(c *cli.Context) error {
	// 1. Get flags
	logger, err := newLogger(c.App.ErrWriter, c.String("log-level"), c.Bool("log-json"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	out := c.String("out")
	format, err := resolveFormat(c.String("format"), out)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	configureDeadlockDetection(c.Bool("detect-deadlocks"), &logger)

	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logger.Debug().Msgf(format, args...)
	}))
	defer undo()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to set GOMAXPROCS")
	}

	threads := c.Int("threads")
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}

	// 2. Build the frame
	progress := &rate.Sometimes{First: 1, Interval: 500 * time.Millisecond}
	frame, err := render.NewFrame(render.Options{
		Width:   c.Int("width"),
		Height:  c.Int("height"),
		Samples: c.Int("samples"),
		Seed:    c.Int64("seed"),
		Logger:  &logger,
		Progress: func(done, total int) {
			progress.Do(func() {
				logger.Info().Int("done", done).Int("total", total).Msg("rendering")
			})
		},
	})
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	// 3. Start the pool
	config := &worker.Config{
		ThreadCount: threads,
		NamePrefix:  "render",
		Registry:    thread.NewRegistry(),
		Logger:      &logger,
	}
	if c.Bool("pin") {
		config.CPUs = pinnedCPUs(threads, runtime.NumCPU())
	}
	pool, err := worker.New(config)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to start thread pool: %v", err), 1)
	}
	defer pool.Destroy()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Render and write
	start := time.Now()
	img, err := frame.Render(ctx, pool)
	if err != nil {
		return cli.Exit(fmt.Sprintf("render failed: %v", err), 1)
	}
	took := time.Since(start)

	if err := writeImage(out, format, img); err != nil {
		return cli.Exit(fmt.Sprintf("failed to write %s: %v", out, err), 1)
	}

	stats := pool.Stats()
	logger.Info().
		Str("out", out).
		Str("format", string(format)).
		Int("threads", stats.ThreadCount).
		Int64("tiles", stats.Executed).
		Dur("took", took).
		Msg("frame written")
	return nil
}

// pinnedCPUs assigns worker i to CPU i, wrapping around when there are more
// workers than CPUs
func pinnedCPUs(threads, cpus int) []int {
	if cpus <= 0 {
		cpus = 1
	}
	pinned := make([]int, threads)
	for i := range pinned {
		pinned[i] = i % cpus
	}
	return pinned
}

func configureDeadlockDetection(enabled bool, logger *zerolog.Logger) {
	deadlock.Opts.Disable = !enabled
	if !enabled {
		return
	}
	deadlock.Opts.DeadlockTimeout = 30 * time.Second
	deadlock.Opts.LogBuf = logWriter{logger: logger}
	deadlock.Opts.OnPotentialDeadlock = func() {
		logger.Error().Msg("potential deadlock detected")
	}
}
