package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
	"sync/atomic"
)

// TileSize is the edge length of a square render tile in pixels
const TileSize = 64

// Tile is a rectangular region of the frame. Edge tiles may be smaller than
// TileSize when the frame is not evenly divisible.
type Tile struct {
	// Index is the row-major position of the tile in the frame
	Index int

	// Bounds is the pixel region covered by the tile
	Bounds image.Rectangle
}

// splitTiles covers a width x height frame with row-major tiles
func splitTiles(width, height int) []Tile {
	tilesX := (width + TileSize - 1) / TileSize
	tilesY := (height + TileSize - 1) / TileSize

	tiles := make([]Tile, 0, tilesX*tilesY)
	for ty := range tilesY {
		for tx := range tilesX {
			r := image.Rect(tx*TileSize, ty*TileSize, (tx+1)*TileSize, (ty+1)*TileSize)
			tiles = append(tiles, Tile{
				Index:  len(tiles),
				Bounds: r.Intersect(image.Rect(0, 0, width, height)),
			})
		}
	}
	return tiles
}

// TileStatus defines the outcome of a TileTask
type TileStatus int32

const (
	// TilePending represents a tile that has not been rendered yet
	TilePending TileStatus = iota
	// TileRendered represents a tile whose pixels have been written
	TileRendered
	// TileAbandoned represents a tile discarded by the pool
	TileAbandoned
	// TileRetracted represents a tile taken back before it was dispatched
	TileRetracted
	// TileFailed represents a tile whose rendering panicked
	TileFailed
)

// String returns the string representation of TileStatus
func (s TileStatus) String() string {
	switch s {
	case TilePending:
		return "pending"
	case TileRendered:
		return "rendered"
	case TileAbandoned:
		return "abandoned"
	case TileRetracted:
		return "retracted"
	case TileFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TileTask renders one tile of a frame into a shared image. Tasks of the same
// render write disjoint pixel regions, so they need no locking.
type TileTask struct {
	frame    *Frame
	tile     Tile
	img      *image.RGBA
	finished *int64

	status int32
	done   chan struct{}
}

func newTileTask(f *Frame, tile Tile, img *image.RGBA, finished *int64) *TileTask {
	return &TileTask{
		frame:    f,
		tile:     tile,
		img:      img,
		finished: finished,
		done:     make(chan struct{}),
	}
}

// ID returns the task ID
func (t *TileTask) ID() string {
	return fmt.Sprintf("tile-%d", t.tile.Index)
}

// Tile returns the region rendered by the task
func (t *TileTask) Tile() Tile {
	return t.tile
}

// Execute renders the tile. A panic while rendering marks the tile failed
// and is passed on to the caller.
func (t *TileTask) Execute() {
	rendered := false
	defer func() {
		if !rendered {
			t.finish(TileFailed)
		}
	}()

	t.frame.renderTile(t.tile, t.img)
	rendered = true
	t.finish(TileRendered)
	t.frame.reportProgress(atomic.AddInt64(t.finished, 1))
}

// Abandon leaves the tile unrendered
func (t *TileTask) Abandon() {
	t.finish(TileAbandoned)
}

func (t *TileTask) retract() {
	t.finish(TileRetracted)
}

func (t *TileTask) finish(status TileStatus) {
	if atomic.CompareAndSwapInt32(&t.status, int32(TilePending), int32(status)) {
		close(t.done)
	}
}

// Status returns the tile outcome so far
func (t *TileTask) Status() TileStatus {
	return TileStatus(atomic.LoadInt32(&t.status))
}

// Done is closed once the tile has an outcome
func (t *TileTask) Done() <-chan struct{} {
	return t.done
}

// renderTile writes every pixel of tile into img. The sample jitter is drawn
// from a generator seeded by the tile index, so a tile renders identically on
// any thread.
func (f *Frame) renderTile(tile Tile, img *image.RGBA) {
	rng := rand.New(rand.NewSource(f.seed + int64(tile.Index)*7919))
	w := float64(f.width)
	h := float64(f.height)
	inv := 1 / float64(f.samples)

	for y := tile.Bounds.Min.Y; y < tile.Bounds.Max.Y; y++ {
		for x := tile.Bounds.Min.X; x < tile.Bounds.Max.X; x++ {
			var sum Vec3
			for s := 0; s < f.samples; s++ {
				jx, jy := 0.5, 0.5
				if f.samples > 1 {
					jx, jy = rng.Float64(), rng.Float64()
				}
				u := (float64(x) + jx) / w
				v := 1 - (float64(y)+jy)/h
				sum = sum.Add(f.scene.Shade(f.camera.Ray(u, v)))
			}
			img.SetRGBA(x, y, toRGBA(sum.Scale(inv)))
		}
	}
}

// toRGBA gamma-corrects a linear color and quantizes it
func toRGBA(c Vec3) color.RGBA {
	return color.RGBA{
		R: quantize(c.X),
		G: quantize(c.Y),
		B: quantize(c.Z),
		A: 0xff,
	}
}

func quantize(v float64) uint8 {
	v = math.Sqrt(math.Max(v, 0))
	if v >= 1 {
		return 0xff
	}
	return uint8(v * 256)
}
