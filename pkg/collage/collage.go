// Package collage composes post media into a single grid image with an
// optional caption band underneath.
package collage

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // register decoder
	"image/jpeg"
	_ "image/png" // register decoder
	"io"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // instagram CDN serves webp
	errs "igprofiler/pkg/errors"
)

const (
	DefaultCellSize   = 400
	DefaultMaxCount   = 9
	DefaultQuality    = 85
	DefaultBandHeight = 150
)

// Source is one slot of the collage. Either Data (encoded bytes) or Image
// (already decoded, e.g. a video frame) is set.
type Source struct {
	Name  string
	Data  []byte
	Image image.Image
}

// Options controls layout and encoding.
type Options struct {
	CellSize int
	MaxCount int
	Quality  int
	// Columns and Rows force a fixed grid; zero picks the grid from the count.
	Columns int
	Rows    int
	// Caption adds a text band below the grid when non-nil.
	Caption    *Caption
	BandHeight int
}

// Failure records a slot left blank.
type Failure struct {
	Index int
	Name  string
	Err   error
}

// Result is a rendered collage.
type Result struct {
	Image    *image.RGBA
	Columns  int
	Rows     int
	Cells    int
	Filled   int
	Blank    int
	Failures []Failure
}

// Grid returns the layout for n images.
func Grid(n int) (cols, rows int) {
	switch {
	case n <= 1:
		return 1, 1
	case n == 2:
		return 2, 1
	case n <= 4:
		return 2, 2
	default:
		return 3, 3
	}
}

func (o Options) withDefaults() Options {
	if o.CellSize <= 0 {
		o.CellSize = DefaultCellSize
	}
	if o.MaxCount <= 0 {
		o.MaxCount = DefaultMaxCount
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	if o.Caption != nil && o.BandHeight <= 0 {
		o.BandHeight = DefaultBandHeight
	}
	if o.Caption == nil {
		o.BandHeight = 0
	}
	return o
}

// Build renders sources into a grid. Sources past MaxCount are dropped.
// Undecodable sources leave a blank slot and are listed in Failures; an error
// is returned only when nothing could be placed.
func Build(sources []Source, opts Options) (*Result, error) {
	if len(sources) == 0 {
		return nil, errs.New(errs.ErrorTypeValidation, "collage needs at least one image")
	}
	opts = opts.withDefaults()
	if len(sources) > opts.MaxCount {
		sources = sources[:opts.MaxCount]
	}

	cols, rows := opts.Columns, opts.Rows
	if cols <= 0 || rows <= 0 {
		cols, rows = Grid(len(sources))
	}
	if len(sources) > cols*rows {
		sources = sources[:cols*rows]
	}

	cell := opts.CellSize
	gridHeight := rows * cell
	canvas := image.NewRGBA(image.Rect(0, 0, cols*cell, gridHeight+opts.BandHeight))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	res := &Result{Image: canvas, Columns: cols, Rows: rows, Cells: cols * rows}
	for i, src := range sources {
		img, err := src.decode()
		if err != nil {
			res.Failures = append(res.Failures, Failure{Index: i, Name: src.Name, Err: err})
			continue
		}
		x, y := (i%cols)*cell, (i/cols)*cell
		coverInto(canvas, image.Rect(x, y, x+cell, y+cell), img)
		res.Filled++
	}
	res.Blank = res.Cells - res.Filled

	if res.Filled == 0 {
		return nil, errs.Decode(res.Failures[0].Err, fmt.Sprintf("none of %d images could be decoded", len(sources)))
	}
	if opts.Caption != nil {
		drawBand(canvas, image.Rect(0, gridHeight, canvas.Bounds().Dx(), gridHeight+opts.BandHeight), *opts.Caption)
	}
	return res, nil
}

func (s Source) decode() (image.Image, error) {
	if s.Image != nil {
		return s.Image, nil
	}
	if len(s.Data) == 0 {
		return nil, errs.Decode(nil, "empty image data")
	}
	img, _, err := image.Decode(bytes.NewReader(s.Data))
	if err != nil {
		return nil, errs.Decode(err, "image decode failed")
	}
	return img, nil
}

// coverInto scales img to cover dst and crops the overflow evenly from both
// sides.
func coverInto(canvas draw.Image, dst image.Rectangle, img image.Image) {
	sb := img.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	if sw == 0 || sh == 0 {
		return
	}
	dw, dh := dst.Dx(), dst.Dy()

	crop := sb
	// Compare aspect ratios without floats: sw/sh vs dw/dh.
	if sw*dh > sh*dw {
		w := sh * dw / dh
		crop.Min.X = sb.Min.X + (sw-w)/2
		crop.Max.X = crop.Min.X + w
	} else if sw*dh < sh*dw {
		h := sw * dh / dw
		crop.Min.Y = sb.Min.Y + (sh-h)/2
		crop.Max.Y = crop.Min.Y + h
	}

	draw.CatmullRom.Scale(canvas, dst, img, crop, draw.Src, nil)
}

// Encode writes the collage as JPEG.
func (r *Result) Encode(w io.Writer, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return jpeg.Encode(w, r.Image, &jpeg.Options{Quality: quality})
}

// Bytes returns the JPEG encoding of the collage.
func (r *Result) Bytes(quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Encode(&buf, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
