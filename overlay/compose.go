package overlay

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"pdf_unmark/selection"
)

const (
	fillOpacity       = 0.35
	strokeWidth       = 2
	selectedStroke    = 3
	dashLength        = 6
	deleteFillHex     = "#E53935"
	inpaintFillHex    = "#1E88E5"
	strokeHex         = "#212121"
	selectedStrokeHex = "#FF9800"
	candidateHex      = "#1976D2"
)

// Compose draws the overlay scene onto a copy of base: semi-transparent fills
// with solid strokes for stored shapes and a dashed stroke for the candidate.
func (o *Overlay) Compose(base image.Image) (*image.NRGBA, error) {
	scene, err := o.Scene()
	if err != nil {
		return nil, err
	}

	dst := imaging.Clone(base)
	if b := dst.Bounds(); b.Dx() != scene.Viewport.Width || b.Dy() != scene.Viewport.Height {
		dst = imaging.Resize(dst, scene.Viewport.Width, scene.Viewport.Height, imaging.Lanczos)
	}

	for _, s := range scene.Shapes {
		r := pixelRect(s.BBox).Intersect(dst.Bounds())
		if r.Empty() {
			continue
		}
		fill := imaging.New(r.Dx(), r.Dy(), fillColor(s))
		dst = imaging.Overlay(dst, fill, r.Min, fillOpacity)

		if s.Selected {
			strokeRect(dst, r, hexColor(selectedStrokeHex), selectedStroke, 0)
		} else {
			strokeRect(dst, r, hexColor(strokeHex), strokeWidth, 0)
		}
	}

	if c := scene.Candidate; c != nil {
		r := pixelRect(c.BBox).Intersect(dst.Bounds())
		if !r.Empty() {
			strokeRect(dst, r, hexColor(candidateHex), strokeWidth, dashLength)
		}
	}
	return dst, nil
}

func fillColor(s Shape) color.NRGBA {
	switch s.Method {
	case selection.KindDelete:
		return hexColor(deleteFillHex)
	case selection.KindInpaint:
		return hexColor(inpaintFillHex)
	default:
		return hexColor(s.Color)
	}
}

func hexColor(hex string) color.NRGBA {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.NRGBA{A: 255}
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

func pixelRect(b selection.BBox) image.Rectangle {
	return image.Rect(
		int(math.Floor(b.X)),
		int(math.Floor(b.Y)),
		int(math.Ceil(b.X+b.Width)),
		int(math.Ceil(b.Y+b.Height)),
	)
}

// strokeRect draws the inside border of r. A non-zero dash alternates dash
// pixels on and off along each edge.
func strokeRect(dst *image.NRGBA, r image.Rectangle, c color.NRGBA, width, dash int) {
	on := func(i int) bool {
		return dash == 0 || (i/dash)%2 == 0
	}
	for w := 0; w < width; w++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if on(x - r.Min.X) {
				dst.SetNRGBA(x, r.Min.Y+w, c)
				dst.SetNRGBA(x, r.Max.Y-1-w, c)
			}
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			if on(y - r.Min.Y) {
				dst.SetNRGBA(r.Min.X+w, y, c)
				dst.SetNRGBA(r.Max.X-1-w, y, c)
			}
		}
	}
}
