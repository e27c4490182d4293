package selection

import (
	"encoding/json"
	"fmt"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"
)

// BBox is an axis-aligned box (x, y, width, height). Stored boxes are in
// page-native units: PDF points for PDF pages, pixels for raster images.
type BBox struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// FromRect converts an r2 rectangle to a BBox anchored at its low corner.
func FromRect(r r2.Rect) BBox {
	lo := r.Lo()
	size := r.Size()
	return BBox{X: lo.X, Y: lo.Y, Width: size.X, Height: size.Y}
}

// Rect returns the box as an r2 rectangle. The box is normalized first.
func (b BBox) Rect() r2.Rect {
	n := b.Normalize()
	return r2.Rect{
		X: r1.Interval{Lo: n.X, Hi: n.X + n.Width},
		Y: r1.Interval{Lo: n.Y, Hi: n.Y + n.Height},
	}
}

// Normalize flips the origin of boxes with negative width or height so both
// become non-negative. A drag from (200,150) to (50,50) becomes (50,50,150,100).
func (b BBox) Normalize() BBox {
	return FromRect(r2.RectFromPoints(
		r2.Point{X: b.X, Y: b.Y},
		r2.Point{X: b.X + b.Width, Y: b.Y + b.Height},
	))
}

// Valid reports whether the box has strictly positive width and height.
func (b BBox) Valid() bool {
	return b.Width > 0 && b.Height > 0
}

// Scale multiplies every component by f.
func (b BBox) Scale(f float64) BBox {
	return BBox{X: b.X * f, Y: b.Y * f, Width: b.Width * f, Height: b.Height * f}
}

// Contains reports whether (x, y) lies inside the box, edges included.
func (b BBox) Contains(x, y float64) bool {
	return b.Rect().ContainsPoint(r2.Point{X: x, Y: y})
}

// Array returns the box in wire order.
func (b BBox) Array() [4]float64 {
	return [4]float64{b.X, b.Y, b.Width, b.Height}
}

func (b BBox) String() string {
	return fmt.Sprintf("(%g, %g, %g, %g)", b.X, b.Y, b.Width, b.Height)
}

// MarshalJSON encodes the box as [x, y, width, height].
func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Array())
}

// UnmarshalJSON decodes a four element array.
func (b *BBox) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("bbox: %w", err)
	}
	if len(arr) != 4 {
		return fmt.Errorf("bbox: expected 4 numbers, got %d", len(arr))
	}
	*b = BBox{X: arr[0], Y: arr[1], Width: arr[2], Height: arr[3]}
	return nil
}
