package overlay

import (
	"math"

	"pdf_unmark/selection"
)

// Shape is a stored selection as drawn on the current viewport.
type Shape struct {
	ID       string               `json:"id"`
	BBox     selection.BBox       `json:"bbox"`
	Native   selection.BBox       `json:"native_bbox"`
	Method   selection.MethodKind `json:"method"`
	Color    string               `json:"color,omitempty"`
	Selected bool                 `json:"selected"`
}

// Candidate is the live rectangle of a drag in progress.
type Candidate struct {
	BBox selection.BBox `json:"bbox"`
	// Committable reports whether releasing now would store the rectangle
	Committable bool `json:"committable"`
	Dashed      bool `json:"dashed"`
}

// Scene is everything a client needs to draw the overlay for the current page.
type Scene struct {
	Viewport   Viewport   `json:"viewport"`
	State      string     `json:"state"`
	SelectedID string     `json:"selected_id,omitempty"`
	Shapes     []Shape    `json:"shapes"`
	Candidate  *Candidate `json:"candidate,omitempty"`
}

// Scene describes the current page's shapes in display pixels.
func (o *Overlay) Scene() (Scene, error) {
	if !o.hasViewport {
		return Scene{}, ErrNoViewport
	}
	selected := o.SelectedID()
	scene := Scene{
		Viewport:   o.viewport,
		State:      o.state.String(),
		SelectedID: selected,
		Shapes:     []Shape{},
	}
	for _, s := range o.displayShapes() {
		scene.Shapes = append(scene.Shapes, Shape{
			ID:       s.sel.ID,
			BBox:     s.display,
			Native:   s.sel.BBox,
			Method:   s.sel.Method.Kind(),
			Color:    selection.ColorOf(s.sel.Method),
			Selected: s.sel.ID == selected,
		})
	}
	if o.state == Drawing {
		c := o.candidate()
		scene.Candidate = &Candidate{
			BBox:        c.Normalize(),
			Committable: math.Abs(c.Width) > MinDragSize && math.Abs(c.Height) > MinDragSize,
			Dashed:      true,
		}
	}
	return scene, nil
}

