// Package overlay turns pointer gestures over a rendered page into selections.
//
// Pointer coordinates are display pixels of the current viewport. Stored
// selections are page-native; the overlay divides by the viewport scale when
// it commits a rectangle and multiplies when it draws one.
//
// An Overlay is not safe for concurrent use; the owning session serialises access.
package overlay

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"pdf_unmark/selection"
)

// MinDragSize is the size in display pixels a drag must exceed in both
// dimensions to be committed.
const MinDragSize = 10.0

var (
	ErrNoViewport       = errors.New("overlay has no viewport; render a page first")
	ErrUnknownSelection = errors.New("selection not found on current page")
	ErrInvalidViewport  = errors.New("viewport must have positive size and scale")
)

// State is the pointer gesture state.
type State int

const (
	Idle State = iota
	Drawing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Drawing:
		return "drawing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Point is a pointer position in display pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport is the display surface of one rendered page.
type Viewport struct {
	Page   int     `json:"page"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Scale  float64 `json:"scale"`
}

// Outcome describes what a pointer event did.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeDrawingStarted
	OutcomeSelected
	OutcomeCommitted
	OutcomeDiscarded
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeDrawingStarted:
		return "drawing_started"
	case OutcomeSelected:
		return "selected"
	case OutcomeCommitted:
		return "committed"
	case OutcomeDiscarded:
		return "discarded"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result is returned from pointer events. ID is the committed or selected
// selection, if any.
type Result struct {
	Outcome Outcome `json:"outcome"`
	ID      string  `json:"id,omitempty"`
}

type Overlay struct {
	store *selection.Store

	viewport    Viewport
	hasViewport bool

	state      State
	anchor     Point
	cursor     Point
	selectedID string
}

// New returns an idle overlay over store. It has no viewport until SetViewport.
func New(store *selection.Store) *Overlay {
	return &Overlay{store: store}
}

// SetViewport sizes the overlay to an accepted render. Switching pages resets
// the gesture and the selection; a new size on the same page only abandons a
// drag in progress.
func (o *Overlay) SetViewport(v Viewport) error {
	if v.Width <= 0 || v.Height <= 0 || v.Scale <= 0 || v.Page < 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidViewport, v)
	}
	if !o.hasViewport || v.Page != o.viewport.Page {
		o.reset()
	} else if v != o.viewport {
		o.state = Idle
	}
	o.viewport = v
	o.hasViewport = true
	return nil
}

// Viewport returns the current viewport and whether one has been set.
func (o *Overlay) Viewport() (Viewport, bool) {
	return o.viewport, o.hasViewport
}

func (o *Overlay) State() State { return o.state }

// Reset forgets the viewport, gesture and selection.
func (o *Overlay) Reset() {
	o.reset()
	o.viewport = Viewport{}
	o.hasViewport = false
}

func (o *Overlay) reset() {
	o.state = Idle
	o.anchor = Point{}
	o.cursor = Point{}
	o.selectedID = ""
}

// PointerDown selects the topmost rectangle under pt, or starts drawing when
// pt is on empty background.
func (o *Overlay) PointerDown(pt Point) (Result, error) {
	if !o.hasViewport {
		return Result{}, ErrNoViewport
	}
	pt = o.clamp(pt)

	// a down without a matching up abandons the previous drag
	o.state = Idle

	if id, ok := o.hitTest(pt); ok {
		o.selectedID = id
		return Result{Outcome: OutcomeSelected, ID: id}, nil
	}

	o.selectedID = ""
	o.state = Drawing
	o.anchor = pt
	o.cursor = pt
	return Result{Outcome: OutcomeDrawingStarted}, nil
}

// PointerMove updates the live candidate while drawing.
func (o *Overlay) PointerMove(pt Point) (Result, error) {
	if !o.hasViewport {
		return Result{}, ErrNoViewport
	}
	if o.state == Drawing {
		o.cursor = o.clamp(pt)
	}
	return Result{Outcome: OutcomeNone}, nil
}

// PointerUp ends a drag. The candidate is committed as a white cover on the
// current page when it exceeds MinDragSize in both dimensions and discarded
// otherwise.
func (o *Overlay) PointerUp(pt Point) (Result, error) {
	if !o.hasViewport {
		return Result{}, ErrNoViewport
	}
	if o.state != Drawing {
		return Result{Outcome: OutcomeNone}, nil
	}
	o.cursor = o.clamp(pt)
	o.state = Idle

	candidate := o.candidate()
	if math.Abs(candidate.Width) <= MinDragSize || math.Abs(candidate.Height) <= MinDragSize {
		return Result{Outcome: OutcomeDiscarded}, nil
	}

	native := candidate.Normalize().Scale(1 / o.viewport.Scale)
	id, err := o.store.Add(o.viewport.Page, native, selection.DefaultMethod())
	if err != nil {
		return Result{}, fmt.Errorf("failed to commit selection: %w", err)
	}
	return Result{Outcome: OutcomeCommitted, ID: id}, nil
}

// Cancel abandons a drag in progress, e.g. when the pointer leaves the surface.
func (o *Overlay) Cancel() Result {
	if o.state != Drawing {
		return Result{Outcome: OutcomeNone}
	}
	o.state = Idle
	return Result{Outcome: OutcomeCancelled}
}

// Select marks a selection on the current page as selected.
func (o *Overlay) Select(id string) error {
	if !o.hasViewport {
		return ErrNoViewport
	}
	sel, ok := o.store.Get(id)
	if !ok || sel.Page != o.viewport.Page {
		return fmt.Errorf("%w: %s", ErrUnknownSelection, id)
	}
	o.selectedID = id
	return nil
}

// Deselect clears the selection without touching the store.
func (o *Overlay) Deselect() {
	o.selectedID = ""
}

// SelectedID returns the selected selection id, or "" when nothing on the
// current page is selected.
func (o *Overlay) SelectedID() string {
	if o.selectedID == "" {
		return ""
	}
	if sel, ok := o.store.Get(o.selectedID); !ok || sel.Page != o.viewport.Page {
		o.selectedID = ""
	}
	return o.selectedID
}

// DeleteSelected removes the selected selection from the store. It returns
// the removed id and false when nothing was selected.
func (o *Overlay) DeleteSelected() (string, bool) {
	id := o.SelectedID()
	if id == "" {
		return "", false
	}
	o.store.Remove(id)
	o.selectedID = ""
	return id, true
}

// candidate is the raw drag rectangle in display pixels; width and height may
// be negative.
func (o *Overlay) candidate() selection.BBox {
	return selection.BBox{
		X:      o.anchor.X,
		Y:      o.anchor.Y,
		Width:  o.cursor.X - o.anchor.X,
		Height: o.cursor.Y - o.anchor.Y,
	}
}

func (o *Overlay) hitTest(pt Point) (string, bool) {
	shapes := o.displayShapes()
	// last drawn is on top
	for _, s := range slices.Backward(shapes) {
		if s.display.Contains(pt.X, pt.Y) {
			return s.sel.ID, true
		}
	}
	return "", false
}

type displayShape struct {
	sel     selection.Selection
	display selection.BBox
}

func (o *Overlay) displayShapes() []displayShape {
	var shapes []displayShape
	for sel := range o.store.ListForPage(o.viewport.Page) {
		shapes = append(shapes, displayShape{sel: sel, display: sel.BBox.Scale(o.viewport.Scale)})
	}
	return shapes
}

func (o *Overlay) clamp(pt Point) Point {
	return Point{
		X: math.Max(0, math.Min(pt.X, float64(o.viewport.Width))),
		Y: math.Max(0, math.Min(pt.Y, float64(o.viewport.Height))),
	}
}
