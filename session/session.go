// Package session holds the per-client state of the region editor: the active
// document, the current page, its selections and overlay, and the processing
// flag.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pdf_unmark/actions"
	"pdf_unmark/overlay"
	"pdf_unmark/pdf"
	"pdf_unmark/processor"
	"pdf_unmark/selection"
)

var (
	ErrNoDocument           = errors.New("no document loaded")
	ErrProcessingInProgress = errors.New("a processing request is already in progress")
	ErrStaleRender          = errors.New("render superseded by a newer page or document")
	ErrUnknownPointerEvent  = errors.New("unknown pointer event type")
)

// Processor is the remote cleaning service.
type Processor interface {
	Apply(ctx context.Context, file processor.File, acts []actions.Action, reOCR bool) ([]byte, error)
	ClearSession(ctx context.Context) error
}

// PointerType is the kind of pointer gesture event.
type PointerType string

const (
	PointerDown   PointerType = "down"
	PointerMove   PointerType = "move"
	PointerUp     PointerType = "up"
	PointerCancel PointerType = "cancel"
)

type PointerEvent struct {
	Type PointerType `json:"type"`
	X    float64     `json:"x"`
	Y    float64     `json:"y"`
}

// DocumentInfo describes the loaded document.
type DocumentInfo struct {
	Name      string   `json:"name"`
	MIMEType  string   `json:"mime_type"`
	Kind      pdf.Kind `json:"kind"`
	PageCount int      `json:"page_count"`
	Size      int      `json:"size"`
}

// State is a point-in-time view of a session.
type State struct {
	ID           string        `json:"id"`
	Document     *DocumentInfo `json:"document,omitempty"`
	Page         int           `json:"page"`
	Selections   int           `json:"selections"`
	OverlayState string        `json:"overlay_state"`
	SelectedID   string        `json:"selected_id,omitempty"`
	Processing   bool          `json:"processing"`
	LastError    string        `json:"last_error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Output is a cleaned document ready for download.
type Output struct {
	Filename string
	MIMEType string
	Data     []byte
}

type Session struct {
	id        string
	createdAt time.Time
	renderer  *pdf.Renderer
	processor Processor
	logger    zerolog.Logger

	mu         sync.Mutex
	doc        pdf.Document
	page       int
	store      *selection.Store
	overlay    *overlay.Overlay
	processing bool
	lastErr    string

	// generation changes on every navigation, document change and render
	// request; a render that finishes under an older generation is discarded
	generation   uint64
	cancelRender context.CancelFunc
}

func newSession(id string, renderer *pdf.Renderer, proc Processor, logger zerolog.Logger) *Session {
	store := selection.NewStore()
	return &Session{
		id:        id,
		createdAt: time.Now(),
		renderer:  renderer,
		processor: proc,
		logger:    logger.With().Str("session", id).Logger(),
		store:     store,
		overlay:   overlay.New(store),
	}
}

// ID identifies the session in API paths.
func (s *Session) ID() string { return s.id }

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		ID:           s.id,
		Page:         s.page,
		Selections:   s.store.Len(),
		OverlayState: s.overlay.State().String(),
		SelectedID:   s.overlay.SelectedID(),
		Processing:   s.processing,
		LastError:    s.lastErr,
		CreatedAt:    s.createdAt,
	}
	if s.doc != nil {
		st.Document = &DocumentInfo{
			Name:      s.doc.Name(),
			MIMEType:  s.doc.MIMEType(),
			Kind:      s.doc.Kind(),
			PageCount: s.doc.PageCount(),
			Size:      len(s.doc.Bytes()),
		}
	}
	return st
}

// Load opens data and replaces the whole session state with it. On failure the
// session keeps its previous document and selections.
func (s *Session) Load(name, mimeType string, data []byte) (DocumentInfo, error) {
	doc, err := pdf.Open(name, mimeType, data)
	if err != nil {
		s.setError(err)
		return DocumentInfo{}, err
	}

	info := s.install(doc)
	s.logger.Info().
		Str("file", info.Name).
		Str("kind", string(info.Kind)).
		Int("pages", info.PageCount).
		Int("bytes", info.Size).
		Msg("document loaded")
	return info, nil
}

// install makes doc the active document, replacing all prior state at once.
func (s *Session) install(doc pdf.Document) DocumentInfo {
	s.mu.Lock()
	old := s.doc
	s.resetLocked()
	s.doc = doc
	info := DocumentInfo{
		Name:      doc.Name(),
		MIMEType:  doc.MIMEType(),
		Kind:      doc.Kind(),
		PageCount: doc.PageCount(),
		Size:      len(doc.Bytes()),
	}
	s.mu.Unlock()

	s.release(old)
	return info
}

// Reset drops the document and all selections.
func (s *Session) Reset() {
	s.mu.Lock()
	old := s.doc
	s.resetLocked()
	s.mu.Unlock()
	s.release(old)
}

// ClearRemote asks the processing service to forget this client and then
// resets local state.
func (s *Session) ClearRemote(ctx context.Context) error {
	s.Reset()
	if err := s.processor.ClearSession(ctx); err != nil {
		s.setError(err)
		return err
	}
	return nil
}

// Close releases the document. The session must not be used afterwards.
func (s *Session) Close() {
	s.Reset()
}

func (s *Session) resetLocked() {
	s.bumpLocked()
	s.doc = nil
	s.page = 0
	s.store.Clear()
	s.overlay.Reset()
	s.lastErr = ""
}

func (s *Session) release(doc pdf.Document) {
	if doc == nil {
		return
	}
	s.renderer.Forget(doc.ID())
	if err := doc.Close(); err != nil {
		s.logger.Warn().Err(err).Str("file", doc.Name()).Msg("failed to close document")
	}
}

// bumpLocked invalidates in-flight renders.
func (s *Session) bumpLocked() {
	s.generation++
	if s.cancelRender != nil {
		s.cancelRender()
		s.cancelRender = nil
	}
}

func (s *Session) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err.Error()
}

// Navigate moves to page. Out of range pages are rejected and leave the current
// page unchanged.
func (s *Session) Navigate(page int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return ErrNoDocument
	}
	if err := pdf.ValidatePageIndex(page, s.doc.PageCount()); err != nil {
		return err
	}
	if page == s.page {
		return nil
	}
	s.bumpLocked()
	s.page = page
	s.overlay.Reset()
	return nil
}

// Page returns the current page index.
func (s *Session) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// Render rasterises the current page to fit containerWidth and sizes the
// overlay to it. A render overtaken by navigation, a document change or a
// newer render fails with ErrStaleRender and leaves the overlay alone.
func (s *Session) Render(ctx context.Context, containerWidth int) (*pdf.Raster, error) {
	s.mu.Lock()
	if s.doc == nil {
		s.mu.Unlock()
		return nil, ErrNoDocument
	}
	s.bumpLocked()
	gen, page, doc := s.generation, s.page, s.doc
	rctx, cancel := context.WithCancel(ctx)
	s.cancelRender = cancel
	s.mu.Unlock()
	defer cancel()

	raster, err := s.renderer.Render(rctx, doc, page, containerWidth)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || page != s.page || doc != s.doc {
		s.logger.Debug().Int("page", page).Msg("discarding stale render")
		return nil, ErrStaleRender
	}
	s.cancelRender = nil
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.lastErr = err.Error()
		}
		return nil, err
	}

	v := overlay.Viewport{Page: page, Width: raster.Width, Height: raster.Height, Scale: raster.Scale}
	if err := s.overlay.SetViewport(v); err != nil {
		return nil, fmt.Errorf("failed to size overlay: %w", err)
	}
	return raster, nil
}

// Preview renders the current page with the overlay composited on top.
func (s *Session) Preview(ctx context.Context, containerWidth int) (*image.NRGBA, error) {
	raster, err := s.Render(ctx, containerWidth)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.overlay.Viewport(); !ok || v.Page != raster.Page {
		return nil, ErrStaleRender
	}
	return s.overlay.Compose(raster.Image)
}

// Pointer feeds one pointer event to the overlay.
func (s *Session) Pointer(ev PointerEvent) (overlay.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return overlay.Result{}, ErrNoDocument
	}
	pt := overlay.Point{X: ev.X, Y: ev.Y}
	switch ev.Type {
	case PointerDown:
		return s.overlay.PointerDown(pt)
	case PointerMove:
		return s.overlay.PointerMove(pt)
	case PointerUp:
		res, err := s.overlay.PointerUp(pt)
		if err == nil && res.Outcome == overlay.OutcomeCommitted {
			s.logger.Debug().Str("selection", res.ID).Int("page", s.page).Msg("region committed")
		}
		return res, err
	case PointerCancel:
		return s.overlay.Cancel(), nil
	default:
		return overlay.Result{}, fmt.Errorf("%w: %q", ErrUnknownPointerEvent, ev.Type)
	}
}

// Scene describes the overlay of the current page in display pixels.
func (s *Session) Scene() (overlay.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return overlay.Scene{}, ErrNoDocument
	}
	return s.overlay.Scene()
}

// Select marks a selection on the current page as selected.
func (s *Session) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return ErrNoDocument
	}
	return s.overlay.Select(id)
}

// Deselect clears the selection highlight.
func (s *Session) Deselect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlay.Deselect()
}

// DeleteSelected removes the selected region, reporting whether one was selected.
func (s *Session) DeleteSelected() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlay.DeleteSelected()
}

// Selections lists stored selections, all of them when page is nil.
func (s *Session) Selections(page *int) []selection.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page == nil {
		return slices.Collect(s.store.All())
	}
	return slices.Collect(s.store.ListForPage(*page))
}

// AddSelection stores a region given in page-native units.
func (s *Session) AddSelection(page int, bbox selection.BBox, method selection.Method) (selection.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return selection.Selection{}, ErrNoDocument
	}
	if err := pdf.ValidatePageIndex(page, s.doc.PageCount()); err != nil {
		return selection.Selection{}, err
	}
	id, err := s.store.Add(page, bbox, method)
	if err != nil {
		return selection.Selection{}, err
	}
	sel, _ := s.store.Get(id)
	return sel, nil
}

// UpdateSelection patches a region. Unknown ids are ignored and reported as
// not found.
func (s *Session) UpdateSelection(id string, patch selection.Patch) (selection.Selection, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Update(id, patch); err != nil {
		return selection.Selection{}, false, err
	}
	sel, ok := s.store.Get(id)
	return sel, ok, nil
}

// RemoveSelection deletes a region. Unknown ids are ignored.
func (s *Session) RemoveSelection(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Remove(id)
}

// ClearSelections removes every region but keeps the document.
func (s *Session) ClearSelections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Clear()
	s.overlay.Deselect()
}

// Actions compiles the stored selections without processing them.
func (s *Session) Actions(color string) ([]actions.Action, error) {
	compiler, err := actions.NewCompiler(color)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return compiler.Compile(s.store)
}

// Process compiles the selections and sends the document to the processing
// service. Only one request may be outstanding; a failure is recorded in the
// error slot and leaves document and selections as they were.
func (s *Session) Process(ctx context.Context, color string, reOCR bool) (*Output, error) {
	compiler, err := actions.NewCompiler(color)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.doc == nil {
		s.mu.Unlock()
		return nil, ErrNoDocument
	}
	if s.processing {
		s.mu.Unlock()
		return nil, ErrProcessingInProgress
	}
	acts, err := compiler.Compile(s.store)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	doc := s.doc
	s.processing = true
	s.lastErr = ""
	s.mu.Unlock()

	file := processor.File{Name: doc.Name(), MIMEType: doc.MIMEType(), Data: doc.Bytes()}
	data, err := s.processor.Apply(ctx, file, acts, reOCR)
	if err == nil {
		if verr := pdf.VerifyOutput(doc.Kind(), data); verr != nil {
			err = &processor.ServiceError{
				Op:      "apply",
				Message: "processing service returned an unusable file: " + verr.Error(),
				Err:     verr,
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = false
	if err != nil {
		s.lastErr = err.Error()
		s.logger.Error().Err(err).Str("file", doc.Name()).Msg("processing failed")
		return nil, err
	}
	return &Output{
		Filename: pdf.CleanedFilename(doc.Name(), doc.Kind()),
		MIMEType: pdf.OutputMIMEType(doc.Kind()),
		Data:     data,
	}, nil
}
