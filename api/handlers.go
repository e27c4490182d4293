package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"

	"pdf_unmark/selection"
	"pdf_unmark/session"
)

const sessionKey = "session"

func (h *Handler) loadSession(c *gin.Context) {
	s, ok := h.sessions.Get(c.Param("id"))
	if !ok {
		respondError(c, errSessionNotFound)
		return
	}
	c.Set(sessionKey, s)
	c.Next()
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

// CreateSession handles POST /api/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	s := h.sessions.Create()
	c.JSON(http.StatusCreated, s.State())
}

// GetSession returns the session state
func (h *Handler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, currentSession(c).State())
}

// DeleteSession forgets the session locally and asks the processing service
// to drop anything it holds for it.
func (h *Handler) DeleteSession(c *gin.Context) {
	s := currentSession(c)
	if err := s.ClearRemote(c.Request.Context()); err != nil {
		h.logger.Warn().Err(err).Str("session", s.ID()).Msg("processing service clear-session failed")
	}
	h.sessions.Delete(s.ID())
	c.Status(http.StatusNoContent)
}

// LoadDocument handles the document upload and replaces the session state with it
func (h *Handler) LoadDocument(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.config.MaxFileSize+MultipartOverhead)

	file, header, err := c.Request.FormFile(UploadField)
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer file.Close()

	up, err := readUpload(file, header, h.config.MaxFileSize)
	if err != nil {
		respondError(c, err)
		return
	}

	info, err := currentSession(c).Load(up.name, up.mimeType, up.data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// ResetDocument drops the document and every selection
func (h *Handler) ResetDocument(c *gin.Context) {
	s := currentSession(c)
	s.Reset()
	c.JSON(http.StatusOK, s.State())
}

type navigateRequest struct {
	Page *int `json:"page" binding:"required"`
}

// Navigate moves the session to another page
func (h *Handler) Navigate(c *gin.Context) {
	var req navigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	s := currentSession(c)
	if err := s.Navigate(*req.Page); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.State())
}

// containerWidth reads the width query parameter, falling back to the
// configured default.
func (h *Handler) containerWidth(c *gin.Context) (int, error) {
	raw := c.Query("width")
	if raw == "" {
		return h.config.DefaultWidth, nil
	}
	w, err := strconv.Atoi(raw)
	if err != nil || w <= 0 || w > MaxRenderWidth {
		return 0, fmt.Errorf("%w: width must be between 1 and %d", errBadRequest, MaxRenderWidth)
	}
	return w, nil
}

// Render streams the current page as PNG. The viewport the overlay was sized
// to is reported in headers.
func (h *Handler) Render(c *gin.Context) {
	width, err := h.containerWidth(c)
	if err != nil {
		respondError(c, err)
		return
	}
	s := currentSession(c)
	raster, err := s.Render(c.Request.Context(), width)
	if err != nil {
		respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := raster.EncodePNG(&buf); err != nil {
		respondError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Header(HeaderPage, strconv.Itoa(raster.Page))
	if st := s.State(); st.Document != nil {
		c.Header(HeaderPageCount, strconv.Itoa(st.Document.PageCount))
	}
	c.Header(HeaderRenderWidth, strconv.Itoa(raster.Width))
	c.Header(HeaderRenderHeight, strconv.Itoa(raster.Height))
	c.Header(HeaderRenderScale, strconv.FormatFloat(raster.Scale, 'f', -1, 64))
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// Scene returns the overlay of the current page as JSON
func (h *Handler) Scene(c *gin.Context) {
	scene, err := currentSession(c).Scene()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, scene)
}

// Preview renders the current page with the overlay drawn on top
func (h *Handler) Preview(c *gin.Context) {
	width, err := h.containerWidth(c)
	if err != nil {
		respondError(c, err)
		return
	}
	img, err := currentSession(c).Preview(c.Request.Context(), width)
	if err != nil {
		respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// Pointer feeds one pointer event to the overlay
func (h *Handler) Pointer(c *gin.Context) {
	var ev session.PointerEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	res, err := currentSession(c).Pointer(ev)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type selectRequest struct {
	ID string `json:"id"`
}

// Select marks a region on the current page as selected. An empty id clears
// the selection.
func (h *Handler) Select(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	s := currentSession(c)
	if req.ID == "" {
		s.Deselect()
		c.JSON(http.StatusOK, gin.H{"selected_id": nil})
		return
	}
	if err := s.Select(req.ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected_id": req.ID})
}

// DeleteSelected removes the selected region
func (h *Handler) DeleteSelected(c *gin.Context) {
	id, ok := currentSession(c).DeleteSelected()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No selection to delete"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// ListSelections lists regions, optionally filtered by ?page=
func (h *Handler) ListSelections(c *gin.Context) {
	var page *int
	if raw := c.Query("page"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, fmt.Errorf("%w: invalid page %q", errBadRequest, raw))
			return
		}
		page = &p
	}
	sels := currentSession(c).Selections(page)
	if sels == nil {
		sels = []selection.Selection{}
	}
	c.JSON(http.StatusOK, gin.H{"selections": sels})
}

// selectionRequest carries a page-native bbox and an optional method.
type selectionRequest struct {
	Page   int             `json:"page"`
	BBox   *selection.BBox `json:"bbox"`
	Method string          `json:"method"`
	Color  string          `json:"color"`
}

// AddSelection stores a region given in page units
func (h *Handler) AddSelection(c *gin.Context) {
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if req.BBox == nil {
		respondError(c, fmt.Errorf("%w: bbox is required", errBadRequest))
		return
	}
	method, err := selection.ParseMethod(req.Method, req.Color)
	if err != nil {
		respondError(c, err)
		return
	}
	sel, err := currentSession(c).AddSelection(req.Page, *req.BBox, method)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sel)
}

// UpdateSelection patches the bbox or method of a region
func (h *Handler) UpdateSelection(c *gin.Context) {
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	patch := selection.Patch{BBox: req.BBox}
	if req.Method != "" || req.Color != "" {
		method, err := selection.ParseMethod(req.Method, req.Color)
		if err != nil {
			respondError(c, err)
			return
		}
		patch.Method = method
	}

	sel, ok, err := currentSession(c).UpdateSelection(c.Param("sid"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		// absent ids are a tolerated no-op
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, sel)
}

// RemoveSelection deletes one region
func (h *Handler) RemoveSelection(c *gin.Context) {
	currentSession(c).RemoveSelection(c.Param("sid"))
	c.Status(http.StatusNoContent)
}

// ClearSelections removes every region but keeps the document
func (h *Handler) ClearSelections(c *gin.Context) {
	currentSession(c).ClearSelections()
	c.Status(http.StatusNoContent)
}

type processRequest struct {
	Color string `json:"color"`
	ReOCR bool   `json:"re_ocr"`
}

func bindOptionalJSON(c *gin.Context, v any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// CompileActions previews the action list without sending it anywhere.
func (h *Handler) CompileActions(c *gin.Context) {
	var req processRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	acts, err := currentSession(c).Actions(req.Color)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": acts})
}

// Process sends the document and its actions to the processing service and
// returns the cleaned file as a download.
func (h *Handler) Process(c *gin.Context) {
	var req processRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	out, err := currentSession(c).Process(c.Request.Context(), req.Color, req.ReOCR)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sanitizeFilename(out.Filename)))
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Data(http.StatusOK, out.MIMEType, out.Data)
}
