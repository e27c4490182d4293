package api

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf_unmark/pdf"
	"pdf_unmark/processor"
	"pdf_unmark/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 240, G: 240, B: 240, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type testServer struct {
	router   *gin.Engine
	sessions *session.Manager
	cleaned  []byte
	applied  chan string
}

// newTestServer wires the router to a real renderer and a fake processing
// service that answers apply-multipart with a small PNG.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{cleaned: pngBytes(t, 8, 6), applied: make(chan string, 1)}

	service := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/apply-multipart":
			ts.applied <- r.FormValue("actions")
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(ts.cleaned)
		case "/clear-session":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(service.Close)

	logger := zerolog.Nop()
	renderer, err := pdf.NewRenderer(8, logger)
	require.NoError(t, err)
	client := processor.NewClient(service.URL, 5*time.Second, logger)
	ts.sessions = session.NewManager(16, time.Minute, renderer, client, logger)
	t.Cleanup(ts.sessions.Close)

	ts.router = gin.New()
	SetupRoutes(ts.router, NewHandler(&Config{
		MaxFileSize:    1 << 20,
		DefaultWidth:   400,
		AllowedOrigins: []string{"http://localhost:5173"},
	}, ts.sessions, logger))
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) upload(t *testing.T, id, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(UploadField, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/document", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) createSession(t *testing.T) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var st session.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.NotEmpty(t, st.ID)
	return st.ID
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/sessions/nope/render", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "session not found", errorBody(t, w))
}

func TestUploadValidation(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)

	tests := []struct {
		name     string
		filename string
		data     []byte
		status   int
	}{
		{name: "pdf extension with wrong header", filename: "scan.pdf", data: []byte("not a pdf at all"), status: http.StatusBadRequest},
		{name: "plain text", filename: "notes.txt", data: []byte("hello world"), status: http.StatusBadRequest},
		{name: "empty", filename: "empty.png", data: nil, status: http.StatusBadRequest},
		{name: "too large", filename: "big.png", data: bytes.Repeat([]byte{0}, 1<<20+10), status: http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.upload(t, id, tt.filename, tt.data)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	w := ts.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	var st session.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Nil(t, st.Document)
}

func TestUploadWithoutFile(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)
	w := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/document", map[string]string{"file": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRenderRequiresDocument(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)
	w := ts.do(t, http.MethodGet, "/api/sessions/"+id+"/render", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRenderWidthValidation(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)
	require.Equal(t, http.StatusOK, ts.upload(t, id, "scan.png", pngBytes(t, 800, 600)).Code)

	for _, q := range []string{"0", "-5", "abc", "100000"} {
		w := ts.do(t, http.MethodGet, "/api/sessions/"+id+"/render?width="+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestEditingFlow(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)
	base := "/api/sessions/" + id

	w := ts.upload(t, id, "scan.png", pngBytes(t, 800, 600))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var info session.DocumentInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, 1, info.PageCount)
	assert.Equal(t, pdf.KindImage, info.Kind)

	// 800px wide page in a 400px container renders at half scale
	w = ts.do(t, http.MethodGet, base+"/render?width=400", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "400", w.Header().Get(HeaderRenderWidth))
	assert.Equal(t, "300", w.Header().Get(HeaderRenderHeight))
	assert.Equal(t, "0.5", w.Header().Get(HeaderRenderScale))
	assert.Equal(t, "1", w.Header().Get(HeaderPageCount))
	cfg, err := png.DecodeConfig(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 400, cfg.Width)

	// drag from bottom-right to top-left
	for _, ev := range []session.PointerEvent{
		{Type: session.PointerDown, X: 120, Y: 100},
		{Type: session.PointerMove, X: 60, Y: 70},
		{Type: session.PointerUp, X: 20, Y: 20},
	} {
		w = ts.do(t, http.MethodPost, base+"/overlay/pointer", ev)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	var res struct {
		Outcome string `json:"outcome"`
		ID      string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "committed", res.Outcome)
	require.NotEmpty(t, res.ID)

	w = ts.do(t, http.MethodGet, base+"/selections?page=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Selections []struct {
			ID     string     `json:"id"`
			Page   int        `json:"page"`
			BBox   [4]float64 `json:"bbox"`
			Method string     `json:"method"`
		} `json:"selections"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Selections, 1)
	assert.Equal(t, [4]float64{40, 40, 200, 160}, list.Selections[0].BBox)
	assert.Equal(t, "cover", list.Selections[0].Method)

	// a small drag is discarded
	ts.do(t, http.MethodPost, base+"/overlay/pointer", session.PointerEvent{Type: session.PointerDown, X: 300, Y: 200})
	w = ts.do(t, http.MethodPost, base+"/overlay/pointer", session.PointerEvent{Type: session.PointerUp, X: 305, Y: 250})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "discarded", res.Outcome)

	w = ts.do(t, http.MethodPost, base+"/selections", map[string]any{
		"page": 0, "bbox": []float64{500, 400, 100, 50}, "method": "delete",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, base+"/overlay", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"shapes"`)

	w = ts.do(t, http.MethodGet, base+"/overlay/preview?width=400", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = ts.do(t, http.MethodPost, base+"/actions", map[string]string{"color": "000"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"actions":[
		{"page":0,"bbox":[40,40,200,160],"method":"cover","color":"#000000"},
		{"page":0,"bbox":[500,400,100,50],"method":"delete"}
	]}`, w.Body.String())

	w = ts.do(t, http.MethodPost, base+"/process", map[string]any{"re_ocr": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, `attachment; filename="scan.cleaned.png"`, w.Header().Get("Content-Disposition"))
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")
	assert.Equal(t, ts.cleaned, w.Body.Bytes())
	assert.Contains(t, <-ts.applied, `"method":"delete"`)

	// selections survive processing
	w = ts.do(t, http.MethodGet, base, nil)
	var st session.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 2, st.Selections)
	assert.False(t, st.Processing)
}

func TestProcessRejectsUnusableOutput(t *testing.T) {
	ts := newTestServer(t)
	ts.cleaned = []byte("not an image")
	id := ts.createSession(t)
	base := "/api/sessions/" + id
	require.Equal(t, http.StatusOK, ts.upload(t, id, "scan.png", pngBytes(t, 100, 100)).Code)
	w := ts.do(t, http.MethodPost, base+"/selections", map[string]any{"page": 0, "bbox": []float64{10, 10, 50, 50}})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodPost, base+"/process", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, errorBody(t, w), "unusable file")
	<-ts.applied

	w = ts.do(t, http.MethodGet, base, nil)
	var st session.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 1, st.Selections)
	assert.Contains(t, st.LastError, "processing service apply failed")
}

func TestSelectionEndpoints(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)
	base := "/api/sessions/" + id
	require.Equal(t, http.StatusOK, ts.upload(t, id, "scan.png", pngBytes(t, 800, 600)).Code)

	t.Run("rejects page out of range", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, base+"/selections", map[string]any{"page": 3, "bbox": []float64{0, 0, 10, 10}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
	t.Run("rejects degenerate bbox", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, base+"/selections", map[string]any{"page": 0, "bbox": []float64{0, 0, 0, 10}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
	t.Run("rejects bad color", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, base+"/selections", map[string]any{"page": 0, "bbox": []float64{0, 0, 10, 10}, "color": "#zzz"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	w := ts.do(t, http.MethodPost, base+"/selections", map[string]any{"page": 0, "bbox": []float64{10, 10, 50, 50}})
	require.Equal(t, http.StatusCreated, w.Code)
	var sel struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sel))

	w = ts.do(t, http.MethodPatch, base+"/selections/"+sel.ID, map[string]any{"method": "inpaint"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"inpaint"`)

	w = ts.do(t, http.MethodPatch, base+"/selections/missing", map[string]any{"bbox": []float64{1, 1, 20, 20}})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodPut, base+"/overlay/selected", map[string]string{"id": sel.ID})
	assert.Equal(t, http.StatusConflict, w.Code, "selecting needs a rendered viewport")

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, base+"/render", nil).Code)
	w = ts.do(t, http.MethodPut, base+"/overlay/selected", map[string]string{"id": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(t, http.MethodPut, base+"/overlay/selected", map[string]string{"id": sel.ID})
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodPut, base+"/overlay/selected", map[string]string{"id": ""})
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodDelete, base+"/overlay/selected", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "nothing selected")
	ts.do(t, http.MethodPut, base+"/overlay/selected", map[string]string{"id": sel.ID})
	w = ts.do(t, http.MethodDelete, base+"/overlay/selected", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodDelete, base+"/selections/missing", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodDelete, base+"/selections", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodPost, base+"/actions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorBody(t, w), "no regions selected")

	w = ts.do(t, http.MethodPost, base+"/process", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNavigate(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)
	base := "/api/sessions/" + id
	require.Equal(t, http.StatusOK, ts.upload(t, id, "scan.png", pngBytes(t, 100, 100)).Code)

	w := ts.do(t, http.MethodPut, base+"/page", map[string]int{"page": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPut, base+"/page", map[string]int{"page": 0})
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPut, base+"/page", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPointerBeforeRender(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)
	base := "/api/sessions/" + id
	require.Equal(t, http.StatusOK, ts.upload(t, id, "scan.png", pngBytes(t, 100, 100)).Code)

	w := ts.do(t, http.MethodPost, base+"/overlay/pointer", session.PointerEvent{Type: session.PointerDown, X: 1, Y: 1})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, base+"/overlay/pointer", map[string]any{"type": "wiggle"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResetAndDeleteSession(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)
	base := "/api/sessions/" + id
	require.Equal(t, http.StatusOK, ts.upload(t, id, "scan.png", pngBytes(t, 100, 100)).Code)

	w := ts.do(t, http.MethodDelete, base+"/document", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st session.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Nil(t, st.Document)

	w = ts.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, ts.sessions.Len())

	w = ts.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"scan.pdf":         "scan.pdf",
		"../../etc/passwd": "__etc_passwd",
		"a\\b.png":         "a_b.png",
		"we\"ird\n.pdf":    "weird.pdf",
		"":                 "document.pdf",
		"..":               "document.pdf",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeFilename(in), in)
	}
}
