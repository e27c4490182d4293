package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"
	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

func init() {
	// pdfcpu would otherwise create a config dir under the user's home on first use
	api.DisableConfigDir()
}

// Kind distinguishes paged PDF documents from single page raster images
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
)

// Document is an opened, parsed document. Page indexes are zero-based and
// native sizes are in PDF points for PDFs and pixels for images.
type Document interface {
	ID() string
	Name() string
	MIMEType() string
	Kind() Kind
	Bytes() []byte
	PageCount() int
	PageSize(page int) (width, height float64, err error)
	// Render rasterises page at scale. The result may differ from the exact
	// scaled size by rounding; Renderer resizes it.
	Render(ctx context.Context, page int, scale float64) (image.Image, error)
	Close() error
}

// DetectKind decides how data should be opened. The sniffed content wins over
// the declared MIME type, which wins over the file extension.
func DetectKind(name, mimeType string, data []byte) (Kind, string, error) {
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return KindPDF, MIMEPDF, nil
	}
	detected := mimetype.Detect(data)
	if strings.HasPrefix(detected.String(), "image/") {
		return KindImage, detected.String(), nil
	}

	declared := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	switch {
	case declared == MIMEPDF:
		return KindPDF, MIMEPDF, nil
	case strings.HasPrefix(declared, "image/"):
		return KindImage, declared, nil
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return KindPDF, MIMEPDF, nil
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return KindImage, "image/" + strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), "."), nil
	}
	return "", "", fmt.Errorf("unsupported document type %q", detected.String())
}

// Open parses data as a PDF or an image. Any parse failure is returned as a
// *DocumentLoadError.
func Open(name, mimeType string, data []byte) (Document, error) {
	if len(data) == 0 {
		return nil, &DocumentLoadError{Name: name, Err: errors.New("document is empty")}
	}
	kind, mimeType, err := DetectKind(name, mimeType, data)
	if err != nil {
		return nil, &DocumentLoadError{Name: name, Err: err}
	}
	switch kind {
	case KindPDF:
		return openPDF(name, data)
	default:
		return openImage(name, mimeType, data)
	}
}

type baseDocument struct {
	id       string
	name     string
	mimeType string
	data     []byte
}

func (d *baseDocument) ID() string       { return d.id }
func (d *baseDocument) Name() string     { return d.name }
func (d *baseDocument) MIMEType() string { return d.mimeType }
func (d *baseDocument) Bytes() []byte    { return d.data }

type pageDim struct {
	width, height float64
}

// pdfDocument pairs pdfcpu (validation, page geometry) with MuPDF (rasterisation).
type pdfDocument struct {
	baseDocument

	dims []pageDim

	// fitz documents are not safe for concurrent use
	mu  sync.Mutex
	doc *fitz.Document
}

func relaxedConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func openPDF(name string, data []byte) (*pdfDocument, error) {
	conf := relaxedConfig()
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return nil, &DocumentLoadError{Name: name, Err: fmt.Errorf("pdf validation failed: %w", err)}
	}

	dims, err := api.PageDims(bytes.NewReader(data), conf)
	if err != nil {
		return nil, &DocumentLoadError{Name: name, Err: fmt.Errorf("failed to read page dimensions: %w", err)}
	}
	if len(dims) == 0 {
		return nil, &DocumentLoadError{Name: name, Err: errors.New("pdf has no pages")}
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, &DocumentLoadError{Name: name, Err: fmt.Errorf("failed to open pdf for rendering: %w", err)}
	}

	d := &pdfDocument{
		baseDocument: baseDocument{id: uuid.NewString(), name: name, mimeType: MIMEPDF, data: data},
		doc:          doc,
	}
	for _, dim := range dims {
		d.dims = append(d.dims, pageDim{width: dim.Width, height: dim.Height})
	}
	return d, nil
}

func (d *pdfDocument) Kind() Kind { return KindPDF }

func (d *pdfDocument) PageCount() int { return len(d.dims) }

func (d *pdfDocument) PageSize(page int) (float64, float64, error) {
	if err := ValidatePageIndex(page, len(d.dims)); err != nil {
		return 0, 0, err
	}
	return d.dims[page].width, d.dims[page].height, nil
}

func (d *pdfDocument) Render(ctx context.Context, page int, scale float64) (image.Image, error) {
	if err := ValidatePageIndex(page, len(d.dims)); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.doc == nil {
		return nil, errors.New("document is closed")
	}

	img, err := d.doc.ImageDPI(page, PointsPerInch*scale)
	if err != nil {
		if errors.Is(err, fitz.ErrPageMissing) {
			return nil, &PageIndexError{Page: page, Total: len(d.dims)}
		}
		return nil, fmt.Errorf("failed to render page %d: %w", page, err)
	}
	return img, nil
}

func (d *pdfDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return nil
	}
	err := d.doc.Close()
	d.doc = nil
	return err
}

// imageDocument is a single page raster; one native unit is one pixel.
type imageDocument struct {
	baseDocument
	img *image.NRGBA
}

func openImage(name, mimeType string, data []byte) (*imageDocument, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DocumentLoadError{Name: name, Err: fmt.Errorf("failed to decode image: %w", err)}
	}
	if img.Bounds().Empty() {
		return nil, &DocumentLoadError{Name: name, Err: errors.New("image has no pixels")}
	}
	return &imageDocument{
		baseDocument: baseDocument{id: uuid.NewString(), name: name, mimeType: mimeType, data: data},
		img:          imaging.Clone(img),
	}, nil
}

func (d *imageDocument) Kind() Kind { return KindImage }

func (d *imageDocument) PageCount() int { return 1 }

func (d *imageDocument) PageSize(page int) (float64, float64, error) {
	if err := ValidatePageIndex(page, 1); err != nil {
		return 0, 0, err
	}
	b := d.img.Bounds()
	return float64(b.Dx()), float64(b.Dy()), nil
}

func (d *imageDocument) Render(ctx context.Context, page int, scale float64) (image.Image, error) {
	if err := ValidatePageIndex(page, 1); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := d.img.Bounds()
	w, h := ScaledSize(float64(b.Dx()), float64(b.Dy()), scale)
	if w == b.Dx() && h == b.Dy() {
		return imaging.Clone(d.img), nil
	}
	return imaging.Resize(d.img, w, h, imaging.Lanczos), nil
}

func (d *imageDocument) Close() error { return nil }
