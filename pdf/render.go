package pdf

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// Raster is a rendered page. Width and Height are the exact pixel size of
// Image and define the viewport the overlay is sized to.
type Raster struct {
	Image        *image.NRGBA
	Page         int
	Width        int
	Height       int
	Scale        float64
	NativeWidth  float64
	NativeHeight float64
}

// EncodePNG writes the raster as PNG.
func (r *Raster) EncodePNG(w io.Writer) error {
	return imaging.Encode(w, r.Image, imaging.PNG)
}

type cacheKey struct {
	doc   string
	page  int
	width int
}

// Renderer produces fit-to-width rasters and caches them per (document, page, container width).
type Renderer struct {
	cache  *lru.Cache[cacheKey, *Raster]
	logger zerolog.Logger
}

// NewRenderer creates a renderer caching up to cacheEntries rasters.
func NewRenderer(cacheEntries int, logger zerolog.Logger) (*Renderer, error) {
	if cacheEntries <= 0 {
		cacheEntries = DefaultRenderCacheEntries
	}
	cache, err := lru.New[cacheKey, *Raster](cacheEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create render cache: %w", err)
	}
	return &Renderer{cache: cache, logger: logger.With().Str("component", "renderer").Logger()}, nil
}

// Render rasterises page of doc to fit containerWidth. The returned raster is
// exactly floor(native*scale) pixels in each dimension. No raster is returned
// on failure.
func (r *Renderer) Render(ctx context.Context, doc Document, page, containerWidth int) (*Raster, error) {
	if containerWidth <= 0 {
		return nil, fmt.Errorf("container width must be positive, got %d", containerWidth)
	}
	if err := ValidatePageIndex(page, doc.PageCount()); err != nil {
		return nil, err
	}

	key := cacheKey{doc: doc.ID(), page: page, width: containerWidth}
	if raster, ok := r.cache.Get(key); ok {
		return raster, nil
	}

	nativeW, nativeH, err := doc.PageSize(page)
	if err != nil {
		return nil, err
	}
	scale := FitScale(float64(containerWidth), nativeW)
	w, h := ScaledSize(nativeW, nativeH, scale)

	img, err := doc.Render(ctx, page, scale)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out *image.NRGBA
	if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
		r.logger.Debug().
			Int("page", page).
			Int("got_width", b.Dx()).Int("got_height", b.Dy()).
			Int("want_width", w).Int("want_height", h).
			Msg("resizing raster to viewport")
		out = imaging.Resize(img, w, h, imaging.Lanczos)
	} else if nrgba, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		out = nrgba
	} else {
		out = imaging.Clone(img)
	}

	raster := &Raster{
		Image:        out,
		Page:         page,
		Width:        w,
		Height:       h,
		Scale:        scale,
		NativeWidth:  nativeW,
		NativeHeight: nativeH,
	}
	r.cache.Add(key, raster)
	return raster, nil
}

// Forget drops every cached raster of the document with the given id.
func (r *Renderer) Forget(docID string) {
	for _, key := range r.cache.Keys() {
		if key.doc == docID {
			r.cache.Remove(key)
		}
	}
}
