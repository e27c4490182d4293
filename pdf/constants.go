package pdf

const (
	// PointsPerInch is the PDF user space unit; rendering at this DPI gives one pixel per point
	PointsPerInch = 72.0

	// MaxFitScale caps the fit-to-width scale so pages are never upscaled
	MaxFitScale = 1.0

	// DefaultRenderCacheEntries is the number of rasters kept by a Renderer
	DefaultRenderCacheEntries = 64

	// MIMEPDF is the content type of PDF documents
	MIMEPDF = "application/pdf"

	// MIMEPNG is the content type rasters and cleaned images are encoded as
	MIMEPNG = "image/png"
)
