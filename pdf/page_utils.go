package pdf

import "math"

// ValidatePageIndex checks a zero-based page index against the total number of pages.
// Out of range indexes are rejected, never clamped.
func ValidatePageIndex(page, totalPages int) error {
	if page < 0 || page >= totalPages {
		return &PageIndexError{Page: page, Total: totalPages}
	}
	return nil
}

// FitScale returns the display scale that fits a page of nativeWidth into containerWidth
// without upscaling: min(containerWidth/nativeWidth, 1.0)
func FitScale(containerWidth, nativeWidth float64) float64 {
	if nativeWidth <= 0 || containerWidth <= 0 {
		return MaxFitScale
	}
	return math.Min(containerWidth/nativeWidth, MaxFitScale)
}

// ScaledSize returns the pixel size of a page of the given native size at scale.
// Each dimension is floored and kept at least one pixel.
func ScaledSize(nativeWidth, nativeHeight, scale float64) (int, int) {
	w := int(math.Floor(nativeWidth * scale))
	h := int(math.Floor(nativeHeight * scale))
	return max(w, 1), max(h, 1)
}
