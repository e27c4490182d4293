package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// VerifyOutput checks that cleaned bytes returned by the processing service
// parse as the expected kind before they are offered for download.
func VerifyOutput(kind Kind, data []byte) error {
	if len(data) == 0 {
		return errors.New("processed file is empty")
	}
	switch kind {
	case KindPDF:
		if err := api.Validate(bytes.NewReader(data), relaxedConfig()); err != nil {
			return fmt.Errorf("processed pdf is invalid: %w", err)
		}
	case KindImage:
		if _, err := imaging.Decode(bytes.NewReader(data)); err != nil {
			return fmt.Errorf("processed image is invalid: %w", err)
		}
	default:
		return fmt.Errorf("unknown document kind %q", kind)
	}
	return nil
}

// CleanedFilename derives the download name for a processed document:
// "scan.pdf" becomes "scan.cleaned.pdf" and images always get a .png suffix.
func CleanedFilename(name string, kind Kind) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "document"
	}
	if kind == KindPDF {
		return base + ".cleaned.pdf"
	}
	return base + ".cleaned.png"
}

// OutputMIMEType is the content type of the processed file for a document kind.
func OutputMIMEType(kind Kind) string {
	if kind == KindPDF {
		return MIMEPDF
	}
	return MIMEPNG
}
