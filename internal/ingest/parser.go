package ingest

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
)

// PageSource yields per-page text and rendered images from a document.
// Pages are 0-indexed at this boundary; the pipeline reports them 1-based.
type PageSource interface {
	NumPages() int
	Text(page int) (string, error)
	RenderPNG(page int) ([]byte, error)
	Close() error
}

// fitzSource reads PDFs through go-fitz: native structured-text extraction
// plus page rasterization for the OCR fallback.
type fitzSource struct {
	doc *fitz.Document
	dpi float64
}

// OpenPDF opens a PDF for page-by-page extraction. scale is the raster
// upscale factor applied for OCR renders (2.0 means 144 dpi).
func OpenPDF(path string, scale float64) (PageSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	if scale <= 0 {
		scale = 2.0
	}
	return &fitzSource{doc: doc, dpi: 72 * scale}, nil
}

func (s *fitzSource) NumPages() int {
	return s.doc.NumPage()
}

func (s *fitzSource) Text(page int) (string, error) {
	return s.doc.Text(page)
}

func (s *fitzSource) RenderPNG(page int) ([]byte, error) {
	img, err := s.doc.ImageDPI(page, s.dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode page %d: %w", page, err)
	}
	return buf.Bytes(), nil
}

func (s *fitzSource) Close() error {
	return s.doc.Close()
}
