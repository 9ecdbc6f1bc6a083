package extract

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Document is an opened PDF.
type Document interface {
	NumPage() int
	// Text returns the text layer of page n (0-based).
	Text(n int) (string, error)
	// RenderPNG rasterizes page n (0-based) at dpi.
	RenderPNG(n int, dpi float64) ([]byte, error)
	Close() error
}

// PDFReader validates and opens PDFs.
type PDFReader interface {
	// PageCount validates the file structure and returns its page count.
	PageCount(data []byte) (int, error)
	Open(data []byte) (Document, error)
}

// defaultPDFReader validates with pdfcpu and reads/renders with MuPDF.
type defaultPDFReader struct{}

func (defaultPDFReader) PageCount(data []byte) (int, error) {
	return api.PageCount(bytes.NewReader(data), nil)
}

func (defaultPDFReader) Open(data []byte) (Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	return &fitzDocument{doc: doc}, nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (d *fitzDocument) NumPage() int {
	return d.doc.NumPage()
}

func (d *fitzDocument) Text(n int) (string, error) {
	return d.doc.Text(n)
}

func (d *fitzDocument) RenderPNG(n int, dpi float64) ([]byte, error) {
	img, err := d.doc.ImageDPI(n, dpi)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", n+1, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode page %d: %w", n+1, err)
	}
	return buf.Bytes(), nil
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}
