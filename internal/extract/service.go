// Package extract turns stored documents into text: the text layer of
// digital PDFs, or OCR of scanned pages when the text layer is too thin.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/smartexam/reval/internal/providers"
	"github.com/smartexam/reval/internal/storage"
	"github.com/smartexam/reval/internal/types"
)

// Kind says how a document is expected to carry its text.
type Kind string

const (
	KindDigitalPDF   Kind = "digital-pdf"
	KindScannedImage Kind = "scanned-image"
)

// DefaultMinContentChars is the text-layer length below which a digital PDF
// is treated as scanned.
const DefaultMinContentChars = 50

// Config configures a Service.
type Config struct {
	Storage         storage.Storage
	OCR             providers.OCREngine
	MinContentChars int     // default DefaultMinContentChars
	RenderDPI       float64 // default 200
	PDF             PDFReader
	Logger          *slog.Logger
}

// Service extracts text from stored documents.
type Service struct {
	storage         storage.Storage
	ocr             providers.OCREngine
	minContentChars int
	renderDPI       float64
	pdf             PDFReader
	logger          *slog.Logger
}

// New creates an extraction service.
func New(cfg Config) *Service {
	if cfg.MinContentChars <= 0 {
		cfg.MinContentChars = DefaultMinContentChars
	}
	if cfg.RenderDPI <= 0 {
		cfg.RenderDPI = 200
	}
	if cfg.PDF == nil {
		cfg.PDF = defaultPDFReader{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		storage:         cfg.Storage,
		ocr:             cfg.OCR,
		minContentChars: cfg.MinContentChars,
		renderDPI:       cfg.RenderDPI,
		pdf:             cfg.PDF,
		logger:          cfg.Logger,
	}
}

// ExtractText returns the text of the document at ref.
//
// For KindDigitalPDF the text layer is returned unchanged unless its trimmed
// length is under MinContentChars, in which case the pages are rendered and
// OCRed as for KindScannedImage.
func (s *Service) ExtractText(ctx context.Context, ref string, kind Kind) (string, error) {
	data, err := s.read(ctx, ref)
	if err != nil {
		return "", err
	}

	switch kind {
	case KindDigitalPDF:
		text, err := s.textLayer(data)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", types.ErrUnreadableDocument, ref, err)
		}
		if n := len([]rune(strings.TrimSpace(text))); n >= s.minContentChars {
			s.logger.Debug("digital text layer used", "ref", ref, "chars", n)
			return text, nil
		}
		s.logger.Info("text layer below threshold, falling back to OCR",
			"ref", ref, "min_chars", s.minContentChars)
		return s.ocrDocuments(ctx, []document{{ref: ref, data: data}})

	case KindScannedImage:
		return s.ocrDocuments(ctx, []document{{ref: ref, data: data}})

	default:
		return "", fmt.Errorf("unknown document kind %q", kind)
	}
}

// ExtractPages OCRs an ordered list of page uploads. Each ref is an image or
// a PDF whose pages are rendered in order; page numbers run across refs.
func (s *Service) ExtractPages(ctx context.Context, refs []string) (string, error) {
	if len(refs) == 0 {
		return "", fmt.Errorf("%w: no pages", types.ErrInsufficientContent)
	}
	docs := make([]document, 0, len(refs))
	for _, ref := range refs {
		data, err := s.read(ctx, ref)
		if err != nil {
			return "", err
		}
		docs = append(docs, document{ref: ref, data: data})
	}
	return s.ocrDocuments(ctx, docs)
}

// PageImages loads page uploads as images for a vision model. PDFs are
// rendered to PNG page by page.
func (s *Service) PageImages(ctx context.Context, refs []string) ([]providers.Image, error) {
	var images []providers.Image
	for _, ref := range refs {
		data, err := s.read(ctx, ref)
		if err != nil {
			return nil, err
		}
		pages, err := s.pageImages(document{ref: ref, data: data})
		if err != nil {
			return nil, err
		}
		images = append(images, pages...)
	}
	return images, nil
}

type document struct {
	ref  string
	data []byte
}

func (s *Service) read(ctx context.Context, ref string) ([]byte, error) {
	data, err := storage.ReadAll(ctx, s.storage, ref)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidRef) {
			return nil, fmt.Errorf("%w: %w", types.ErrUnreadableDocument, err)
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", types.ErrUnreadableDocument, ref)
	}
	return data, nil
}

func (s *Service) textLayer(data []byte) (string, error) {
	pages, err := s.pdf.PageCount(data)
	if err != nil {
		return "", fmt.Errorf("invalid pdf: %w", err)
	}
	doc, err := s.pdf.Open(data)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	if n := doc.NumPage(); n < pages {
		pages = n
	}
	var sb strings.Builder
	for i := 0; i < pages; i++ {
		text, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("read page %d: %w", i+1, err)
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

func isPDF(data []byte) bool {
	return http.DetectContentType(data) == "application/pdf"
}

// pageImages expands one upload into its page images.
func (s *Service) pageImages(d document) ([]providers.Image, error) {
	if !isPDF(d.data) {
		mime := http.DetectContentType(d.data)
		if !strings.HasPrefix(mime, "image/") {
			return nil, fmt.Errorf("%w: %s has unsupported type %s", types.ErrUnreadableDocument, d.ref, mime)
		}
		return []providers.Image{{Data: d.data, MIMEType: mime}}, nil
	}

	if _, err := s.pdf.PageCount(d.data); err != nil {
		return nil, fmt.Errorf("%w: %s: invalid pdf: %v", types.ErrUnreadableDocument, d.ref, err)
	}
	doc, err := s.pdf.Open(d.data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrUnreadableDocument, d.ref, err)
	}
	defer doc.Close()

	images := make([]providers.Image, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		png, err := doc.RenderPNG(i, s.renderDPI)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", types.ErrUnreadableDocument, d.ref, err)
		}
		images = append(images, providers.Image{Data: png, MIMEType: "image/png"})
	}
	return images, nil
}

// ocrDocuments OCRs every page of docs and joins the results with page
// separators numbered from 1.
func (s *Service) ocrDocuments(ctx context.Context, docs []document) (string, error) {
	if s.ocr == nil {
		return "", fmt.Errorf("no OCR engine configured")
	}

	var sb strings.Builder
	page := 0
	usable := 0
	for _, d := range docs {
		images, err := s.pageImages(d)
		if err != nil {
			return "", err
		}
		for _, img := range images {
			page++
			text, err := s.ocr.Recognize(ctx, img.Data, page)
			if err != nil {
				return "", fmt.Errorf("ocr page %d of %s: %w", page, d.ref, err)
			}
			usable += len(strings.TrimSpace(text))
			sb.WriteString(PageSeparator(page))
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	}

	if usable == 0 {
		return "", fmt.Errorf("%w: OCR found no text in %d page(s)", types.ErrInsufficientContent, page)
	}
	s.logger.Debug("ocr complete", "pages", page, "engine", s.ocr.Name())
	return sb.String(), nil
}
