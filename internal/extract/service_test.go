package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/smartexam/reval/internal/providers"
	"github.com/smartexam/reval/internal/storage"
	"github.com/smartexam/reval/internal/types"
)

const pngMagic = "\x89PNG\r\n\x1a\n"

// fakePDFs serves documents keyed by their file content.
type fakePDFs struct {
	docs    map[string]*fakeDoc
	opened  int
	invalid bool
}

type fakeDoc struct {
	pages  []string // text layer per page
	closed bool
}

func (f *fakePDFs) PageCount(data []byte) (int, error) {
	if f.invalid {
		return 0, errors.New("xref table corrupt")
	}
	d, ok := f.docs[string(data)]
	if !ok {
		return 0, errors.New("not a known pdf")
	}
	return len(d.pages), nil
}

func (f *fakePDFs) Open(data []byte) (Document, error) {
	d, ok := f.docs[string(data)]
	if !ok {
		return nil, errors.New("not a known pdf")
	}
	f.opened++
	return d, nil
}

func (d *fakeDoc) NumPage() int               { return len(d.pages) }
func (d *fakeDoc) Text(n int) (string, error) { return d.pages[n], nil }
func (d *fakeDoc) Close() error               { d.closed = true; return nil }

// RenderPNG returns a PNG-looking payload naming the page so the OCR mock
// can answer per page.
func (d *fakeDoc) RenderPNG(n int, dpi float64) ([]byte, error) {
	return []byte(fmt.Sprintf("%srender-%d", pngMagic, n+1)), nil
}

func newTestService(t *testing.T, pdfs *fakePDFs, ocr providers.OCREngine) (*Service, *storage.Local) {
	t.Helper()
	local, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	svc := New(Config{Storage: local, OCR: ocr, PDF: pdfs})
	return svc, local
}

func put(t *testing.T, s storage.Storage, ref, data string) {
	t.Helper()
	if err := s.Put(context.Background(), ref, strings.NewReader(data)); err != nil {
		t.Fatalf("Put(%s) error = %v", ref, err)
	}
}

func TestExtractText_DigitalPDF(t *testing.T) {
	longText := strings.Repeat("Newton's second law states F = ma. ", 300)
	pdfs := &fakePDFs{docs: map[string]*fakeDoc{
		"%PDF-long":  {pages: []string{longText[:5000], longText[5000:]}},
		"%PDF-short": {pages: []string{"Answer Key"}},
	}}
	ocr := &providers.MockOCR{Default: "Q1 Photosynthesis uses chlorophyll to capture light."}
	svc, store := newTestService(t, pdfs, ocr)
	put(t, store, "keys/long.pdf", "%PDF-long")
	put(t, store, "keys/short.pdf", "%PDF-short")

	t.Run("long text layer returned unchanged without OCR", func(t *testing.T) {
		text, err := svc.ExtractText(context.Background(), "keys/long.pdf", KindDigitalPDF)
		if err != nil {
			t.Fatalf("ExtractText() error = %v", err)
		}
		if text != longText[:5000]+"\n"+longText[5000:] {
			t.Errorf("text layer was modified")
		}
		if ocr.Calls() != 0 {
			t.Errorf("expected no OCR calls, got %d", ocr.Calls())
		}
	})

	t.Run("short text layer falls back to OCR", func(t *testing.T) {
		text, err := svc.ExtractText(context.Background(), "keys/short.pdf", KindDigitalPDF)
		if err != nil {
			t.Fatalf("ExtractText() error = %v", err)
		}
		if ocr.Calls() != 1 {
			t.Errorf("expected 1 OCR call for 1 page, got %d", ocr.Calls())
		}
		if !strings.HasPrefix(text, "--- Page 1 ---\n") || !strings.Contains(text, "chlorophyll") {
			t.Errorf("unexpected OCR text: %q", text)
		}
	})
}

func TestExtractText_Threshold(t *testing.T) {
	pdfs := &fakePDFs{docs: map[string]*fakeDoc{
		"%PDF-exact": {pages: []string{strings.Repeat("x", 20)}},
	}}
	ocr := &providers.MockOCR{Default: "ocr text"}
	local, _ := storage.NewLocal(t.TempDir())
	put(t, local, "k.pdf", "%PDF-exact")

	tests := []struct {
		name    string
		min     int
		wantOCR bool
	}{
		{"at threshold uses text layer", 20, false},
		{"above text length uses OCR", 21, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := ocr.Calls()
			svc := New(Config{Storage: local, OCR: ocr, PDF: pdfs, MinContentChars: tt.min})
			if _, err := svc.ExtractText(context.Background(), "k.pdf", KindDigitalPDF); err != nil {
				t.Fatalf("ExtractText() error = %v", err)
			}
			if gotOCR := ocr.Calls() > before; gotOCR != tt.wantOCR {
				t.Errorf("OCR invoked = %v, want %v", gotOCR, tt.wantOCR)
			}
		})
	}
}

func TestExtractText_Errors(t *testing.T) {
	t.Run("missing file is unreadable", func(t *testing.T) {
		svc, _ := newTestService(t, &fakePDFs{}, &providers.MockOCR{})
		_, err := svc.ExtractText(context.Background(), "keys/none.pdf", KindDigitalPDF)
		if !errors.Is(err, types.ErrUnreadableDocument) || !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected unreadable wrapping not found, got %v", err)
		}
	})

	t.Run("corrupt pdf is unreadable", func(t *testing.T) {
		svc, store := newTestService(t, &fakePDFs{invalid: true}, &providers.MockOCR{})
		put(t, store, "bad.pdf", "%PDF-garbage")
		_, err := svc.ExtractText(context.Background(), "bad.pdf", KindDigitalPDF)
		if !errors.Is(err, types.ErrUnreadableDocument) {
			t.Errorf("expected ErrUnreadableDocument, got %v", err)
		}
	})

	t.Run("blank OCR is insufficient content", func(t *testing.T) {
		svc, store := newTestService(t, &fakePDFs{}, &providers.MockOCR{Default: "  \n "})
		put(t, store, "blank.png", pngMagic+"blank")
		_, err := svc.ExtractText(context.Background(), "blank.png", KindScannedImage)
		if !errors.Is(err, types.ErrInsufficientContent) {
			t.Errorf("expected ErrInsufficientContent, got %v", err)
		}
	})

	t.Run("OCR engine failure propagates", func(t *testing.T) {
		boom := errors.New("engine crashed")
		svc, store := newTestService(t, &fakePDFs{}, &providers.MockOCR{Err: boom})
		put(t, store, "p.png", pngMagic+"p")
		_, err := svc.ExtractText(context.Background(), "p.png", KindScannedImage)
		if !errors.Is(err, boom) {
			t.Errorf("expected engine error, got %v", err)
		}
	})

	t.Run("unsupported upload type", func(t *testing.T) {
		svc, store := newTestService(t, &fakePDFs{}, &providers.MockOCR{Default: "x"})
		put(t, store, "notes.txt", "plain text notes")
		_, err := svc.ExtractText(context.Background(), "notes.txt", KindScannedImage)
		if !errors.Is(err, types.ErrUnreadableDocument) {
			t.Errorf("expected ErrUnreadableDocument, got %v", err)
		}
	})
}

func TestExtractPages_ThreePageScript(t *testing.T) {
	ocr := &providers.MockOCR{Pages: map[string]string{
		pngMagic + "page-1": "Answer 1: mitochondria",
		pngMagic + "page-2": "Answer 2: ribosome",
		pngMagic + "page-3": "Answer 3: nucleus",
	}}
	svc, store := newTestService(t, &fakePDFs{}, ocr)
	refs := []string{"scripts/7/p1.png", "scripts/7/p2.png", "scripts/7/p3.png"}
	for i, ref := range refs {
		put(t, store, ref, fmt.Sprintf("%spage-%d", pngMagic, i+1))
	}

	text, err := svc.ExtractPages(context.Background(), refs)
	if err != nil {
		t.Fatalf("ExtractPages() error = %v", err)
	}

	want := "--- Page 1 ---\nAnswer 1: mitochondria\n" +
		"--- Page 2 ---\nAnswer 2: ribosome\n" +
		"--- Page 3 ---\nAnswer 3: nucleus\n"
	if text != want {
		t.Errorf("ExtractPages() =\n%q\nwant\n%q", text, want)
	}
}

func TestExtractPages_PDFPagesNumberedAcrossUploads(t *testing.T) {
	pdfs := &fakePDFs{docs: map[string]*fakeDoc{"%PDF-scan": {pages: []string{"", ""}}}}
	ocr := &providers.MockOCR{Pages: map[string]string{
		pngMagic + "photo":    "front page",
		pngMagic + "render-1": "scan one",
		pngMagic + "render-2": "scan two",
	}}
	svc, store := newTestService(t, pdfs, ocr)
	put(t, store, "a.png", pngMagic+"photo")
	put(t, store, "b.pdf", "%PDF-scan")

	text, err := svc.ExtractPages(context.Background(), []string{"a.png", "b.pdf"})
	if err != nil {
		t.Fatalf("ExtractPages() error = %v", err)
	}
	for i, s := range []string{"front page", "scan one", "scan two"} {
		seg := fmt.Sprintf("--- Page %d ---\n%s\n", i+1, s)
		if !strings.Contains(text, seg) {
			t.Errorf("missing segment %q in %q", seg, text)
		}
	}
	if !pdfs.docs["%PDF-scan"].closed {
		t.Error("expected rendered document to be closed")
	}
}

func TestExtractPages_NoRefs(t *testing.T) {
	svc, _ := newTestService(t, &fakePDFs{}, &providers.MockOCR{})
	if _, err := svc.ExtractPages(context.Background(), nil); !errors.Is(err, types.ErrInsufficientContent) {
		t.Errorf("expected ErrInsufficientContent, got %v", err)
	}
}

func TestPageImages(t *testing.T) {
	pdfs := &fakePDFs{docs: map[string]*fakeDoc{"%PDF-two": {pages: []string{"a", "b"}}}}
	svc, store := newTestService(t, pdfs, nil)
	put(t, store, "p1.jpg", "\xff\xd8\xff\xe0jpegdata")
	put(t, store, "p2.pdf", "%PDF-two")

	images, err := svc.PageImages(context.Background(), []string{"p1.jpg", "p2.pdf"})
	if err != nil {
		t.Fatalf("PageImages() error = %v", err)
	}
	if len(images) != 3 {
		t.Fatalf("expected 3 images, got %d", len(images))
	}
	if images[0].MIMEType != "image/jpeg" {
		t.Errorf("expected jpeg, got %s", images[0].MIMEType)
	}
	if images[2].MIMEType != "image/png" || !bytes.HasSuffix(images[2].Data, []byte("render-2")) {
		t.Errorf("unexpected rendered page: %s %q", images[2].MIMEType, images[2].Data)
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"nul bytes", "Q1\x00 answer", "Q1 answer"},
		{"blank lines", "line one\n\n\n  \nline two", "line one line two"},
		{"whitespace runs", "  a \t\t b   c  ", "a b c"},
		{"empty", "\x00\n\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.in); got != tt.want {
				t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
