package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	pdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Extraction is the plain text pulled out of a document.
type Extraction struct {
	Text  string
	Pages int
}

// Extractor converts raw document bytes into plain text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (*Extraction, error)
}

// DocumentExtractor handles PDF and DOCX input, sniffed by magic bytes.
type DocumentExtractor struct {
	pdfConf *pdfmodel.Configuration
}

func NewDocumentExtractor() *DocumentExtractor {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	return &DocumentExtractor{pdfConf: conf}
}

// Extract returns the document text trimmed of surrounding whitespace. An empty
// string is a valid result. Malformed input yields an *ExtractionError.
func (e *DocumentExtractor) Extract(ctx context.Context, data []byte) (ext *Extraction, err error) {
	// The PDF parsers panic on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			ext = nil
			err = newExtractionError("parser panic: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, &ExtractionError{Cause: err}
	}
	if len(data) == 0 {
		return nil, newExtractionError("empty document")
	}

	switch {
	case isPDF(data):
		return e.extractPDF(data)
	case isZip(data):
		return extractDOCX(data)
	default:
		return nil, newExtractionError("unsupported document format (head=%x)", data[:min(len(data), 8)])
	}
}

func isPDF(b []byte) bool {
	return bytes.HasPrefix(b, []byte("%PDF-"))
}

func isZip(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}

func (e *DocumentExtractor) extractPDF(data []byte) (*Extraction, error) {
	pages, err := api.PageCount(bytes.NewReader(data), e.pdfConf)
	if err != nil {
		return nil, &ExtractionError{Cause: fmt.Errorf("pdf validate: %w", err)}
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ExtractionError{Cause: fmt.Errorf("pdf reader: %w", err)}
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return nil, &ExtractionError{Cause: fmt.Errorf("pdf plaintext: %w", err)}
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return nil, &ExtractionError{Cause: fmt.Errorf("pdf read: %w", err)}
	}

	return &Extraction{Text: normalizeText(string(b)), Pages: pages}, nil
}

func extractDOCX(data []byte) (*Extraction, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ExtractionError{Cause: fmt.Errorf("docx open: %w", err)}
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return nil, newExtractionError("zip archive is not a docx document")
	}

	rc, err := doc.Open()
	if err != nil {
		return nil, &ExtractionError{Cause: fmt.Errorf("docx read: %w", err)}
	}
	defer rc.Close()

	text, err := docxText(rc)
	if err != nil {
		return nil, &ExtractionError{Cause: fmt.Errorf("docx parse: %w", err)}
	}
	return &Extraction{Text: normalizeText(text)}, nil
}

// docxText gathers <w:t> runs, ending each <w:p> paragraph with a newline.
func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var out strings.Builder
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "t" {
				var v string
				if err := dec.DecodeElement(&v, &el); err != nil {
					return "", err
				}
				out.WriteString(v)
			}
		case xml.EndElement:
			if el.Name.Local == "p" {
				out.WriteString("\n")
			}
		}
	}
	return out.String(), nil
}

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(s)
}
