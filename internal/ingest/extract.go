package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kalambet/ragdesk/internal/errs"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// ErrUnsupportedType is returned for files whose extension has no extractor.
// It matches errs.ErrInvalidInput.
var ErrUnsupportedType = fmt.Errorf("unsupported file type: %w", errs.ErrInvalidInput)

// SupportedExtensions lists the file extensions Extract understands.
var SupportedExtensions = []string{".pdf", ".docx", ".html", ".htm", ".txt", ".md"}

// Extract returns the text content of a document, chosen by the filename's
// extension. PDFs yield one text per page; other formats yield a single text.
// Blank texts are omitted.
func Extract(filename string, data []byte) ([]string, error) {
	var (
		texts []string
		err   error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		texts, err = extractPDF(data)
	case ".docx":
		texts, err = single(extractDOCX(data))
	case ".html", ".htm":
		texts, err = single(ExtractHTML(bytes.NewReader(data)))
	case ".txt", ".md":
		texts = []string{strings.ToValidUTF8(string(data), "�")}
	default:
		return nil, fmt.Errorf("%s: %w", filename, ErrUnsupportedType)
	}
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", filename, err)
	}

	out := texts[:0]
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

func single(text string, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	return []string{text}, nil
}

func extractPDF(data []byte) ([]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", errors.Join(errs.ErrInvalidInput, err))
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("reading page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// extractDOCX returns the paragraphs of word/document.xml, one per line.
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening docx: %w", errors.Join(errs.ErrInvalidInput, err))
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("docx has no word/document.xml: %w", errs.ErrInvalidInput)
	}

	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("opening document.xml: %w", err)
	}
	defer rc.Close()

	var b strings.Builder
	dec := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parsing document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

var skippedHTML = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
}

// ExtractHTML returns the visible text of an HTML document, one text node
// per line. Script, style and head content is skipped.
func ExtractHTML(r io.Reader) (string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedHTML[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if s := strings.Join(strings.Fields(n.Data), " "); s != "" {
				lines = append(lines, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return strings.Join(lines, "\n"), nil
}
