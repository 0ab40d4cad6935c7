// Package extract turns uploaded files into plain text suitable for
// chunking. Binary formats (PDF, DOCX) are handled by an external
// extraction service and arrive here already converted.
package extract

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var whitespace = regexp.MustCompile(`\s+`)

var supportedExtensions = map[string]string{
	".txt":  "txt",
	".md":   "md",
	".html": "html",
	".htm":  "html",
}

type Result struct {
	Text        string
	FileType    string
	ContentHash string
	FileSize    int
}

func IsSupported(filename string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Extract decodes content according to the file extension and returns the
// cleaned text together with its SHA-256 content hash.
func Extract(filename string, content []byte) (*Result, error) {
	fileType, ok := supportedExtensions[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return nil, fmt.Errorf("unsupported file type %q: supported types are .txt, .md, .html", filepath.Ext(filename))
	}

	var text string
	var err error

	switch fileType {
	case "txt", "md":
		text, err = extractPlain(content)
	case "html":
		text, err = extractHTML(content)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", filename, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("document %s contains no extractable text", filename)
	}

	return &Result{
		Text:        text,
		FileType:    fileType,
		ContentHash: fmt.Sprintf("%x", sha256.Sum256(content)),
		FileSize:    len(content),
	}, nil
}

func extractPlain(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", fmt.Errorf("content is not valid UTF-8")
	}
	return string(content), nil
}

func extractHTML(content []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(content)))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()
	text = whitespace.ReplaceAllString(text, " ")

	return text, nil
}
