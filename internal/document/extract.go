// Package document turns uploaded files into raw text for the pipeline.
package document

import (
	"fmt"
	"html"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultMaxSize caps an upload at 10 MiB.
const DefaultMaxSize = 10 << 20

// ReadError reports a document that could not be turned into text. Its
// message names the file and the reason, never the content.
type ReadError struct {
	Name   string
	Reason string
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reading %s: %s", e.Name, e.Reason)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Extractor reads text-like documents.
type Extractor struct {
	maxSize int64
	policy  *bluemonday.Policy
}

// NewExtractor returns an extractor that rejects documents larger than
// maxSize bytes. maxSize <= 0 means DefaultMaxSize.
func NewExtractor(maxSize int64) *Extractor {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Extractor{maxSize: maxSize, policy: bluemonday.StrictPolicy()}
}

// Extract is NewExtractor(DefaultMaxSize).Extract.
func Extract(name string, r io.Reader) (string, error) {
	return NewExtractor(0).Extract(name, r)
}

// Extract reads r according to the extension of name. Plain text, Markdown
// and CSV are returned as-is; HTML is reduced to its text. PDF and DOCX
// need a format reader and are refused.
func (e *Extractor) Extract(name string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".txt", ".md", ".csv", ".html", ".htm":
	case ".pdf", ".docx":
		return "", &ReadError{Name: name, Reason: ext + " documents are not supported"}
	default:
		return "", &ReadError{Name: name, Reason: fmt.Sprintf("unsupported file type %q", ext)}
	}

	data, err := io.ReadAll(io.LimitReader(r, e.maxSize+1))
	if err != nil {
		return "", &ReadError{Name: name, Reason: "read failed", Err: err}
	}
	if int64(len(data)) > e.maxSize {
		return "", &ReadError{Name: name, Reason: fmt.Sprintf("exceeds %d bytes", e.maxSize)}
	}
	if !utf8.Valid(data) {
		return "", &ReadError{Name: name, Reason: "not valid UTF-8 text"}
	}

	text := string(data)
	if ext == ".html" || ext == ".htm" {
		text = html.UnescapeString(e.policy.Sanitize(text))
	}
	return text, nil
}
