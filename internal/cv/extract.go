package cv

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	ErrExtractionFailed    = errors.New("could not extract text")
	ErrUnsupportedDocument = errors.New("unsupported document type")
)

var documentExtensions = map[string]bool{
	".pdf": true,
	".txt": true,
	".md":  true,
}

// IsDocument reports whether path has an extension the extractor reads.
func IsDocument(path string) bool {
	return documentExtensions[strings.ToLower(filepath.Ext(path))]
}

// ExtractText returns the plain text of a PDF, text or markdown file.
func ExtractText(path string) (string, error) {
	if !IsDocument(path) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDocument, filepath.Base(path))
	}

	var (
		text string
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err = readPDF(path)
	} else {
		var data []byte
		data, err = os.ReadFile(path)
		text = string(data)
	}
	if err != nil {
		return "", fmt.Errorf("%w from %s: %v", ErrExtractionFailed, filepath.Base(path), err)
	}

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w from %s: document is empty", ErrExtractionFailed, filepath.Base(path))
	}

	return text, nil
}

func readPDF(path string) (text string, err error) {
	// the pdf reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	return buf.String(), nil
}
