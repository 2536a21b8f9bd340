// Package extract turns uploaded file bytes into normalized text.
package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kailas-cloud/kbase/internal/domain"
)

// Format is a decodable file family.
type Format string

// Known formats.
const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatDOC  Format = "doc"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatCSV  Format = "csv"
	FormatText Format = "text"
)

var extensions = map[string]Format{
	".pdf":  FormatPDF,
	".docx": FormatDOCX,
	".doc":  FormatDOC,
	".xlsx": FormatXLSX,
	".xls":  FormatXLS,
	".csv":  FormatCSV,
}

// FormatOf maps a filename to its format by extension, case-insensitive.
// Unknown or missing extensions are plain text.
func FormatOf(filename string) Format {
	if f, ok := extensions[strings.ToLower(filepath.Ext(filename))]; ok {
		return f
	}
	return FormatText
}

// ParseFormat validates a format name from configuration.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(s))
	switch f {
	case FormatPDF, FormatDOCX, FormatDOC, FormatXLSX, FormatXLS, FormatCSV:
		return f, nil
	case FormatText:
		return "", fmt.Errorf("format %q cannot be disabled", s)
	}
	return "", fmt.Errorf("unknown format %q", s)
}

type decoder func(data []byte) (string, error)

// Extractor dispatches raw bytes to a format decoder.
// Safe for concurrent use once constructed.
type Extractor struct {
	decoders map[Format]decoder
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithDisabledFormats removes decoders; files of those formats then fail
// with domain.ErrMissingDependency.
func WithDisabledFormats(formats ...Format) Option {
	return func(e *Extractor) {
		for _, f := range formats {
			if f != FormatText {
				delete(e.decoders, f)
			}
		}
	}
}

// New creates an Extractor with every decoder registered.
func New(opts ...Option) *Extractor {
	e := &Extractor{decoders: map[Format]decoder{
		FormatPDF:  decodePDF,
		FormatDOCX: decodeDOCX,
		FormatDOC:  decodeLegacyDOC,
		FormatXLSX: decodeXLSX,
		FormatXLS:  decodeXLS,
		FormatCSV:  decodeCSV,
		FormatText: decodeText,
	}}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract returns the normalized text of one file.
func (e *Extractor) Extract(data []byte, filename string) (string, error) {
	format := FormatOf(filename)
	dec, ok := e.decoders[format]
	if !ok {
		return "", fmt.Errorf("%s: no %s decoder available: %w", filename, format, domain.ErrMissingDependency)
	}
	text, err := safeDecode(dec, data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", filename, err)
	}
	return text, nil
}

// safeDecode converts decoder panics on malformed input into parse errors.
func safeDecode(dec decoder, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("decoder panic: %v: %w", r, domain.ErrParse)
		}
	}()
	return dec(data)
}

func parseErr(what string, err error) error {
	return fmt.Errorf("%s: %w: %w", what, domain.ErrParse, err)
}

// decodeLegacyDOC returns no text: binary Word documents are not supported.
func decodeLegacyDOC([]byte) (string, error) {
	return "", nil
}
