package roster

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/encoding/charmap"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type format int

const (
	formatText format = iota
	formatXLSX
)

// sniff tells spreadsheets from text and refuses other binary content
// (images, PDFs, archives) up front.
func sniff(data []byte) (format, error) {
	m := mimetype.Detect(data)
	switch {
	case m.Is(xlsxMIME), m.Is("application/zip"):
		return formatXLSX, nil
	case strings.HasPrefix(m.String(), "text/"), m.Is("application/octet-stream"):
		return formatText, nil
	default:
		return formatText, fmt.Errorf("%w: detected %s", ErrUnsupportedEncoding, m.String())
	}
}

// decodeText returns data as UTF-8, falling back to Latin-1.
func decodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if bytes.IndexByte(data, 0) >= 0 {
		return "", ErrUnsupportedEncoding
	}
	if utf8.Valid(data) {
		return string(data), nil
	}

	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil || !utf8.Valid(out) {
		return "", ErrUnsupportedEncoding
	}
	return string(out), nil
}
