package format

import (
	"bytes"

	"golang.org/x/text/unicode/norm"
)

// NormalizeLayout returns the canonical (NFC) form of a layout tag.
// Tags are compared byte-wise after normalization, so "café" typed with a
// combining accent matches the precomposed spelling.
func NormalizeLayout(tag string) (string, error) {
	n := norm.NFC.String(tag)
	if len(n) > MaxLayoutLen {
		return "", ErrLayoutTooLong
	}
	return n, nil
}

// PutLayout writes a normalized tag into the header layout field.
func PutLayout(b []byte, tag string) {
	field := b[LayoutOffset : LayoutOffset+LayoutSize]
	clear(field)
	copy(field, tag)
}

// ReadLayout returns the layout tag stored in a header.
func ReadLayout(b []byte) string {
	field := b[LayoutOffset : LayoutOffset+LayoutSize]
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}
