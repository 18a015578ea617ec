package format

import "errors"

// ErrLayoutTooLong indicates a layout tag that does not fit the header field.
var ErrLayoutTooLong = errors.New("format: layout tag too long")
