package extract

import "errors"

var (
	// ErrConfiguration is returned by New when the extraction cannot be set up,
	// most commonly because the time field does not resolve.
	ErrConfiguration = errors.New("extract: configuration error")

	// ErrInvalidRecord is returned by Fetch when a returned record has no usable
	// time value. The cursor is not advanced.
	ErrInvalidRecord = errors.New("extract: invalid record")

	// ErrInvalidCursor is returned by Fetch for a cursor that cannot describe a
	// window, such as a negative Row.
	ErrInvalidCursor = errors.New("extract: invalid cursor")
)
