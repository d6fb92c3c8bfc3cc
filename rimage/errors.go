package rimage

import "github.com/pkg/errors"

// ErrMalformedFrame is returned when a frame's buffers are inconsistent with its declared shape.
var ErrMalformedFrame = errors.New("malformed frame")

// NewMalformedFrameError wraps ErrMalformedFrame with a description of what was wrong.
func NewMalformedFrameError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedFrame, format, args...)
}
