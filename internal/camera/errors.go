package camera

import "errors"

// ErrUnknownCamera is returned for an index with no camera definition.
var ErrUnknownCamera = errors.New("unknown camera")

var errEmptyFrame = errors.New("empty frame")
