package wire

import "errors"

// Sentinel decode errors, classified the way the teacher classifies
// transport errors (internal/server/errors.go): wrap-friendly, comparable
// with errors.Is, and mapped to a small set of metrics labels at the call
// site.
var (
	ErrShortHeader        = errors.New("wire: short header")
	ErrBadMagic           = errors.New("wire: bad magic")
	ErrUnsupportedVersion = errors.New("wire: unsupported version")
	ErrShortPayload       = errors.New("wire: short payload")
	ErrBadShape           = errors.New("wire: bad shape")
)
