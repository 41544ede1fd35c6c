package model

import "errors"

var (
	// ErrInvalidGeometry is returned for rings with fewer than 4 points or an unclosed ring.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrDiscoverySource covers network failures, non-2xx responses and
	// unparseable bodies from the POI source.
	ErrDiscoverySource = errors.New("discovery source error")

	ErrUnknownSource = errors.New("unknown source")
	ErrUnknownLayer  = errors.New("unknown layer")

	// ErrInvalidFilter is only returned when filters are evaluated in strict mode.
	ErrInvalidFilter = errors.New("unsupported filter expression")

	ErrInvalidCoordinates = errors.New("invalid coordinates")
)
