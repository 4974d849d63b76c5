package phasemap

import "errors"

// Callers test for these with errors.Is; stages wrap them with the
// sequence and stage that failed.
var (
	ErrNoFramesSelected    = errors.New("no frames pass the valid-pixel threshold")
	ErrEllipseNotConverged = errors.New("ellipse outlier rejection did not converge")
	ErrNoEllipse           = errors.New("boundary points do not describe an ellipse")
	ErrBadMask             = errors.New("mask does not match the map shape")
	ErrNotMasked           = errors.New("map carries no validity mask")
	ErrShapeMismatch       = errors.New("map shape mismatch")
	ErrEmptyMap            = errors.New("map has no valid pixels")
	ErrBasisDegenerate     = errors.New("polynomial basis is degenerate over the pupil")
	ErrPairingMismatch     = errors.New("pairing index groups differ in length")
	ErrUnknownSequence     = errors.New("unknown sequence")
	ErrBadSelection        = errors.New("bad index selection")
)
