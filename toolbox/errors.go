package toolbox

import "errors"

var (
	// ErrShapeMismatch is returned when an input or target vector does not
	// match the width of the layer it is fed to.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrInvalidConfig is returned for layer-size lists or weight stacks that
	// cannot describe a network.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnsupportedMode is returned by Reverse on a stack with bias units.
	ErrUnsupportedMode = errors.New("unsupported mode")

	// ErrCorrupt is returned when a weight file cannot be decoded.
	ErrCorrupt = errors.New("corrupt weight file")
)
