package epub

import "errors"

var (
	// ErrNoContainer indicates META-INF/container.xml is missing, unparseable,
	// or names no rootfile.
	ErrNoContainer = errors.New("epub: no usable container.xml")

	// ErrNoPackage indicates the package document named by container.xml is
	// missing or unparseable.
	ErrNoPackage = errors.New("epub: no usable package document")

	// ErrStreamClosed indicates a chapter stream was closed while a load was in flight.
	ErrStreamClosed = errors.New("epub: chapter stream closed")
)
