package macho

import "errors"

// Container-level failures. These are fatal to the whole analysis and are
// surfaced to the caller immediately; there is no retry path.
var (
	ErrInvalidMagic       = errors.New("macho: invalid magic number")
	ErrTruncated          = errors.New("macho: file truncated")
	ErrUnsupportedArch    = errors.New("macho: unsupported architecture")
	ErrMissingLoadCommand = errors.New("macho: missing required load command")

	// ErrSectionNotFound is fatal to disassembly but not to container or
	// symbol parsing; callers may still use header/segment/symbol data.
	ErrSectionNotFound = errors.New("macho: section not found")
)
