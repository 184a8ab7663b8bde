// scriptcomplete/errors.go
// Contains exported error definitions for the scriptcomplete package.
package scriptcomplete

import (
	"errors"
	"fmt"
)

// =============================================================================
// Exported Errors
// =============================================================================

var (
	// ErrConfig indicates non-fatal errors during config loading or processing.
	ErrConfig = errors.New("configuration error")

	// ErrInvalidConfig indicates a configuration value is invalid after validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidPositionInput indicates input position values (offset, line/col) are invalid.
	ErrInvalidPositionInput = errors.New("invalid input position")

	// ErrInvalidOffset is returned by GetHints before any scanning when the
	// cursor offset is negative or beyond the end of the document.
	ErrInvalidOffset = fmt.Errorf("%w: cursor offset out of range", ErrInvalidPositionInput)

	// ErrPositionConversion indicates failure converting between position formats (e.g., LSP <-> byte offset).
	ErrPositionConversion = errors.New("position conversion failed")

	// ErrPositionOutOfRange indicates a position is outside the valid bounds of the file or line.
	ErrPositionOutOfRange = errors.New("position out of range")

	// ErrInvalidUTF8 indicates an invalid UTF-8 sequence was encountered during processing.
	ErrInvalidUTF8 = errors.New("invalid utf-8 sequence")

	// ErrInvalidURI indicates a document URI is invalid or uses an unsupported scheme.
	ErrInvalidURI = errors.New("invalid document URI")

	// ErrUnsupportedSyntax is returned by a strict locator for syntax ids it does not know.
	ErrUnsupportedSyntax = errors.New("unsupported syntax")

	// ErrUnknownType indicates a type descriptor no finder or catalog can serve.
	ErrUnknownType = errors.New("unknown type")

	// ErrBindingsFile indicates the bindings file could not be read or decoded.
	ErrBindingsFile = errors.New("bindings file error")

	// ErrPackageLoad indicates go/packages failed to load a package for introspection.
	ErrPackageLoad = errors.New("package load failed")

	// ErrCache indicates a general cache operation failure.
	ErrCache = errors.New("cache operation failed")

	// ErrCacheRead indicates failure reading from the cache.
	ErrCacheRead = errors.New("cache read failed")

	// ErrCacheWrite indicates failure writing to the cache.
	ErrCacheWrite = errors.New("cache write failed")

	// ErrCacheDecode indicates failure decoding data read from the cache.
	ErrCacheDecode = errors.New("cache decode failed")

	// ErrCacheEncode indicates failure encoding data for writing to the cache.
	ErrCacheEncode = errors.New("cache encode failed")

	// ErrCacheHash indicates failure calculating file hashes for cache validation.
	ErrCacheHash = errors.New("cache hash calculation failed")
)
