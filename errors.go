package mnists

import "errors"

// Sentinel errors for dataset operations.
// Use errors.Is() to check for specific error conditions.
var (
	// ErrFormat indicates malformed IDX data: bad magic bytes, an unknown
	// type code, a truncated header, or a payload whose size disagrees
	// with the declared dimensions.
	ErrFormat = errors.New("mnists: invalid IDX data")

	// ErrDownload indicates a network failure or non-success HTTP status
	// from every configured mirror.
	ErrDownload = errors.New("mnists: download failed")

	// ErrIntegrity indicates downloaded or cached data failed checksum
	// verification.
	ErrIntegrity = errors.New("mnists: checksum verification failed")

	// ErrStorage indicates a filesystem operation failed.
	ErrStorage = errors.New("mnists: storage error")

	// ErrNotCached indicates the file is absent from the cache and
	// downloading is disabled. Returned when WithDownload(false) is set.
	ErrNotCached = errors.New("mnists: file not cached")

	// ErrUnknownDataset indicates the name matches no built-in variant
	// or alias.
	ErrUnknownDataset = errors.New("mnists: unknown dataset")

	// ErrDescriptor indicates an invalid or incomplete dataset descriptor.
	ErrDescriptor = errors.New("mnists: invalid descriptor")
)
