// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Recognition constants
const (
	// DefaultConfidenceThreshold is the minimum match score to attach a face
	// to an existing person instead of minting a temporary identity
	DefaultConfidenceThreshold = 0.6

	// MaxImageDimension is the maximum width or height sent to the
	// recognizer; larger uploads are downscaled first
	MaxImageDimension = 1920
)

// Processing constants
const (
	// WorkerPoolSize is the default number of parallel workers for bulk import
	WorkerPoolSize = 4
)

// File upload constants
const (
	// MaxUploadSize is the maximum file upload size in bytes (100MB)
	MaxUploadSize = 100 << 20
)
