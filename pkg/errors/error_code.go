package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Configuration errors (100-199)
	ErrCodeInvalidConfig    ErrorCode = 100
	ErrCodeInvalidParameter ErrorCode = 101
	ErrCodeInvalidInterval  ErrorCode = 102
	ErrCodeInvalidStrategy  ErrorCode = 103
	ErrCodeInsufficientData ErrorCode = 104

	// Market data errors (200-299)
	ErrCodeDataUnavailable ErrorCode = 200
	ErrCodeRateLimited     ErrorCode = 201
	ErrCodeFetchFailed     ErrorCode = 202
	ErrCodeStoreFailed     ErrorCode = 203
	ErrCodeQueryFailed     ErrorCode = 204

	// Simulation errors (300-399)
	ErrCodeSimulation        ErrorCode = 300
	ErrCodePositionNotFound  ErrorCode = 301
	ErrCodePositionDuplicate ErrorCode = 302
	ErrCodeInsufficientCash  ErrorCode = 303

	// Optimization errors (400-499)
	ErrCodeEmptyGrid       ErrorCode = 400
	ErrCodeUnknownRangeKey ErrorCode = 401

	// Export errors (500-599)
	ErrCodeExportFailed ErrorCode = 500
)
