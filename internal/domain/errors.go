package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "connect", "read", "klines")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents an invalid configuration value (never retriable).
// It is raised at load or reload time, before any evaluation runs.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrInsufficientData marks a window too small to compute a profile, flow or ATR.
	// Callers skip the evaluation; it is never fatal.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrStaleData marks history older than the configured freshness bound.
	ErrStaleData = errors.New("stale data")

	// ErrInvalidBucketWidth is returned when a profile bucket width is not a positive number.
	ErrInvalidBucketWidth = errors.New("invalid bucket width")

	// ErrProfileTooWide is returned when a window spans more price buckets than allowed.
	ErrProfileTooWide = errors.New("profile spans too many buckets")

	// ErrPositionExists is returned when an entry is applied to a symbol that already has a position.
	ErrPositionExists = errors.New("position already open")

	// ErrNoPosition is returned when an exit is applied to a flat symbol.
	ErrNoPosition = errors.New("no open position")

	// ErrMaxPositions is returned when the portfolio position cap is reached.
	ErrMaxPositions = errors.New("max positions reached")

	// ErrInsufficientCash is returned when an entry cannot be funded.
	ErrInsufficientCash = errors.New("insufficient cash")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
