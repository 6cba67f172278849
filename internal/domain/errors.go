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

// StorageError represents a failure of the underlying bar container.
type StorageError struct {
	Op        string // Operation that failed (e.g., "open", "read", "write")
	Path      string // Container path
	Err       error  // Underlying error
	Retriable bool
}

func (e *StorageError) Error() string {
	return "storage " + e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *StorageError) IsRetriable() bool {
	return e.Retriable
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a non-retriable storage error.
func NewStorageError(op, path string, err error) *StorageError {
	return &StorageError{Op: op, Path: path, Err: err}
}

// ConfigError represents a configuration error (never retriable)
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

// RejectionError is returned when an order intent cannot become an order.
// Reason is meant for the strategy layer; Err is one of the sentinel errors below.
type RejectionError struct {
	Op     string
	Symbol string
	Reason string
	Err    error
}

func (e *RejectionError) Error() string {
	return "Order Creation Failed: " + e.Op + " [" + e.Symbol + "] " + e.Reason
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

// Reject builds a RejectionError.
func Reject(op, symbol string, kind error, reason string) *RejectionError {
	return &RejectionError{Op: op, Symbol: symbol, Reason: reason, Err: kind}
}

// IsNoTrade reports whether err is the non-fatal "nothing to trade" signal.
func IsNoTrade(err error) bool {
	return errors.Is(err, ErrZeroQuantity)
}

var (
	// ErrInvalidArgument is returned for unsupported fields, bad counts or bad intent values.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotSupported is returned for frequencies other than daily and weekly.
	ErrNotSupported = errors.New("not supported")

	// ErrUnknownInstrument is returned when a symbol is not in the catalog.
	ErrUnknownInstrument = errors.New("unknown instrument")

	// ErrNoMarketData is returned when no valid price can be found for sizing.
	ErrNoMarketData = errors.New("no market data")

	// ErrZeroQuantity is returned when rounding or cost fitting collapses an order to nothing.
	ErrZeroQuantity = errors.New("zero order quantity")

	// ErrPhaseViolation is returned when an order is requested outside an allowed phase.
	ErrPhaseViolation = errors.New("phase violation")

	// ErrStorageDegraded marks a store read failure that was served as "no data".
	ErrStorageDegraded = errors.New("storage degraded")

	// ErrUnsortedBars is returned when a bar sequence is not strictly increasing by date.
	ErrUnsortedBars = errors.New("bars not strictly increasing by date")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
