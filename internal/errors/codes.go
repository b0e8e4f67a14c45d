package errors

const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"

	// Configuration errors
	ErrInvalidConfig ErrorCode = "invalid_configuration"
	ErrReadConfig    ErrorCode = "read_config_failed"
	ErrBindFlags     ErrorCode = "bind_flags_failed"

	// Control errors
	ErrInvalidDuration ErrorCode = "invalid_duration"
	ErrActuatorWrite   ErrorCode = "actuator_write_failed"

	// Storage errors
	ErrStorageInit   ErrorCode = "storage_init_failed"
	ErrStorageAccess ErrorCode = "storage_access_failed"
	ErrStorageClose  ErrorCode = "storage_close_failed"
	ErrNotFound      ErrorCode = "not_found"
)

var errorMessages = map[ErrorCode]string{
	ErrInternal:        "Internal error occurred",
	ErrInvalidArgument: "Invalid argument provided",
	ErrInvalidConfig:   "Invalid configuration",
	ErrReadConfig:      "Failed to read configuration",
	ErrBindFlags:       "Failed to bind flags",
	ErrInvalidDuration: "Invalid duration",
	ErrActuatorWrite:   "Failed to write actuator output",
	ErrStorageInit:     "Failed to initialize settings storage",
	ErrStorageAccess:   "Failed to access settings storage",
	ErrStorageClose:    "Failed to close settings storage",
	ErrNotFound:        "Not found",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
