package types

// WSSampleResponse carries one processed block to a WebSocket subscriber.
type WSSampleResponse struct {
	Type string `json:"type"` // Always "sample"
	Sample
	// Threshold echoes the configured alarm threshold so clients can draw it.
	Threshold float64 `json:"threshold"`
}

// WSStatusResponse is the periodic status message sent to WebSocket clients.
type WSStatusResponse struct {
	Type            string        `json:"type"` // Always "status"
	Monitor         MonitorStatus `json:"monitor"`
	Devices         []Device      `json:"devices"`
	Threshold       float64       `json:"threshold"`
	CooldownSeconds float64       `json:"cooldown_seconds"`
	BlockSeconds    float64       `json:"block_seconds"`
	StationName     string        `json:"station_name"`
	Version         VersionInfo   `json:"version"`
}

// VersionInfo describes the running build and any available update.
type VersionInfo struct {
	Current         string `json:"current"`
	Latest          string `json:"latest,omitempty"`
	UpdateAvailable bool   `json:"update_available"`
}

// WSTestResult is the response to a notification or beep test command.
type WSTestResult struct {
	Type     string `json:"type"` // Always "test_result"
	TestType string `json:"test_type"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`   // JSON path to the field (e.g., "alarm.threshold")
	Message string `json:"message"` // Human-readable error message
	Value   any    `json:"value"`   // The invalid value that was provided
}

// ValidationError collects multiple field validation errors.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// NewValidationError creates a new empty ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{
		Errors: make([]FieldError, 0),
	}
}

// Add adds a field error to the collection.
func (v *ValidationError) Add(field, message string, value any) {
	v.Errors = append(v.Errors, FieldError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}
