package server

// Request types for WebSocket commands with validation tags.
// These types define the expected input for each command and use
// go-playground/validator struct tags for automatic validation.

// --- Audio settings ---

// AudioUpdateRequest is the request body for audio/update.
type AudioUpdateRequest struct {
	Input string `json:"input" validate:"omitempty,max=512"`
}

// --- Alarm settings ---

// AlarmUpdateRequest is the request body for alarm/update.
// Omitted fields keep their current value.
type AlarmUpdateRequest struct {
	Threshold       *float64 `json:"threshold" validate:"omitempty,gt=0,lt=1"`
	CooldownSeconds *float64 `json:"cooldown_seconds" validate:"omitempty,gte=0,lte=3600"`
}

// --- Notification settings ---

// WebhookUpdateRequest is the request body for notifications/webhook/update.
type WebhookUpdateRequest struct {
	URL string `json:"url" validate:"omitempty,max=2048"`
}

// EmailUpdateRequest is the request body for notifications/email/update.
type EmailUpdateRequest struct {
	TenantID     string `json:"tenant_id" validate:"omitempty,max=100"`
	ClientID     string `json:"client_id" validate:"omitempty,max=100"`
	ClientSecret string `json:"client_secret" validate:"omitempty,max=500"`
	FromAddress  string `json:"from_address" validate:"omitempty,max=254"`
	Recipients   string `json:"recipients" validate:"omitempty,max=1000"`
}

// --- Clip settings ---

// ClipsUpdateRequest is the request body for clips/update.
type ClipsUpdateRequest struct {
	Enabled       *bool  `json:"enabled"`
	Directory     string `json:"directory" validate:"omitempty,max=4096"`
	RetentionDays *int   `json:"retention_days" validate:"omitempty,gte=1,lte=3650"`
}

// ClipsS3UpdateRequest is the request body for clips/s3-update.
type ClipsS3UpdateRequest struct {
	Endpoint        string `json:"endpoint" validate:"omitempty,max=2048"`
	Bucket          string `json:"bucket" validate:"omitempty,max=63"`
	AccessKeyID     string `json:"access_key_id" validate:"omitempty,max=128"`
	SecretAccessKey string `json:"secret_access_key" validate:"omitempty,max=256"`
	Prefix          string `json:"prefix" validate:"omitempty,max=256"`
}

// S3TestRequest is the request body for clips/test-s3.
type S3TestRequest struct {
	Endpoint  string `json:"endpoint" validate:"omitempty,max=2048"`
	Bucket    string `json:"bucket" validate:"required,max=63"`
	AccessKey string `json:"access_key_id" validate:"required,max=128"`
	SecretKey string `json:"secret_access_key" validate:"required,max=256"`
}

// --- Event log ---

// EventsGetRequest is the request body for events/get.
type EventsGetRequest struct {
	Limit  int    `json:"limit" validate:"omitempty,gte=1,lte=500"`
	Offset int    `json:"offset" validate:"omitempty,gte=0"`
	Filter string `json:"filter" validate:"omitempty,oneof=monitor alarm clip"`
}
