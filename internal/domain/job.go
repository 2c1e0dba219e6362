package domain

import "encoding/json"

// Supported job actions
const (
	ActionProcessImage    = "process_image"
	ActionGenerate3DModel = "generate_3d_model"
	ActionHealthCheck     = "health_check"
)

// Result status values
const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

// AvailableActions returns the actions the dispatcher understands, in a stable order
func AvailableActions() []string {
	return []string{ActionProcessImage, ActionGenerate3DModel, ActionHealthCheck}
}

// Job is a single unit of work received from a transport
type Job struct {
	ID    string   `json:"id,omitempty"`
	Input JobInput `json:"input"`
}

// JobInput carries the action name and its parameters. Config is decoded per action.
type JobInput struct {
	Action             string          `json:"action"`
	ImageData          string          `json:"image_data,omitempty"`
	ProcessedImageData string          `json:"processed_image_data,omitempty"`
	Config             json.RawMessage `json:"config,omitempty"`
}

// Result is what the dispatcher returns for every job
type Result struct {
	ID               string      `json:"id,omitempty"`
	Status           string      `json:"status"`
	Output           interface{} `json:"output,omitempty"`
	Error            string      `json:"error,omitempty"`
	ErrorType        ErrorKind   `json:"error_type,omitempty"`
	Traceback        string      `json:"traceback,omitempty"`
	AvailableActions []string    `json:"available_actions,omitempty"`
}

// JobRecord is the persisted summary of a finished job
type JobRecord struct {
	ID         string `json:"id"`
	Action     string `json:"action"`
	Status     string `json:"status"`
	ErrorType  string `json:"error_type,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}
