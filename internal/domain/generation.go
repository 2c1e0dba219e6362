package domain

import (
	"context"
	"image"
)

// GenerationConfig holds the optional diffusion parameters of a process_image job.
// Zero values mean "use the default".
type GenerationConfig struct {
	Prompt           string    `json:"prompt,omitempty"`
	NegativePrompt   string    `json:"negative_prompt,omitempty"`
	Steps            int       `json:"steps,omitempty"`
	GuidanceScale    float64   `json:"guidance_scale,omitempty"`
	ControlNetScales []float64 `json:"controlnet_scales,omitempty"`
	CharacterGender  string    `json:"character_gender,omitempty"`
	RemoveWeapon     bool      `json:"remove_weapon,omitempty"`
	Sampler          string    `json:"sampler,omitempty"`
}

// Default generation parameters
const (
	DefaultSteps         = 30
	DefaultGuidanceScale = 7.5
	DefaultSampler       = "DPM++ 2M Karras"
)

// DefaultControlNetScales returns the default conditioning strengths (pose first)
func DefaultControlNetScales() []float64 {
	return []float64{1.0, 0.5}
}

// ControlInput is one ControlNet conditioning unit
type ControlInput struct {
	Image  image.Image
	Model  string
	Module string
	Weight float64
}

// DiffusionRequest is a single forward pass of the conditioned diffusion model
type DiffusionRequest struct {
	Prompt         string
	NegativePrompt string
	Steps          int
	GuidanceScale  float64
	Width          int
	Height         int
	Seed           int64
	Sampler        string
	Controls       []ControlInput
}

// PoseDetector extracts a skeletal keypoint map from an image
type PoseDetector interface {
	DetectPose(ctx context.Context, img image.Image) (image.Image, error)
}

// DiffusionPipeline produces an image conditioned on prompts and control inputs
type DiffusionPipeline interface {
	Generate(ctx context.Context, req DiffusionRequest) (image.Image, error)
}

// ProcessImageOutput is the output payload of process_image
type ProcessImageOutput struct {
	ProcessedImageURL  string           `json:"processed_image_url"`
	ProcessedImageData string           `json:"processed_image_data"`
	Width              int              `json:"width"`
	Height             int              `json:"height"`
	ConfigUsed         GenerationConfig `json:"config_used"`
	ProcessingTime     float64          `json:"processing_time"`
	GPUUsed            string           `json:"gpu_used,omitempty"`
}
