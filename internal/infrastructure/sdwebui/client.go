package sdwebui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/basel-ax/stylemesh/internal/codec"
	"github.com/basel-ax/stylemesh/internal/domain"
)

var tracer = otel.Tracer("sdwebui-client")

// Client talks to an AUTOMATIC1111-compatible Stable Diffusion server with the ControlNet
// extension installed. It implements domain.PoseDetector and domain.DiffusionPipeline.
type Client struct {
	httpClient *http.Client
	baseURL    string
	poseModule string
	processRes int
}

// NewClient creates a new model server client
func NewClient(baseURL, poseModule string, processRes int, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:    baseURL,
		poseModule: poseModule,
		processRes: processRes,
	}
}

// ControlNetArgs is one ControlNet unit of a txt2img request
type ControlNetArgs struct {
	Enabled       bool    `json:"enabled"`
	Image         string  `json:"image"`
	Module        string  `json:"module"`
	Model         string  `json:"model"`
	Weight        float64 `json:"weight"`
	ResizeMode    int     `json:"resize_mode"`
	ProcessorRes  int     `json:"processor_res"`
	GuidanceStart float64 `json:"guidance_start"`
	GuidanceEnd   float64 `json:"guidance_end"`
	ControlMode   int     `json:"control_mode"`
	PixelPerfect  bool    `json:"pixel_perfect"`
	Lowvram       bool    `json:"lowvram"`
}

type txt2imgRequest struct {
	Prompt         string                 `json:"prompt"`
	NegativePrompt string                 `json:"negative_prompt"`
	Steps          int                    `json:"steps"`
	CfgScale       float64                `json:"cfg_scale"`
	Width          int                    `json:"width"`
	Height         int                    `json:"height"`
	Seed           int64                  `json:"seed"`
	SamplerName    string                 `json:"sampler_name,omitempty"`
	BatchSize      int                    `json:"batch_size"`
	NIter          int                    `json:"n_iter"`
	AlwaysOn       map[string]interface{} `json:"alwayson_scripts,omitempty"`
}

type txt2imgResponse struct {
	Images     []string               `json:"images"`
	Parameters map[string]interface{} `json:"parameters"`
	Info       string                 `json:"info"`
}

type detectRequest struct {
	Module       string   `json:"controlnet_module"`
	InputImages  []string `json:"controlnet_input_images"`
	ProcessorRes int      `json:"controlnet_processor_res"`
}

type detectResponse struct {
	Images []string `json:"images"`
	Info   string   `json:"info"`
}

// DetectPose runs the ControlNet preprocessor configured as pose module and returns the
// rendered skeleton map
func (c *Client) DetectPose(ctx context.Context, img image.Image) (image.Image, error) {
	ctx, span := tracer.Start(ctx, "sdwebui_detect_pose", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("controlnet.module", c.poseModule))

	b64, err := codec.EncodeImage(img)
	if err != nil {
		return nil, err
	}

	var result detectResponse
	req := detectRequest{
		Module:       c.poseModule,
		InputImages:  []string{b64},
		ProcessorRes: c.processRes,
	}
	if err := c.postJSON(ctx, "/controlnet/detect", req, &result); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("pose detection failed: %w", err)
	}

	if len(result.Images) == 0 {
		return nil, fmt.Errorf("pose detection returned no image (info: %s)", result.Info)
	}

	pose, err := codec.DecodeImage(result.Images[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode pose map: %w", err)
	}
	return pose, nil
}

// Generate runs a single txt2img pass with the ControlNet units attached
func (c *Client) Generate(ctx context.Context, req domain.DiffusionRequest) (image.Image, error) {
	ctx, span := tracer.Start(ctx, "sdwebui_txt2img", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.Int("sd.steps", req.Steps),
		attribute.Float64("sd.cfg_scale", req.GuidanceScale),
		attribute.Int("sd.controlnet_units", len(req.Controls)),
	)

	args := make([]ControlNetArgs, 0, len(req.Controls))
	for _, ctl := range req.Controls {
		b64, err := codec.EncodeImage(ctl.Image)
		if err != nil {
			return nil, err
		}
		args = append(args, ControlNetArgs{
			Enabled:       true,
			Image:         b64,
			Module:        ctl.Module,
			Model:         ctl.Model,
			Weight:        ctl.Weight,
			ResizeMode:    1,
			ProcessorRes:  c.processRes,
			GuidanceStart: 0,
			GuidanceEnd:   1,
			PixelPerfect:  true,
		})
	}

	body := txt2imgRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Steps:          req.Steps,
		CfgScale:       req.GuidanceScale,
		Width:          req.Width,
		Height:         req.Height,
		Seed:           req.Seed,
		SamplerName:    req.Sampler,
		BatchSize:      1,
		NIter:          1,
	}
	if len(args) > 0 {
		body.AlwaysOn = map[string]interface{}{
			"controlnet": map[string]interface{}{"args": args},
		}
	}

	var result txt2imgResponse
	if err := c.postJSON(ctx, "/sdapi/v1/txt2img", body, &result); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("txt2img failed: %w", err)
	}

	// ControlNet appends its detected maps after the generated image
	if len(result.Images) == 0 {
		return nil, fmt.Errorf("txt2img returned no images")
	}

	out, err := codec.DecodeImage(result.Images[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode generated image: %w", err)
	}
	return out, nil
}

// CheckDiffusion verifies that the server answers and has at least one checkpoint loaded
func (c *Client) CheckDiffusion(ctx context.Context) error {
	var models []struct {
		Title string `json:"title"`
	}
	if err := c.getJSON(ctx, "/sdapi/v1/sd-models", &models); err != nil {
		return err
	}
	if len(models) == 0 {
		return fmt.Errorf("no stable diffusion checkpoints available")
	}
	return nil
}

// CheckPoseDetector verifies that the ControlNet extension exposes the configured pose module
func (c *Client) CheckPoseDetector(ctx context.Context) error {
	var modules struct {
		ModuleList []string `json:"module_list"`
	}
	if err := c.getJSON(ctx, "/controlnet/module_list", &modules); err != nil {
		return err
	}
	for _, m := range modules.ModuleList {
		if m == c.poseModule {
			return nil
		}
	}
	return fmt.Errorf("controlnet module %q not available", c.poseModule)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(httpReq, out)
}

func (c *Client) do(httpReq *http.Request, out interface{}) error {
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
