package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/basel-ax/stylemesh/internal/codec"
	"github.com/basel-ax/stylemesh/internal/config"
	"github.com/basel-ax/stylemesh/internal/domain"
	"github.com/basel-ax/stylemesh/internal/logging"
	"github.com/basel-ax/stylemesh/internal/queue"
)

// enqueue publishes one job to the job queue, either a ready job document (-job) or a job
// built from an image file (-image)
func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	jobFile := flags.String("job", "", "Job document to publish")
	imagePath := flags.String("image", "", "Image file to send")
	action := flags.String("action", domain.ActionProcessImage, "Action for -image: process_image or generate_3d_model")
	rawConfig := flags.String("config", "", "Optional JSON config for -image jobs")
	replyTo := flags.String("reply-to", "", "Queue the result is published to (defaults to the result queue)")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	logger := logging.New(cfg.LogLevel, cfg.LogJSON)
	defer logger.Sync()

	if !cfg.Queue.Enabled() {
		logger.Error("RABBITMQ_URL is required")
		return 1
	}

	job, err := buildJob(*jobFile, *imagePath, *action, *rawConfig)
	if err != nil {
		logger.Error("failed to build job", zap.Error(err))
		return 1
	}

	mq, err := queue.NewRabbitMQService(cfg.Queue.URL, queue.Config{
		JobQueue:    cfg.Queue.JobQueue,
		ResultQueue: cfg.Queue.ResultQueue,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", zap.Error(err))
		return 1
	}
	defer mq.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := mq.Publish(ctx, job, *replyTo); err != nil {
		logger.Error("failed to publish job", zap.Error(err))
		return 1
	}
	logger.Info("job published", zap.String("job_id", job.ID), zap.String("action", job.Input.Action))
	return 0
}

func buildJob(jobFile, imagePath, action, rawConfig string) (domain.Job, error) {
	var job domain.Job
	switch {
	case jobFile != "":
		data, err := os.ReadFile(jobFile)
		if err != nil {
			return job, err
		}
		if err := json.Unmarshal(data, &job); err != nil {
			return job, fmt.Errorf("invalid job document: %w", err)
		}
	case imagePath != "":
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return job, err
		}
		b64 := codec.EncodeBytes(data)
		if _, err := codec.DecodeImage(b64); err != nil {
			return job, fmt.Errorf("%s is not a supported image: %w", imagePath, err)
		}
		job.Input.Action = action
		switch action {
		case domain.ActionProcessImage:
			job.Input.ImageData = b64
		case domain.ActionGenerate3DModel:
			job.Input.ProcessedImageData = b64
		default:
			return job, fmt.Errorf("action %q does not take an image", action)
		}
		if rawConfig != "" {
			if !json.Valid([]byte(rawConfig)) {
				return job, fmt.Errorf("config is not valid JSON")
			}
			job.Input.Config = json.RawMessage(rawConfig)
		}
	default:
		return job, fmt.Errorf("either -job or -image is required")
	}
	return job, nil
}
