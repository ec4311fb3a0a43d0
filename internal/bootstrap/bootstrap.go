package bootstrap

import (
	"context"
	"fmt"
)

// Bootstrap creates the invoice bucket and the invitation queue. Existing
// resources are reused unless CleanResources is set.
func Bootstrap(ctx context.Context, cfg Config) (*Resources, error) {
	if cfg.S3Client == nil {
		return nil, fmt.Errorf("S3Client is required")
	}
	if cfg.SQSClient == nil {
		return nil, fmt.Errorf("SQSClient is required")
	}
	if cfg.Environment == "" {
		cfg.Environment = "dev"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = cfg.Environment + "-invoices"
	}

	if err := CreateBucket(ctx, cfg.S3Client, cfg.Bucket); err != nil {
		return nil, fmt.Errorf("failed to create invoice bucket: %w", err)
	}

	queueURL, err := CreateQueue(ctx, cfg.SQSClient, cfg.Environment+"-invitations", cfg.CleanResources)
	if err != nil {
		return nil, fmt.Errorf("failed to create invitation queue: %w", err)
	}

	return &Resources{Bucket: cfg.Bucket, QueueURL: queueURL}, nil
}

// Cleanup deletes the queue created by Bootstrap. The bucket is kept.
func Cleanup(ctx context.Context, cfg Config, res *Resources) error {
	if err := DeleteQueue(ctx, cfg.SQSClient, res.QueueURL); err != nil {
		return fmt.Errorf("failed to delete queue: %w", err)
	}
	return nil
}
