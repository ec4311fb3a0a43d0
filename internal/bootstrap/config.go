package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Config holds configuration for bootstrapping local AWS infrastructure
// (LocalStack or MinIO) used during development.
type Config struct {
	S3Client  *s3.Client
	SQSClient *sqs.Client

	// Resource naming
	Environment string // e.g., "dev", "test" - used as prefix for resource names

	// Bucket overrides the generated invoice bucket name.
	Bucket string

	// CleanResources deletes the invitation queue before creating it.
	// Buckets are never emptied.
	CleanResources bool
}

// Resources holds identifiers for created infrastructure resources
type Resources struct {
	Bucket   string
	QueueURL string
}
