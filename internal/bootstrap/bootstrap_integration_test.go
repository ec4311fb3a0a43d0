//go:build integration

package bootstrap

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/ownerportal/internal/notify"
)

func startLocalStack(t *testing.T, ctx context.Context) string {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "localstack/localstack:3",
			ExposedPorts: []string{"4566/tcp"},
			Env:          map[string]string{"SERVICES": "s3,sqs"},
			WaitingFor:   wait.ForHTTP("/_localstack/health").WithPort("4566/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.PortEndpoint(ctx, "4566/tcp", "http")
	require.NoError(t, err)
	return endpoint
}

func TestIntegration_BootstrapAndNotify(t *testing.T) {
	ctx := context.Background()
	endpoint := startLocalStack(t, ctx)

	creds := credentials.NewStaticCredentialsProvider("test", "test", "test")
	cfg := Config{
		S3Client: s3.New(s3.Options{
			Region:       "us-east-1",
			BaseEndpoint: aws.String(endpoint),
			UsePathStyle: true,
			Credentials:  creds,
		}),
		SQSClient: sqs.New(sqs.Options{
			Region:       "us-east-1",
			BaseEndpoint: aws.String(endpoint),
			Credentials:  creds,
		}),
		Environment: "test",
	}

	res, err := Bootstrap(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, "test-invoices", res.Bucket)
	require.NotEmpty(t, res.QueueURL)

	// second run reuses what exists
	again, err := Bootstrap(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, res.QueueURL, again.QueueURL)

	inv := notify.Invitation{
		UserID:    uuid.New(),
		Email:     "new@example.com",
		AcceptURL: "http://localhost:8080/invite/accept?token=abc",
		ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}
	require.NoError(t, notify.NewSQSNotifier(cfg.SQSClient, res.QueueURL).NotifyInvitation(ctx, inv))

	out, err := cfg.SQSClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(res.QueueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     5,
	})
	require.NoError(t, err)
	require.Len(t, out.Messages, 1)

	var got notify.Invitation
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(out.Messages[0].Body)), &got))
	require.Equal(t, inv.UserID, got.UserID)
	require.Equal(t, inv.Email, got.Email)

	require.NoError(t, Cleanup(ctx, cfg, res))
}
