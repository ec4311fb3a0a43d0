package storage

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestS3Client(endpoint string, pathStyle bool) *s3.Client {
	return s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(endpoint),
		UsePathStyle: pathStyle,
		Credentials:  credentials.NewStaticCredentialsProvider("test", "test", ""),
	})
}

func TestS3Store_SignedURLRoundTrip(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()

	key, err := NewKey(owner, "pdf", time.Now())
	require.NoError(t, err)

	tests := []struct {
		name      string
		pathStyle bool
	}{
		{name: "path style", pathStyle: true},
		{name: "virtual hosted", pathStyle: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewS3Store(newTestS3Client("https://s3.example.com", tt.pathStyle), "invoices", tt.pathStyle)

			signed, err := store.SignedURL(ctx, key, 5*time.Minute)
			require.NoError(t, err)
			require.Contains(t, signed, "X-Amz-Signature=")

			got, err := store.KeyFromURL(signed)
			require.NoError(t, err)
			require.Equal(t, key, got)
			require.True(t, OwnedBy(got, owner))
		})
	}
}

func TestS3Store_KeyFromURLRejectsOtherBucket(t *testing.T) {
	store := NewS3Store(newTestS3Client("https://s3.example.com", true), "invoices", true)

	_, err := store.KeyFromURL("https://s3.example.com/other/" + uuid.NewString() + "/a.pdf")
	require.Error(t, err)

	hosted := NewS3Store(newTestS3Client("https://s3.example.com", false), "invoices", false)
	_, err = hosted.KeyFromURL("https://other.s3.example.com/" + uuid.NewString() + "/a.pdf")
	require.Error(t, err)
}
