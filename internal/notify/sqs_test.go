package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSQSNotifier_NotifyInvitation(t *testing.T) {
	ctx := context.Background()
	inv := Invitation{
		UserID:    uuid.New(),
		Email:     "new@example.com",
		AcceptURL: "https://portal.example.com/invite/accept?token=abc",
		ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}

	t.Run("publishes json body", func(t *testing.T) {
		client := &fakeSQS{}
		n := NewSQSNotifier(client, "https://sqs.local/queue/invites")

		require.NoError(t, n.NotifyInvitation(ctx, inv))
		require.Equal(t, "https://sqs.local/queue/invites", aws.ToString(client.input.QueueUrl))
		require.Equal(t, invitationMessageType, aws.ToString(client.input.MessageAttributes["type"].StringValue))

		var got Invitation
		require.NoError(t, json.Unmarshal([]byte(aws.ToString(client.input.MessageBody)), &got))
		require.Equal(t, inv, got)
	})

	t.Run("send failure", func(t *testing.T) {
		n := NewSQSNotifier(&fakeSQS{err: errors.New("throttled")}, "q")
		require.ErrorContains(t, n.NotifyInvitation(ctx, inv), "throttled")
	})
}
