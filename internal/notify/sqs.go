package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
)

const invitationMessageType = "invitation.v1"

// SQSAPI is the subset of the SQS client used by SQSNotifier.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSNotifier publishes invitations to an SQS queue.
type SQSNotifier struct {
	client   SQSAPI
	queueURL string
}

// NewSQSNotifier creates a notifier publishing to queueURL.
func NewSQSNotifier(client SQSAPI, queueURL string) *SQSNotifier {
	return &SQSNotifier{client: client, queueURL: queueURL}
}

// NotifyInvitation implements Notifier.
func (n *SQSNotifier) NotifyInvitation(ctx context.Context, inv Invitation) error {
	body, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to encode invitation: %w", err)
	}

	out, err := n.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(invitationMessageType),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send invitation message: %w", err)
	}

	log.Debug().
		Str("user_id", inv.UserID.String()).
		Str("message_id", aws.ToString(out.MessageId)).
		Msg("Queued invitation")

	return nil
}
