package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// CreateQueue creates the named queue and returns its URL.
// If cleanResources is true, an existing queue is deleted first.
func CreateQueue(ctx context.Context, client *sqs.Client, queueName string, cleanResources bool) (string, error) {
	if cleanResources {
		if err := deleteQueueIfExists(ctx, client, queueName); err != nil {
			return "", fmt.Errorf("failed to delete existing queue %s: %w", queueName, err)
		}
	}

	createResp, err := client.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String(queueName),
		Attributes: map[string]string{
			string(types.QueueAttributeNameMessageRetentionPeriod): "1209600", // 14 days
		},
	})
	if err != nil {
		// attributes differ from an existing queue, reuse it as is
		var exists *types.QueueNameExists
		if !cleanResources && errors.As(err, &exists) {
			getURLResp, getErr := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
				QueueName: aws.String(queueName),
			})
			if getErr != nil {
				return "", fmt.Errorf("failed to get existing queue %s: %w", queueName, getErr)
			}
			return aws.ToString(getURLResp.QueueUrl), nil
		}
		return "", fmt.Errorf("failed to create queue %s: %w", queueName, err)
	}

	return aws.ToString(createResp.QueueUrl), nil
}

func deleteQueueIfExists(ctx context.Context, client *sqs.Client, queueName string) error {
	getURLResp, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(queueName),
	})
	if err != nil {
		var missing *types.QueueDoesNotExist
		if errors.As(err, &missing) {
			return nil
		}
		return err
	}

	if _, err := client.DeleteQueue(ctx, &sqs.DeleteQueueInput{QueueUrl: getURLResp.QueueUrl}); err != nil {
		return err
	}

	// SQS refuses to recreate a queue name for a while after deletion
	time.Sleep(2 * time.Second)
	return nil
}

// DeleteQueue removes a queue created by CreateQueue.
func DeleteQueue(ctx context.Context, client *sqs.Client, queueURL string) error {
	if queueURL == "" {
		return nil
	}
	_, err := client.DeleteQueue(ctx, &sqs.DeleteQueueInput{
		QueueUrl: aws.String(queueURL),
	})
	return err
}
