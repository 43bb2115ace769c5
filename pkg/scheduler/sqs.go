package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// maxSQSDelay is the largest DelaySeconds SQS accepts.
const maxSQSDelay = 15 * time.Minute

// SQSAPI is the subset of the SQS client the scheduler uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSScheduler implements the Scheduler interface using AWS SQS.
type SQSScheduler struct {
	Client   SQSAPI
	QueueURL string
}

// NewSQSScheduler creates a new SQSScheduler.
func NewSQSScheduler(client SQSAPI, queueURL string) *SQSScheduler {
	return &SQSScheduler{
		Client:   client,
		QueueURL: queueURL,
	}
}

// Make sure we conform to the interface
var _ Scheduler = (*SQSScheduler)(nil)

// ScheduleSettlement sends the transaction id to the settlement queue.
func (s *SQSScheduler) ScheduleSettlement(ctx context.Context, txID string, delay time.Duration) error {
	body, err := json.Marshal(SettlementMessage{TransactionId: txID})
	if err != nil {
		return fmt.Errorf("failed to marshal settlement message for SQS: %w", err)
	}

	delay = min(max(delay, 0), maxSQSDelay)
	_, err = s.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(s.QueueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: int32(delay / time.Second),
	})
	if err != nil {
		return fmt.Errorf("failed to send message to SQS: %w", err)
	}

	return nil
}

// ParseSettlementMessage decodes a queue body. A serialized transaction carrying
// only "id" is accepted too.
func ParseSettlementMessage(body string) (string, error) {
	var msg struct {
		TransactionId string `json:"transaction_id"`
		Id            string `json:"id"`
	}
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return "", fmt.Errorf("failed to unmarshal settlement message: %w", err)
	}
	if msg.TransactionId != "" {
		return msg.TransactionId, nil
	}
	if msg.Id != "" {
		return msg.Id, nil
	}
	return "", fmt.Errorf("settlement message has no transaction id")
}
