package usage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/knackw/ai-orchestra-gateway-sub000/internal/domain"
)

// SQSRecorder publishes usage records to a queue for asynchronous
// ingestion by a downstream billing consumer, keeping the hot path
// free of database writes.
type SQSRecorder struct {
	client   *sqs.Client
	queueURL string
}

func NewSQSRecorder(ctx context.Context, region, queueURL string) (*SQSRecorder, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SQSRecorder{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}, nil
}

func NewSQSRecorderWithConfig(cfg aws.Config, queueURL string) *SQSRecorder {
	return &SQSRecorder{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}
}

func (r *SQSRecorder) Record(ctx context.Context, record domain.UsageRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal usage record: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(r.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"TenantID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(record.TenantID),
			},
			"RequestID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(record.RequestID),
			},
		},
	}

	if _, err := r.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send usage record: %w", err)
	}
	return nil
}
