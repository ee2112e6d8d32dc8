package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/veldt-labs/vigil/telemetry"
	"github.com/veldt-labs/vigil/types"
)

// SQSClient is the subset of the SQS API the dispatcher uses
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSDispatcher publishes intervention records to an SQS queue consumed by
// the external containment/notification collaborator
type SQSDispatcher struct {
	client   SQSClient
	queueURL string
	logger   *telemetry.Logger
}

// NewSQSDispatcher creates a dispatcher with AWS config from the environment
func NewSQSDispatcher(ctx context.Context, queueURL, region string) (*SQSDispatcher, error) {
	if queueURL == "" {
		return nil, fmt.Errorf("SQS queue URL is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SQSDispatcher{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
		logger:   telemetry.NewLogger("dispatch-sqs"),
	}, nil
}

// NewSQSDispatcherWithClient creates a dispatcher over an existing client.
// Used in tests.
func NewSQSDispatcherWithClient(client SQSClient, queueURL string) *SQSDispatcher {
	return &SQSDispatcher{
		client:   client,
		queueURL: queueURL,
		logger:   telemetry.NewLogger("dispatch-sqs"),
	}
}

func (d *SQSDispatcher) Name() string { return "sqs" }

// Dispatch publishes the record as a JSON message with tier and subject
// attributes so consumers can filter without parsing the body
func (d *SQSDispatcher) Dispatch(ctx context.Context, record *types.InterventionRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal intervention record: %w", err)
	}

	_, err = d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"tier": {
				DataType:    aws.String("String"),
				StringValue: aws.String(record.Tier.String()),
			},
			"subject_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(record.SubjectID),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish intervention to SQS: %w", err)
	}

	d.logger.WithContext(ctx).Debug().
		Str("assessment_id", record.AssessmentID).
		Str("tier", record.Tier.String()).
		Msg("intervention published to queue")

	return nil
}
