package ingest

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type EventHandler interface {
	ProcessEvent(ctx context.Context, ev *IngestEvent)
}

// Consumer long-polls the ingest queue and hands each event to the
// coordinator. A handled message is always deleted; the coordinator owns
// the success/failure callback semantics.
type Consumer struct {
	client   SQSAPI
	queueURL string
	handler  EventHandler
}

func NewConsumer(client SQSAPI, queueURL string, handler EventHandler) *Consumer {
	return &Consumer{client: client, queueURL: queueURL, handler: handler}
}

func (c *Consumer) Run(ctx context.Context) {
	logger := logutil.GetLogger(ctx).With(zap.String("queue", c.queueURL))
	logger.Info("ingest consumer started")
	for {
		select {
		case <-ctx.Done():
			logger.Info("ingest consumer stopped")
			return
		default:
		}
		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 5,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("ingest consumer stopped")
				return
			}
			logger.Error("receive ingest messages failed", zap.Error(err))
			continue
		}
		for _, msg := range out.Messages {
			var ev IngestEvent
			if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &ev); err != nil {
				logger.Warn("skipping malformed ingest payload", zap.Error(err))
			} else {
				c.handler.ProcessEvent(ctx, &ev)
			}
			if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(c.queueURL),
				ReceiptHandle: msg.ReceiptHandle,
			}); err != nil {
				logger.Error("delete ingest message failed", zap.Error(err))
			}
		}
	}
}
