package ingest

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	batches [][]types.Message
	call    int
	deleted []string
	cancel  context.CancelFunc
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if f.call >= len(f.batches) {
		f.cancel()
		return &sqs.ReceiveMessageOutput{}, nil
	}
	batch := f.batches[f.call]
	f.call++
	return &sqs.ReceiveMessageOutput{Messages: batch}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type recordingHandler struct {
	events []*IngestEvent
}

func (r *recordingHandler) ProcessEvent(ctx context.Context, ev *IngestEvent) {
	r.events = append(r.events, ev)
}

func message(handle, body string) types.Message {
	return types.Message{ReceiptHandle: aws.String(handle), Body: aws.String(body)}
}

func TestConsumerProcessesAndDeletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeSQS{
		cancel: cancel,
		batches: [][]types.Message{{
			message("h1", `{"documentId": 42, "cardId": 7, "s3Key": "docs/a.pdf"}`),
			message("h2", `not json`),
			message("h3", `{"documentId": 43, "cardId": 8, "s3Key": "docs/b.pdf", "bucketName": "alt"}`),
		}},
	}
	handler := &recordingHandler{}
	NewConsumer(client, "https://sqs.local/ingest", handler).Run(ctx)

	require.Len(t, handler.events, 2)
	require.Equal(t, int64(42), handler.events[0].DocumentID)
	require.Equal(t, "alt", handler.events[1].BucketName)
	// malformed payloads are skipped but still deleted
	require.Equal(t, []string{"h1", "h2", "h3"}, client.deleted)
}

func TestConsumerStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &fakeSQS{cancel: func() {}}
	NewConsumer(client, "q", &recordingHandler{}).Run(ctx)
	require.Zero(t, client.call)
}
