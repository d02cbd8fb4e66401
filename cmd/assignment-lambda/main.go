package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/clinicops/cmd/mainconfig"
	appconfig "github.com/wolfman30/clinicops/internal/config"
	"github.com/wolfman30/clinicops/internal/triggers"
	"github.com/wolfman30/clinicops/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	rt, err := mainconfig.BuildAssignmentRuntime(context.Background(), cfg, nil, logger)
	if err != nil {
		panic(err)
	}
	defer rt.Close()

	lambda.Start(func(ctx context.Context, evt events.SQSEvent) (events.SQSEventResponse, error) {
		return handle(ctx, rt.Service, logger, evt), nil
	})
}

// handle dispatches every record of the batch. Malformed records are dropped;
// records whose handler errors are reported back so SQS redelivers only those.
func handle(ctx context.Context, h triggers.Handler, logger *logging.Logger, evt events.SQSEvent) events.SQSEventResponse {
	var resp events.SQSEventResponse
	for _, record := range evt.Records {
		trigger, err := triggers.DecodeEvent(record.Body)
		if err != nil {
			logger.Error("dropping malformed trigger event", "message_id", record.MessageId, "error", err)
			continue
		}
		if err := triggers.Dispatch(ctx, h, trigger); err != nil {
			logger.Error("trigger handler failed", "message_id", record.MessageId, "event_id", trigger.ID, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return resp
}
