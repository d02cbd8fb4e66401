package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/wolfman30/clinicops/internal/triggers"
	"github.com/wolfman30/clinicops/pkg/logging"
)

func TestHandleDispatchesRecords(t *testing.T) {
	var seen []string
	h := triggers.HandlerFunc(func(_ context.Context, collection, id string) error {
		seen = append(seen, collection+"/"+id)
		if id == "bad" {
			return errors.New("boom")
		}
		return nil
	})

	evt := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: `{"id":"e1","kind":"document.created","collection":"citas","document_id":"c1"}`},
		{MessageId: "m2", Body: `not json`},
		{MessageId: "m3", Body: `{"id":"e3","kind":"document.created","collection":"chats","document_id":"bad"}`},
		{MessageId: "m4", Body: `{"id":"e4","kind":"document.deleted","collection":"citas","document_id":"c4"}`},
	}}

	resp := handle(context.Background(), h, logging.New("error"), evt)

	if len(seen) != 2 || seen[0] != "citas/c1" || seen[1] != "chats/bad" {
		t.Fatalf("unexpected dispatches: %v", seen)
	}
	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "m3" {
		t.Fatalf("expected only m3 to be retried, got %+v", resp.BatchItemFailures)
	}
}

func TestHandleEmptyBatch(t *testing.T) {
	resp := handle(context.Background(), triggers.HandlerFunc(func(context.Context, string, string) error {
		t.Fatal("handler should not be called")
		return nil
	}), logging.New("error"), events.SQSEvent{})
	if len(resp.BatchItemFailures) != 0 {
		t.Fatalf("expected no failures, got %+v", resp.BatchItemFailures)
	}
}
