package counter

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type dynamoAPI interface {
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoLedger keeps counters as items keyed by resource and bumps them with an
// atomic ADD update.
type DynamoLedger struct {
	client    dynamoAPI
	tableName string
	retry     retrier
}

var _ Ledger = (*DynamoLedger)(nil)

func NewDynamoLedger(client dynamoAPI, tableName string, maxAttempts int) *DynamoLedger {
	if client == nil {
		panic("counter: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("counter: table name cannot be empty")
	}
	return &DynamoLedger{client: client, tableName: tableName, retry: newRetrier(maxAttempts)}
}

type counterItem struct {
	Count int64 `dynamodbav:"count"`
}

func (l *DynamoLedger) Increment(ctx context.Context, resource Resource) (int64, error) {
	if !resource.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}
	ctx, span := tracer.Start(ctx, "counter.increment", trace.WithAttributes(
		attribute.String("counter.resource", string(resource)),
		attribute.String("counter.backend", "dynamodb"),
	))
	defer span.End()

	n, err := l.retry.do(ctx, isDynamoContention, func() (int64, error) {
		out, err := l.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(l.tableName),
			Key: map[string]types.AttributeValue{
				"resource": &types.AttributeValueMemberS{Value: string(resource)},
			},
			UpdateExpression:         aws.String("ADD #count :one"),
			ExpressionAttributeNames: map[string]string{"#count": "count"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":one": &types.AttributeValueMemberN{Value: "1"},
			},
			ReturnValues: types.ReturnValueUpdatedNew,
		})
		if err != nil {
			return 0, err
		}
		var item counterItem
		if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
			return 0, fmt.Errorf("counter: decode dynamodb attributes: %w", err)
		}
		return item.Count, nil
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrTransactionConflict) {
			return 0, err
		}
		return 0, fmt.Errorf("counter: increment %s: %w", resource, err)
	}
	return n, nil
}

func isDynamoContention(err error) bool {
	var conflict *types.TransactionConflictException
	var throttled *types.ProvisionedThroughputExceededException
	return errors.As(err, &conflict) || errors.As(err, &throttled)
}
