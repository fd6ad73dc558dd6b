package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	skInFlight   = "INFLIGHT#"
	defaultLease = 60 * time.Second
	// ttlGrace keeps expired leases around briefly; DynamoDB TTL deletion is
	// lazy and the condition expression already ignores them.
	ttlGrace = time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by Gate.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Gate is a DynamoDB-backed lease that admits one in-flight chat request per
// session across concurrent Lambda invocations. Leases expire so a crashed
// invocation cannot block a session forever.
type Gate struct {
	api       dynamodbAPI
	tableName string
	lease     time.Duration
	now       func() time.Time
}

type Option func(*Gate)

func WithLease(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.lease = d
		}
	}
}

// NewGate creates a Gate over tableName.
func NewGate(api dynamodbAPI, tableName string, opts ...Option) (*Gate, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	g := &Gate{
		api:       api,
		tableName: tableName,
		lease:     defaultLease,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// sessionPK returns the DynamoDB partition key for a widget session.
func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

func (g *Gate) key(sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
		"SK": &types.AttributeValueMemberS{Value: skInFlight},
	}
}

// Acquire takes the session lease. It reports false, without error, when
// another request for the session holds an unexpired lease.
func (g *Gate) Acquire(ctx context.Context, sessionID string) (bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return false, errors.New("repository: Acquire: session id is required")
	}
	now := g.now().UTC()
	item := g.key(sessionID)
	item["sessionId"] = &types.AttributeValueMemberS{Value: sessionID}
	item["acquiredAt"] = &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)}
	item["expiresAt"] = numberAttr(now.Add(g.lease).Unix())
	item["ttl"] = numberAttr(now.Add(g.lease + ttlGrace).Unix())

	_, err := g.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(g.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR expiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": numberAttr(now.Unix()),
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return false, nil
		}
		return false, fmt.Errorf("repository: Acquire: %w", err)
	}
	return true, nil
}

// Release drops the session lease. Releasing a lease that is not held is
// not an error.
func (g *Gate) Release(ctx context.Context, sessionID string) error {
	_, err := g.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(g.tableName),
		Key:       g.key(sessionID),
	})
	if err != nil {
		return fmt.Errorf("repository: Release: %w", err)
	}
	return nil
}

func numberAttr(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}
