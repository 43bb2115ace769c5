package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/membership-settlement/pkg/idempotency"
)

// claim is a record in the claims table. The table's TTL attribute is "ttl".
type claim struct {
	ClaimKey  string    `dynamodbav:"claim_key"`
	ClaimedAt time.Time `dynamodbav:"claimed_at"`
	TTL       int64     `dynamodbav:"ttl,omitempty"`
}

// ClaimGuard implements idempotency.Guard with a conditional put on the claims table.
type ClaimGuard struct {
	Client    DynamoDBAPI
	TableName string
	// TTL bounds how long a claim lives. Zero keeps claims forever.
	TTL time.Duration
}

// NewClaimGuard creates a ClaimGuard.
func NewClaimGuard(client DynamoDBAPI, tableName string, ttl time.Duration) *ClaimGuard {
	return &ClaimGuard{Client: client, TableName: tableName, TTL: ttl}
}

var _ idempotency.Guard = (*ClaimGuard)(nil)

// TryClaim acquires the key. The conditional put is the lock: a failed condition
// means another caller already holds it.
func (g *ClaimGuard) TryClaim(ctx context.Context, key string) (bool, error) {
	now := time.Now().UTC()
	c := claim{ClaimKey: key, ClaimedAt: now}
	if g.TTL > 0 {
		c.TTL = now.Add(g.TTL).Unix()
	}

	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return false, fmt.Errorf("failed to marshal claim: %w", err)
	}

	_, err = g.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(g.TableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(claim_key)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim %s: %w", key, err)
	}

	return true, nil
}

// Release deletes the claim.
func (g *ClaimGuard) Release(ctx context.Context, key string) error {
	_, err := g.Client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(g.TableName),
		Key: map[string]types.AttributeValue{
			"claim_key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to release %s: %w", key, err)
	}

	return nil
}
