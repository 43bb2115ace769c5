package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/membership-settlement/pkg/models"
	"github.com/chris/membership-settlement/pkg/storage"
)

// GetEntitlement retrieves a single grant by its composite key.
func (s *Store) GetEntitlement(ctx context.Context, userID, grantKey string) (*models.Entitlement, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"user_id": userID, "grant_key": grantKey})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entitlement key: %w", err)
	}

	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.Tables.Entitlements),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get entitlement from DynamoDB: %w", err)
	}

	if result.Item == nil {
		return nil, fmt.Errorf("entitlement %s for user %s: %w", grantKey, userID, storage.ErrNotFound)
	}

	var e models.Entitlement
	if err := attributevalue.UnmarshalMap(result.Item, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entitlement: %w", err)
	}

	return &e, nil
}

// ListEntitlementsByUser retrieves every grant held by a user.
func (s *Store) ListEntitlementsByUser(ctx context.Context, userID string) ([]models.Entitlement, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.Tables.Entitlements),
		KeyConditionExpression: aws.String("user_id = :userID"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":userID": &types.AttributeValueMemberS{Value: userID},
		},
	}

	var entitlements []models.Entitlement
	if err := s.queryAll(ctx, input, &entitlements); err != nil {
		return nil, fmt.Errorf("failed to query entitlements by user: %w", err)
	}

	return entitlements, nil
}

// ListEntitlementsByGrant retrieves every holder of a grant through the grant_key index.
func (s *Store) ListEntitlementsByGrant(ctx context.Context, grantKey string) ([]models.Entitlement, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.Tables.Entitlements),
		IndexName:              aws.String(grantKeyIndex),
		KeyConditionExpression: aws.String("grant_key = :grantKey"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":grantKey": &types.AttributeValueMemberS{Value: grantKey},
		},
	}

	var entitlements []models.Entitlement
	if err := s.queryAll(ctx, input, &entitlements); err != nil {
		return nil, fmt.Errorf("failed to query entitlements by grant: %w", err)
	}

	return entitlements, nil
}

// CreateEntitlement writes a new grant unless one already exists for the key.
func (s *Store) CreateEntitlement(ctx context.Context, e *models.Entitlement) error {
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.Version == 0 {
		e.Version = 1
	}

	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entitlement: %w", err)
	}

	_, err = s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.Tables.Entitlements),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(grant_key)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("entitlement %s for user %s: %w", e.GrantKey, e.UserId, storage.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to put entitlement in DynamoDB: %w", err)
	}

	return nil
}

// UpdateEntitlementWindow writes a new window under optimistic locking on version.
func (s *Store) UpdateEntitlementWindow(ctx context.Context, e *models.Entitlement, expectedVersion int64) error {
	e.UpdatedAt = time.Now().UTC()

	startsAV, err := attributevalue.Marshal(e.StartsAt)
	if err != nil {
		return fmt.Errorf("failed to marshal starts_at: %w", err)
	}
	endsAV, err := attributevalue.Marshal(e.EndsAt)
	if err != nil {
		return fmt.Errorf("failed to marshal ends_at: %w", err)
	}
	nowAV, err := attributevalue.Marshal(e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to marshal updated_at: %w", err)
	}

	update := "SET starts_at = :starts, ends_at = :ends, transaction_id = :tx, updated_at = :now, version = version + :inc"
	values := map[string]types.AttributeValue{
		":starts":   startsAV,
		":ends":     endsAV,
		":tx":       &types.AttributeValueMemberS{Value: e.TransactionId},
		":now":      nowAV,
		":inc":      &types.AttributeValueMemberN{Value: "1"},
		":expected": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
	}
	if len(e.AppliedTransactions) > 0 {
		update += ", applied_transactions = :applied"
		values[":applied"] = &types.AttributeValueMemberSS{Value: e.AppliedTransactions}
	}

	_, err = s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.Tables.Entitlements),
		Key: map[string]types.AttributeValue{
			"user_id":   &types.AttributeValueMemberS{Value: e.UserId},
			"grant_key": &types.AttributeValueMemberS{Value: e.GrantKey},
		},
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String("version = :expected"),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("entitlement %s for user %s: %w", e.GrantKey, e.UserId, storage.ErrVersionConflict)
		}
		return fmt.Errorf("failed to update entitlement window: %w", err)
	}

	e.Version = expectedVersion + 1
	return nil
}
