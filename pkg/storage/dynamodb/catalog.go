package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/chris/membership-settlement/pkg/models"
	"github.com/chris/membership-settlement/pkg/storage"
)

// GetCatalogItem retrieves a plan, course or product keyed by (category, id).
func (s *Store) GetCatalogItem(ctx context.Context, category models.Category, itemID string) (*models.CatalogItem, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"category": string(category), "id": itemID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal catalog key: %w", err)
	}

	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.Tables.Catalog),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog item from DynamoDB: %w", err)
	}

	if result.Item == nil {
		return nil, fmt.Errorf("%s %s: %w", category, itemID, storage.ErrNotFound)
	}

	var item models.CatalogItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog item: %w", err)
	}

	return &item, nil
}

// GetUserProfile retrieves the contact details of a user.
func (s *Store) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile key: %w", err)
	}

	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.Tables.Profiles),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get profile from DynamoDB: %w", err)
	}

	if result.Item == nil {
		return nil, fmt.Errorf("profile for user %s: %w", userID, storage.ErrNotFound)
	}

	var profile models.UserProfile
	if err := attributevalue.UnmarshalMap(result.Item, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}

	return &profile, nil
}
