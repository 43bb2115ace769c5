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
	"github.com/google/uuid"
)

// CreateNotification appends a notification to a user's feed. Notification IDs are
// UUIDv7 so the sort key orders the feed by creation time.
func (s *Store) CreateNotification(ctx context.Context, n *models.InAppNotification) error {
	if n.NotificationId == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate notification ID: %w", err)
		}
		n.NotificationId = id.String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	item, err := attributevalue.MarshalMap(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	_, err = s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.Tables.Notifications),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put notification in DynamoDB: %w", err)
	}

	return nil
}

// ListNotifications retrieves the newest notifications of a user.
func (s *Store) ListNotifications(ctx context.Context, userID string, limit int32) ([]models.InAppNotification, error) {
	result, err := s.Client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.Tables.Notifications),
		KeyConditionExpression: aws.String("user_id = :userID"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":userID": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(false), // Newest first
		Limit:            &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query for notifications: %w", err)
	}

	var notifications []models.InAppNotification
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &notifications); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notifications: %w", err)
	}

	return notifications, nil
}
