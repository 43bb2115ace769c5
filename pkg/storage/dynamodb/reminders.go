package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/membership-settlement/pkg/models"
	"github.com/chris/membership-settlement/pkg/storage"
)

// ListActiveRules scans the rules table for active rules.
func (s *Store) ListActiveRules(ctx context.Context) ([]models.ReminderRule, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.Tables.ReminderRules),
		FilterExpression: aws.String("is_active = :active"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":active": &types.AttributeValueMemberBOOL{Value: true},
		},
	}

	var rules []models.ReminderRule
	if err := s.scanAll(ctx, input, &rules); err != nil {
		return nil, fmt.Errorf("failed to scan reminder rules: %w", err)
	}

	return rules, nil
}

// GetReminderLog retrieves the log row of a (rule, user) pair.
func (s *Store) GetReminderLog(ctx context.Context, ruleID, userID string) (*models.ReminderLog, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"rule_id": ruleID, "user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reminder log key: %w", err)
	}

	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.Tables.ReminderLogs),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder log from DynamoDB: %w", err)
	}

	if result.Item == nil {
		return nil, fmt.Errorf("reminder log %s/%s: %w", ruleID, userID, storage.ErrNotFound)
	}

	var l models.ReminderLog
	if err := attributevalue.UnmarshalMap(result.Item, &l); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reminder log: %w", err)
	}

	return &l, nil
}

// PutReminderLog upserts the log row of a (rule, user) pair. A row that already
// reached SENT is never overwritten.
func (s *Store) PutReminderLog(ctx context.Context, l *models.ReminderLog) error {
	item, err := attributevalue.MarshalMap(l)
	if err != nil {
		return fmt.Errorf("failed to marshal reminder log: %w", err)
	}

	_, err = s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.Tables.ReminderLogs),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(rule_id) OR NOT (#status IN (:sent, :delivered))"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sent":      &types.AttributeValueMemberS{Value: string(models.ReminderSent)},
			":delivered": &types.AttributeValueMemberS{Value: string(models.ReminderDelivered)},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("reminder log %s/%s: %w", l.RuleId, l.UserId, storage.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to put reminder log in DynamoDB: %w", err)
	}

	return nil
}

// IncrementRuleCounters adds to the sent and failed counters of a rule.
func (s *Store) IncrementRuleCounters(ctx context.Context, ruleID string, sent, failed int64) error {
	_, err := s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.Tables.ReminderRules),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: ruleID},
		},
		UpdateExpression:    aws.String("ADD sent_count :sent, failed_count :failed"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sent":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", sent)},
			":failed": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", failed)},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("reminder rule %s: %w", ruleID, storage.ErrNotFound)
		}
		return fmt.Errorf("failed to increment counters of rule %s: %w", ruleID, err)
	}

	return nil
}
