package dynamodb

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/membership-settlement/pkg/models"
	"github.com/chris/membership-settlement/pkg/storage"
	"github.com/chris/membership-settlement/pkg/storage/dynamodb/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestListActiveRules(t *testing.T) {
	mockClient := new(mocks.DynamoDBAPI)
	store := New(mockClient, testTables)

	rule, _ := attributevalue.MarshalMap(&models.ReminderRule{Id: "r1", IsActive: true, DelayUnit: models.Days})
	mockClient.On("Scan", mock.Anything, mock.MatchedBy(func(in *dynamodb.ScanInput) bool {
		return *in.FilterExpression == "is_active = :active"
	})).Return(&dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{rule}}, nil)

	rules, err := store.ListActiveRules(context.Background())

	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "r1", rules[0].Id)
	mockClient.AssertExpectations(t)
}

func TestPutReminderLog(t *testing.T) {
	l := &models.ReminderLog{RuleId: "r1", UserId: "u1", Status: models.ReminderSent}

	t.Run("Success", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, testTables)

		mockClient.On("PutItem", mock.Anything, mock.Anything).Return(&dynamodb.PutItemOutput{}, nil)

		assert.NoError(t, store.PutReminderLog(context.Background(), l))
		mockClient.AssertExpectations(t)
	})

	t.Run("Already Sent", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, testTables)

		mockClient.On("PutItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

		err := store.PutReminderLog(context.Background(), l)

		assert.ErrorIs(t, err, storage.ErrAlreadyExists)
		mockClient.AssertExpectations(t)
	})
}

func TestIncrementRuleCounters(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, testTables)

		mockClient.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
			sent := in.ExpressionAttributeValues[":sent"].(*types.AttributeValueMemberN)
			failed := in.ExpressionAttributeValues[":failed"].(*types.AttributeValueMemberN)
			return *in.UpdateExpression == "ADD sent_count :sent, failed_count :failed" && sent.Value == "1" && failed.Value == "0"
		})).Return(&dynamodb.UpdateItemOutput{}, nil)

		assert.NoError(t, store.IncrementRuleCounters(context.Background(), "r1", 1, 0))
		mockClient.AssertExpectations(t)
	})

	t.Run("Unknown Rule", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, testTables)

		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

		err := store.IncrementRuleCounters(context.Background(), "r1", 0, 1)

		assert.ErrorIs(t, err, storage.ErrNotFound)
		mockClient.AssertExpectations(t)
	})
}
