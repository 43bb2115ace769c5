package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/membership-settlement/pkg/config"
	"github.com/chris/membership-settlement/pkg/models"
	"github.com/chris/membership-settlement/pkg/storage"
	"github.com/chris/membership-settlement/pkg/storage/dynamodb/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testTables = config.Tables{
	Transactions:  "transactions",
	Entitlements:  "entitlements",
	Commissions:   "commissions",
	Wallets:       "wallets",
	Catalog:       "catalog",
	Profiles:      "profiles",
	ReminderRules: "reminder_rules",
	ReminderLogs:  "reminder_logs",
	Notifications: "notifications",
	Claims:        "claims",
}

func TestGetTransaction(t *testing.T) {
	txID := uuid.New().String()
	tx := &models.Transaction{Id: txID, UserId: "user1", Amount: 100, Category: models.CategoryCourse, ItemId: "c1", Status: models.SUCCESS}

	t.Run("Success", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, testTables)

		txAV, _ := attributevalue.MarshalMap(tx)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: txAV}, nil)

		result, err := store.GetTransaction(context.Background(), txID)

		assert.NoError(t, err)
		assert.Equal(t, tx.Id, result.Id)
		assert.Equal(t, tx.Status, result.Status)
		mockClient.AssertExpectations(t)
	})

	t.Run("Not Found", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, testTables)

		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: nil}, nil)

		_, err := store.GetTransaction(context.Background(), txID)

		assert.ErrorIs(t, err, storage.ErrNotFound)
		mockClient.AssertExpectations(t)
	})

	t.Run("Storage Error", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, testTables)

		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(nil, errors.New("get item failed"))

		_, err := store.GetTransaction(context.Background(), txID)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get transaction from DynamoDB")
		mockClient.AssertExpectations(t)
	})
}

func TestCreateTransaction(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, testTables)

		mockClient.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
			return *in.TableName == "transactions" && *in.ConditionExpression == "attribute_not_exists(id)"
		})).Return(&dynamodb.PutItemOutput{}, nil)

		created, err := store.CreateTransaction(context.Background(), &models.Transaction{UserId: "user1", Amount: 10})

		require.NoError(t, err)
		assert.NotEmpty(t, created.Id)
		assert.Equal(t, models.PENDING, created.Status)
		assert.False(t, created.CreatedAt.IsZero())
		mockClient.AssertExpectations(t)
	})

	t.Run("Duplicate", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, testTables)

		mockClient.On("PutItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

		_, err := store.CreateTransaction(context.Background(), &models.Transaction{Id: "tx1"})

		assert.ErrorIs(t, err, storage.ErrAlreadyExists)
		mockClient.AssertExpectations(t)
	})
}

func TestTransitionTransaction(t *testing.T) {
	now := time.Now().UTC()

	t.Run("Success", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, testTables)

		updated, _ := attributevalue.MarshalMap(&models.Transaction{Id: "tx1", Status: models.SUCCESS, PaidAt: &now})
		mockClient.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
			return *in.ConditionExpression == "#status IN (:from0, :from1)" &&
				*in.UpdateExpression == "SET #status = :to, updated_at = :now, paid_at = if_not_exists(paid_at, :now)"
		})).Return(&dynamodb.UpdateItemOutput{Attributes: updated}, nil)

		tx, err := store.TransitionTransaction(context.Background(), "tx1",
			[]models.TransactionStatus{models.PENDING, models.PENDING_CONFIRMATION}, models.SUCCESS, now)

		require.NoError(t, err)
		assert.Equal(t, models.SUCCESS, tx.Status)
		assert.NotNil(t, tx.PaidAt)
		mockClient.AssertExpectations(t)
	})

	t.Run("Wrong Status", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, testTables)

		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

		_, err := store.TransitionTransaction(context.Background(), "tx1",
			[]models.TransactionStatus{models.SUCCESS}, models.REFUNDED, now)

		assert.ErrorIs(t, err, storage.ErrInvalidTransition)
		mockClient.AssertExpectations(t)
	})

	t.Run("No Source Status", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, testTables)

		_, err := store.TransitionTransaction(context.Background(), "tx1", nil, models.SUCCESS, now)

		assert.Error(t, err)
		mockClient.AssertNotCalled(t, "UpdateItem", mock.Anything, mock.Anything)
	})
}

func TestMarkTransactionSettled(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, testTables)

		mockClient.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
			return *in.UpdateExpression == "SET settled_at = if_not_exists(settled_at, :now), updated_at = :now"
		})).Return(&dynamodb.UpdateItemOutput{}, nil)

		err := store.MarkTransactionSettled(context.Background(), "tx1", time.Now())

		assert.NoError(t, err)
		mockClient.AssertExpectations(t)
	})

	t.Run("Refunded In Between", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, testTables)

		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

		err := store.MarkTransactionSettled(context.Background(), "tx1", time.Now())

		assert.ErrorIs(t, err, storage.ErrInvalidTransition)
		mockClient.AssertExpectations(t)
	})
}

func TestListUnsettledTransactions(t *testing.T) {
	t.Run("Follows Pages", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, testTables)

		page1, _ := attributevalue.MarshalMap(&models.Transaction{Id: "tx1", Status: models.SUCCESS})
		page2, _ := attributevalue.MarshalMap(&models.Transaction{Id: "tx2", Status: models.SUCCESS})
		lastKey := map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: "tx1"}}

		mockClient.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
			return *in.IndexName == statusUpdatedAtIndex && in.ExclusiveStartKey == nil
		})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{page1}, LastEvaluatedKey: lastKey}, nil).Once()
		mockClient.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
			return in.ExclusiveStartKey != nil
		})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{page2}}, nil).Once()

		txs, err := store.ListUnsettledTransactions(context.Background(), 20*time.Minute)

		require.NoError(t, err)
		require.Len(t, txs, 2)
		assert.Equal(t, "tx1", txs[0].Id)
		assert.Equal(t, "tx2", txs[1].Id)
		mockClient.AssertExpectations(t)
	})

	t.Run("Query Fails", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, testTables)

		mockClient.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

		_, err := store.ListUnsettledTransactions(context.Background(), time.Minute)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query for unsettled transactions")
		mockClient.AssertExpectations(t)
	})
}
