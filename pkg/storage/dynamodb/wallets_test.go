package dynamodb

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
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

func TestGetWallet(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, testTables)

		walletAV, _ := attributevalue.MarshalMap(&models.Wallet{UserId: "aff1", Balance: 275000, TotalEarnings: 275000})
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: walletAV}, nil)

		wallet, err := store.GetWallet(context.Background(), "aff1")

		require.NoError(t, err)
		assert.Equal(t, int64(275000), wallet.Balance)
		mockClient.AssertExpectations(t)
	})

	t.Run("Not Found", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, testTables)

		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

		_, err := store.GetWallet(context.Background(), "aff1")

		assert.ErrorIs(t, err, storage.ErrNotFound)
		mockClient.AssertExpectations(t)
	})
}

func TestCreditCommission(t *testing.T) {
	entry := &models.CommissionEntry{TransactionId: "tx1", AffiliateId: "aff1", Amount: 275000, Type: models.CommissionFlat}

	t.Run("Success", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, testTables)

		mockClient.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
			return len(in.TransactItems) == 2 &&
				*in.TransactItems[0].Put.ConditionExpression == "attribute_not_exists(transaction_id)" &&
				*in.TransactItems[1].Update.UpdateExpression == "ADD balance :amount, total_earnings :amount SET updated_at = :now"
		})).Return(&dynamodb.TransactWriteItemsOutput{}, nil)

		credited, err := store.CreditCommission(context.Background(), entry)

		assert.NoError(t, err)
		assert.True(t, credited)
		mockClient.AssertExpectations(t)
	})

	t.Run("Already Credited", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, testTables)

		cancelled := &types.TransactionCanceledException{
			CancellationReasons: []types.CancellationReason{
				{Code: aws.String("ConditionalCheckFailed")},
				{Code: aws.String("None")},
			},
		}
		mockClient.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, cancelled)

		credited, err := store.CreditCommission(context.Background(), entry)

		assert.NoError(t, err)
		assert.False(t, credited)
		mockClient.AssertExpectations(t)
	})

	t.Run("Storage Error", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := New(mockClient, testTables)

		mockClient.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, errors.New("transaction failed"))

		credited, err := store.CreditCommission(context.Background(), entry)

		assert.Error(t, err)
		assert.False(t, credited)
		assert.Contains(t, err.Error(), "failed to execute commission transaction")
		mockClient.AssertExpectations(t)
	})
}
