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

// GetWallet retrieves a user's wallet from DynamoDB by their user ID.
func (s *Store) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal wallet user ID: %w", err)
	}

	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.Tables.Wallets),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet from DynamoDB: %w", err)
	}

	if result.Item == nil {
		return nil, fmt.Errorf("wallet for user ID %s: %w", userID, storage.ErrNotFound)
	}

	var wallet models.Wallet
	if err := attributevalue.UnmarshalMap(result.Item, &wallet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet: %w", err)
	}

	return &wallet, nil
}

// CreditCommission writes the commission entry and credits the affiliate's wallet atomically.
// The entry's primary key is the transaction ID, so a second credit for the same
// transaction fails its condition and nothing is written.
func (s *Store) CreditCommission(ctx context.Context, entry *models.CommissionEntry) (bool, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	entryAV, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return false, fmt.Errorf("failed to marshal commission entry: %w", err)
	}
	amountAV, err := attributevalue.Marshal(entry.Amount)
	if err != nil {
		return false, fmt.Errorf("failed to marshal commission amount: %w", err)
	}
	nowAV, err := attributevalue.Marshal(entry.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to marshal timestamp for wallet update: %w", err)
	}

	input := &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				// Operation 1: Record the commission, at most once per transaction.
				Put: &types.Put{
					TableName:           aws.String(s.Tables.Commissions),
					Item:                entryAV,
					ConditionExpression: aws.String("attribute_not_exists(transaction_id)"),
				},
			},
			{
				// Operation 2: Credit the affiliate's wallet, creating it on first credit.
				Update: &types.Update{
					TableName: aws.String(s.Tables.Wallets),
					Key: map[string]types.AttributeValue{
						"user_id": &types.AttributeValueMemberS{Value: entry.AffiliateId},
					},
					UpdateExpression: aws.String("ADD balance :amount, total_earnings :amount SET updated_at = :now"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":amount": amountAV,
						":now":    nowAV,
					},
				},
			},
		},
	}

	if _, err := s.Client.TransactWriteItems(ctx, input); err != nil {
		if cancelledOnCondition(err, 0) {
			return false, nil
		}
		return false, fmt.Errorf("failed to execute commission transaction: %w", err)
	}

	return true, nil
}

// GetCommission retrieves the commission entry of a transaction.
func (s *Store) GetCommission(ctx context.Context, txID string) (*models.CommissionEntry, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"transaction_id": txID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal commission key: %w", err)
	}

	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.Tables.Commissions),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get commission from DynamoDB: %w", err)
	}

	if result.Item == nil {
		return nil, fmt.Errorf("commission for transaction %s: %w", txID, storage.ErrNotFound)
	}

	var entry models.CommissionEntry
	if err := attributevalue.UnmarshalMap(result.Item, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal commission: %w", err)
	}

	return &entry, nil
}
