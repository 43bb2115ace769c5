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
	"github.com/google/uuid"
)

// CreateTransaction records a new transaction.
func (s *Store) CreateTransaction(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	// Complete the transaction object with server-side details.
	now := time.Now().UTC()
	if tx.Id == "" {
		tx.Id = uuid.New().String()
	}
	if tx.Status == "" {
		tx.Status = models.PENDING
	}
	tx.CreatedAt = now
	tx.UpdatedAt = now

	txAV, err := attributevalue.MarshalMap(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction: %w", err)
	}

	_, err = s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.Tables.Transactions),
		Item:                txAV,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, fmt.Errorf("transaction %s: %w", tx.Id, storage.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to put transaction in DynamoDB: %w", err)
	}

	return tx, nil
}

// GetTransaction retrieves a transaction from DynamoDB by its ID.
func (s *Store) GetTransaction(ctx context.Context, txID string) (*models.Transaction, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"id": txID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction ID: %w", err)
	}

	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.Tables.Transactions),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction from DynamoDB: %w", err)
	}

	if result.Item == nil {
		return nil, fmt.Errorf("transaction with ID %s: %w", txID, storage.ErrNotFound)
	}

	var tx models.Transaction
	if err := attributevalue.UnmarshalMap(result.Item, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}

	return &tx, nil
}

// ListUnsettledTransactions finds paid transactions whose settlement never completed.
func (s *Store) ListUnsettledTransactions(ctx context.Context, olderThan time.Duration) ([]models.Transaction, error) {
	cutoffAV, err := attributevalue.Marshal(time.Now().UTC().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cutoff time: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.Tables.Transactions),
		IndexName:              aws.String(statusUpdatedAtIndex),
		KeyConditionExpression: aws.String("#status = :status AND updated_at < :cutoff"),
		FilterExpression:       aws.String("attribute_not_exists(settled_at)"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(models.SUCCESS)},
			":cutoff": cutoffAV,
		},
	}

	var transactions []models.Transaction
	if err := s.queryAll(ctx, input, &transactions); err != nil {
		return nil, fmt.Errorf("failed to query for unsettled transactions: %w", err)
	}

	return transactions, nil
}

// ListTransactionsByUserID retrieves all transactions for a specific user.
func (s *Store) ListTransactionsByUserID(ctx context.Context, userID string) ([]models.Transaction, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.Tables.Transactions),
		IndexName:              aws.String(userIDIndex),
		KeyConditionExpression: aws.String("user_id = :userID"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":userID": &types.AttributeValueMemberS{Value: userID},
		},
	}

	var transactions []models.Transaction
	if err := s.queryAll(ctx, input, &transactions); err != nil {
		return nil, fmt.Errorf("failed to query for transactions by user ID: %w", err)
	}

	return transactions, nil
}

// TransitionTransaction moves a transaction forward if its current status is one of from.
func (s *Store) TransitionTransaction(ctx context.Context, txID string, from []models.TransactionStatus, to models.TransactionStatus, at time.Time) (*models.Transaction, error) {
	if len(from) == 0 {
		return nil, fmt.Errorf("no source status given for transaction %s", txID)
	}

	nowAV, err := attributevalue.Marshal(at.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal timestamp for status update: %w", err)
	}

	values := map[string]types.AttributeValue{
		":to":  &types.AttributeValueMemberS{Value: string(to)},
		":now": nowAV,
	}
	placeholders := ""
	for i, status := range from {
		name := fmt.Sprintf(":from%d", i)
		values[name] = &types.AttributeValueMemberS{Value: string(status)}
		if i > 0 {
			placeholders += ", "
		}
		placeholders += name
	}

	update := "SET #status = :to, updated_at = :now"
	if to == models.SUCCESS {
		update += ", paid_at = if_not_exists(paid_at, :now)"
	}

	result, err := s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.Tables.Transactions),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: txID},
		},
		UpdateExpression:    aws.String(update),
		ConditionExpression: aws.String(fmt.Sprintf("#status IN (%s)", placeholders)),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, fmt.Errorf("transaction %s to %s: %w", txID, to, storage.ErrInvalidTransition)
		}
		return nil, fmt.Errorf("failed to update transaction status to %s: %w", to, err)
	}

	var tx models.Transaction
	if err := attributevalue.UnmarshalMap(result.Attributes, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}

	return &tx, nil
}

// MarkTransactionSettled stamps settled_at once; later calls keep the first timestamp.
func (s *Store) MarkTransactionSettled(ctx context.Context, txID string, at time.Time) error {
	nowAV, err := attributevalue.Marshal(at.UTC())
	if err != nil {
		return fmt.Errorf("failed to marshal timestamp for settlement: %w", err)
	}

	_, err = s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.Tables.Transactions),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: txID},
		},
		UpdateExpression:    aws.String("SET settled_at = if_not_exists(settled_at, :now), updated_at = :now"),
		ConditionExpression: aws.String("#status = :success"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":success": &types.AttributeValueMemberS{Value: string(models.SUCCESS)},
			":now":     nowAV,
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("transaction %s is no longer SUCCESS: %w", txID, storage.ErrInvalidTransition)
		}
		return fmt.Errorf("failed to mark transaction settled: %w", err)
	}

	return nil
}

// queryAll follows LastEvaluatedKey until the query is exhausted and unmarshals every item into out.
func (s *Store) queryAll(ctx context.Context, input *dynamodb.QueryInput, out interface{}) error {
	var items []map[string]types.AttributeValue
	for {
		result, err := s.Client.Query(ctx, input)
		if err != nil {
			return err
		}
		items = append(items, result.Items...)
		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return attributevalue.UnmarshalListOfMaps(items, out)
}

// scanAll is the Scan counterpart of queryAll.
func (s *Store) scanAll(ctx context.Context, input *dynamodb.ScanInput, out interface{}) error {
	var items []map[string]types.AttributeValue
	for {
		result, err := s.Client.Scan(ctx, input)
		if err != nil {
			return err
		}
		items = append(items, result.Items...)
		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return attributevalue.UnmarshalListOfMaps(items, out)
}
