package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"consignado-bot/internal/domain"
)

const (
	pkPrefixPhone = "PHONE#"
	skConv        = "CONV"
	skPrefixMsg   = "MSG#"
	msgTTL        = 180 * 24 * time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// *dynamodb.Client satisfies it.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoStore keeps conversations and messages in a single DynamoDB table
// partitioned by phone.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

func NewDynamo(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName, now: time.Now}, nil
}

func phonePK(phone string) string {
	return pkPrefixPhone + phone
}

// msgSK orders messages chronologically within a phone partition; the id
// keeps sort keys unique when two messages share a timestamp.
func msgSK(ts time.Time, id string) string {
	return skPrefixMsg + ts.UTC().Format(time.RFC3339Nano) + "#" + id
}

func (c *DynamoStore) GetConversation(ctx context.Context, phone string) (domain.Conversation, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: phonePK(phone)},
			"SK": &types.AttributeValueMemberS{Value: skConv},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Conversation{}, false, fmt.Errorf("repository: GetConversation get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Conversation{}, false, nil
	}
	conv, err := itemToConversation(out.Item)
	if err != nil {
		return domain.Conversation{}, false, fmt.Errorf("repository: GetConversation decode: %w", err)
	}
	return conv, true, nil
}

// SaveConversation replaces the conversation record. Last write wins.
func (c *DynamoStore) SaveConversation(ctx context.Context, conv domain.Conversation) error {
	if strings.TrimSpace(conv.Phone) == "" {
		return errors.New("repository: SaveConversation: phone is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      conversationItem(conv),
	})
	if err != nil {
		return fmt.Errorf("repository: SaveConversation: %w", err)
	}
	return nil
}

// AppendMessage writes a message record; existing records are never overwritten.
func (c *DynamoStore) AppendMessage(ctx context.Context, msg domain.Message) error {
	if msg.ID == "" || msg.Phone == "" {
		return errors.New("repository: AppendMessage: id and phone are required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                messageItem(msg, c.now().Add(msgTTL).Unix()),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: AppendMessage: %w", err)
	}
	return nil
}

// ListMessages queries the newest MSG# items for phone and returns them in
// chronological order.
func (c *DynamoStore) ListMessages(ctx context.Context, phone string, limit int) ([]domain.Message, error) {
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: phonePK(phone)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(normalizeLimit(limit))),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListMessages query: %w", err)
	}

	msgs := make([]domain.Message, 0, len(out.Items))
	for _, item := range out.Items {
		msg, err := itemToMessage(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListMessages unmarshal: %w", err)
		}
		msgs = append(msgs, msg)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ListConversations scans for CONV records. Meant for the low-volume admin view.
func (c *DynamoStore) ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error) {
	var convs []domain.Conversation
	err := c.scanAll(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(c.tableName),
		FilterExpression: aws.String("SK = :conv"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":conv": &types.AttributeValueMemberS{Value: skConv},
		},
	}, func(item map[string]types.AttributeValue) error {
		conv, err := itemToConversation(item)
		if err != nil {
			return err
		}
		convs = append(convs, conv)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListConversations: %w", err)
	}
	sortByActivity(convs)
	if n := normalizeLimit(limit); len(convs) > n {
		convs = convs[:n]
	}
	return convs, nil
}

// Stats counts records with a key-only scan of the table.
func (c *DynamoStore) Stats(ctx context.Context) (domain.Stats, error) {
	var s domain.Stats
	err := c.scanAll(ctx, &dynamodb.ScanInput{
		TableName:                aws.String(c.tableName),
		ProjectionExpression:     aws.String("SK, #state"),
		ExpressionAttributeNames: map[string]string{"#state": "state"},
	}, func(item map[string]types.AttributeValue) error {
		sk, err := strAttr(item, "SK")
		if err != nil {
			return err
		}
		switch {
		case sk == skConv:
			s.Conversations++
			if state, _ := strAttr(item, "state"); domain.State(state) == domain.StateCPFValidated {
				s.ValidatedConversations++
			}
		case strings.HasPrefix(sk, skPrefixMsg):
			s.Messages++
		}
		return nil
	})
	if err != nil {
		return domain.Stats{}, fmt.Errorf("repository: Stats: %w", err)
	}
	return s, nil
}

// Ping checks that the table is reachable.
func (c *DynamoStore) Ping(ctx context.Context) error {
	_, err := c.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(c.tableName)})
	if err != nil {
		return fmt.Errorf("repository: Ping: %w", err)
	}
	return nil
}

func (c *DynamoStore) scanAll(ctx context.Context, in *dynamodb.ScanInput, fn func(map[string]types.AttributeValue) error) error {
	for {
		out, err := c.api.Scan(ctx, in)
		if err != nil {
			return err
		}
		for _, item := range out.Items {
			if err := fn(item); err != nil {
				return err
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func itemToConversation(item map[string]types.AttributeValue) (domain.Conversation, error) {
	phone, err := strAttr(item, "phone")
	if err != nil {
		return domain.Conversation{}, err
	}
	state, err := strAttr(item, "state")
	if err != nil {
		return domain.Conversation{}, err
	}
	cpf, _ := strAttr(item, "cpf") // allow empty
	created, err := timeAttr(item, "createdAt")
	if err != nil {
		return domain.Conversation{}, err
	}
	last, err := timeAttr(item, "lastActivity")
	if err != nil {
		return domain.Conversation{}, err
	}
	return domain.Conversation{
		Phone:        phone,
		State:        domain.State(state),
		CPF:          cpf,
		CreatedAt:    created,
		LastActivity: last,
	}, nil
}

func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Message{}, err
	}
	phone, err := strAttr(item, "phone")
	if err != nil {
		return domain.Message{}, err
	}
	body, err := strAttr(item, "body")
	if err != nil {
		return domain.Message{}, err
	}
	dir, err := strAttr(item, "direction")
	if err != nil {
		return domain.Message{}, err
	}
	gatewayID, _ := strAttr(item, "gatewayId") // incoming messages have none
	ts, err := timeAttr(item, "timestamp")
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:        id,
		Phone:     phone,
		Body:      body,
		Direction: domain.Direction(dir),
		GatewayID: gatewayID,
		Timestamp: ts,
	}, nil
}

func conversationItem(conv domain.Conversation) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: phonePK(conv.Phone)},
		"SK":           &types.AttributeValueMemberS{Value: skConv},
		"phone":        &types.AttributeValueMemberS{Value: conv.Phone},
		"state":        &types.AttributeValueMemberS{Value: string(conv.State)},
		"cpf":          &types.AttributeValueMemberS{Value: conv.CPF},
		"createdAt":    &types.AttributeValueMemberS{Value: conv.CreatedAt.UTC().Format(time.RFC3339Nano)},
		"lastActivity": &types.AttributeValueMemberS{Value: conv.LastActivity.UTC().Format(time.RFC3339Nano)},
	}
}

func messageItem(msg domain.Message, ttl int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: phonePK(msg.Phone)},
		"SK":        &types.AttributeValueMemberS{Value: msgSK(msg.Timestamp, msg.ID)},
		"id":        &types.AttributeValueMemberS{Value: msg.ID},
		"phone":     &types.AttributeValueMemberS{Value: msg.Phone},
		"body":      &types.AttributeValueMemberS{Value: msg.Body},
		"direction": &types.AttributeValueMemberS{Value: string(msg.Direction)},
		"gatewayId": &types.AttributeValueMemberS{Value: msg.GatewayID},
		"timestamp": &types.AttributeValueMemberS{Value: msg.Timestamp.UTC().Format(time.RFC3339Nano)},
		"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
	}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return t.UTC(), nil
}
