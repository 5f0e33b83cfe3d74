package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"mailgate/internal/conf"
	"mailgate/internal/models"
)

// DynamoAPI is the subset of the DynamoDB client used here.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore keeps users in one table keyed by "email" and flags in a
// second table keyed by "id" (user:messageId).
type DynamoStore struct {
	client     DynamoAPI
	usersTable string
	flagsTable string
}

func NewDynamoStore(ctx context.Context, usersTable, flagsTable string, cfg conf.AWSConfig) (*DynamoStore, error) {
	awsCfg, err := cfg.Load(ctx)
	if err != nil {
		return nil, err
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewDynamoStoreWithClient(client, usersTable, flagsTable), nil
}

func NewDynamoStoreWithClient(client DynamoAPI, usersTable, flagsTable string) *DynamoStore {
	return &DynamoStore{client: client, usersTable: usersTable, flagsTable: flagsTable}
}

func (d *DynamoStore) GetUser(ctx context.Context, email string) (*User, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.usersTable),
		Key: map[string]types.AttributeValue{
			"email": &types.AttributeValueMemberS{Value: NormalizeEmail(email)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%s: %w", email, ErrUserNotFound)
	}
	return userFromItem(out.Item), nil
}

func (d *DynamoStore) PutUser(ctx context.Context, user User) error {
	created := user.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.usersTable),
		Item: map[string]types.AttributeValue{
			"email":        &types.AttributeValueMemberS{Value: NormalizeEmail(user.Email)},
			"passwordHash": &types.AttributeValueMemberS{Value: user.PasswordHash},
			"createdAt":    &types.AttributeValueMemberS{Value: created.UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (d *DynamoStore) DeleteUser(ctx context.Context, email string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.usersTable),
		Key: map[string]types.AttributeValue{
			"email": &types.AttributeValueMemberS{Value: NormalizeEmail(email)},
		},
		ConditionExpression: aws.String("attribute_exists(email)"),
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("%s: %w", email, ErrUserNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func (d *DynamoStore) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	p := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{TableName: aws.String(d.usersTable)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list users: %w", err)
		}
		for _, item := range page.Items {
			users = append(users, *userFromItem(item))
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

func (d *DynamoStore) GetFlags(ctx context.Context, user, messageID string) (models.MessageFlags, bool, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.flagsTable),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: FlagKey(user, messageID)},
		},
	})
	if err != nil {
		return models.MessageFlags{}, false, fmt.Errorf("failed to get flags: %w", err)
	}
	if len(out.Item) == 0 {
		return models.MessageFlags{}, false, nil
	}

	f := models.MessageFlags{
		Seen:     boolAttr(out.Item, "seen"),
		Flagged:  boolAttr(out.Item, "flagged"),
		Answered: boolAttr(out.Item, "answered"),
	}
	f.UpdatedAt, _ = time.Parse(time.RFC3339Nano, stringAttr(out.Item, "updatedAt"))
	return f, true, nil
}

func (d *DynamoStore) PutFlags(ctx context.Context, user, messageID string, flags models.MessageFlags) error {
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.flagsTable),
		Item: map[string]types.AttributeValue{
			"id":        &types.AttributeValueMemberS{Value: FlagKey(user, messageID)},
			"seen":      &types.AttributeValueMemberBOOL{Value: flags.Seen},
			"flagged":   &types.AttributeValueMemberBOOL{Value: flags.Flagged},
			"answered":  &types.AttributeValueMemberBOOL{Value: flags.Answered},
			"updatedAt": &types.AttributeValueMemberS{Value: flags.UpdatedAt.UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to save flags: %w", err)
	}
	return nil
}

func (d *DynamoStore) Close() error {
	return nil
}

func userFromItem(item map[string]types.AttributeValue) *User {
	u := &User{
		Email:        stringAttr(item, "email"),
		PasswordHash: stringAttr(item, "passwordHash"),
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, stringAttr(item, "createdAt"))
	return u
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func boolAttr(item map[string]types.AttributeValue, name string) bool {
	if v, ok := item[name].(*types.AttributeValueMemberBOOL); ok {
		return v.Value
	}
	return false
}
