package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/config"
)

// TableAdmin is the slice of the DynamoDB client used to create tables.
type TableAdmin interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// env resolves configuration and clients lazily so that commands which need
// neither (hash-password) work without AWS credentials.
type env struct {
	storage func() (*config.Storage, error)
	clients func(ctx context.Context, s *config.Storage) (aws.DynamoDBAPI, TableAdmin, error)
	logger  *zap.Logger
}

func defaultEnv() *env {
	return &env{
		storage: config.LoadStorage,
		clients: func(ctx context.Context, s *config.Storage) (aws.DynamoDBAPI, TableAdmin, error) {
			c, err := aws.NewAWSClients(ctx, s.AWSRegion, s.AWSEndpoint)
			if err != nil {
				return nil, nil, fmt.Errorf("init aws clients: %w", err)
			}
			return c.DynamoDB, c.Raw, nil
		},
		logger: zap.NewNop(),
	}
}
