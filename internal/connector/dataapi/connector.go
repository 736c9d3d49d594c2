package dataapi

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata"
	"github.com/aws/smithy-go"

	"github.com/deskdata/deskdata/internal/connector"
	"github.com/deskdata/deskdata/internal/model"
)

// StatementAPI is the subset of the rdsdata client used here.
type StatementAPI interface {
	ExecuteStatement(ctx context.Context, params *rdsdata.ExecuteStatementInput, optFns ...func(*rdsdata.Options)) (*rdsdata.ExecuteStatementOutput, error)
}

// ClientFactory builds a Data API client for one region.
type ClientFactory func(ctx context.Context, region string) (StatementAPI, error)

// SDKClientFactory loads the default AWS credential chain for each region.
func SDKClientFactory(opts ...func(*awsconfig.LoadOptions) error) ClientFactory {
	return func(ctx context.Context, region string) (StatementAPI, error) {
		loadOpts := append([]func(*awsconfig.LoadOptions) error{}, opts...)
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
		cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config for %s: %w", region, err)
		}
		return rdsdata.NewFromConfig(cfg), nil
	}
}

// Clients memoizes one SDK client per region. Tenants in the same region
// share the client; their resource and secret ARNs travel per request.
type Clients struct {
	mu        sync.Mutex
	byRegion  map[string]StatementAPI
	newClient ClientFactory
}

// NewClients creates an empty per-region client cache.
func NewClients(newClient ClientFactory) *Clients {
	return &Clients{
		byRegion:  make(map[string]StatementAPI),
		newClient: newClient,
	}
}

// ForRegion returns the client for region, creating it on first use.
func (c *Clients) ForRegion(ctx context.Context, region string) (StatementAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if api, ok := c.byRegion[region]; ok {
		return api, nil
	}
	api, err := c.newClient(ctx, region)
	if err != nil {
		return nil, err
	}
	c.byRegion[region] = api
	return api, nil
}

// Connector implements connector.Connector for a cluster behind the RDS
// Data API. Ordinal placeholders are rewritten to named ones per statement.
type Connector struct {
	api StatementAPI
	cfg model.RemoteDataAPI
}

// New binds api to one cluster, secret and database.
func New(api StatementAPI, cfg model.RemoteDataAPI) *Connector {
	return &Connector{api: api, cfg: cfg}
}

// Factory returns a connector.Factory drawing SDK clients from clients.
func Factory(clients *Clients) connector.Factory {
	return func(ctx context.Context, cfg model.DatabaseConfig) (connector.Connector, error) {
		c, ok := cfg.(model.RemoteDataAPI)
		if !ok {
			return nil, fmt.Errorf("dataapi: unexpected config %T", cfg)
		}
		api, err := clients.ForRegion(ctx, c.Region)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", connector.ErrConnection, err)
		}
		return New(api, c), nil
	}
}

// Query rewrites sql, encodes params and executes one statement.
func (c *Connector) Query(ctx context.Context, sql string, params []interface{}) (*model.QueryResult, error) {
	encoded, err := EncodeParams(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", connector.ErrStatement, err)
	}

	out, err := c.api.ExecuteStatement(ctx, &rdsdata.ExecuteStatementInput{
		ResourceArn:           aws.String(c.cfg.ResourceARN),
		SecretArn:             aws.String(c.cfg.SecretARN),
		Database:              aws.String(c.cfg.Database),
		Sql:                   aws.String(RewritePlaceholders(sql)),
		Parameters:            encoded,
		IncludeResultMetadata: true,
	})
	if err != nil {
		return nil, classify(err)
	}

	return model.NewQueryResult(DecodeRecords(out.ColumnMetadata, out.Records)), nil
}

// Ping runs a trivial statement; the Data API has no dedicated health call.
func (c *Connector) Ping(ctx context.Context) error {
	_, err := c.Query(ctx, "SELECT 1", nil)
	return err
}

// Close is a no-op: the SDK client is shared per region.
func (c *Connector) Close() error { return nil }

func (c *Connector) Provider() model.Provider { return model.ProviderRemoteDataAPI }

// Error codes the service returns for problems with the statement itself.
// Anything else is treated as a failure to reach the cluster.
var statementErrorCodes = map[string]bool{
	"BadRequestException":          true,
	"DatabaseErrorException":       true,
	"StatementTimeoutException":    true,
	"UnsupportedResultException":   true,
	"TransactionNotFoundException": true,
}

func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && statementErrorCodes[apiErr.ErrorCode()] {
		return fmt.Errorf("%w: %s: %s", connector.ErrStatement, apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", connector.ErrStatement, err)
	}
	return fmt.Errorf("%w: %v", connector.ErrConnection, err)
}
