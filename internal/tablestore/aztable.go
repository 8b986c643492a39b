package tablestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/basekick-labs/tablebench/pkg/models"
	"github.com/rs/zerolog"
)

// MaxAzureTransactionSize is the entity limit of one entity group transaction.
const MaxAzureTransactionSize = 100

// AzureTableConfig configures the Azure Table Storage client. The first
// usable authentication method wins: connection string, SAS token, shared
// key, then managed identity.
type AzureTableConfig struct {
	ConnectionString   string
	AccountName        string
	AccountKey         string
	SASToken           string
	UseManagedIdentity bool
	Endpoint           string // for Azurite
}

// AzureTableStore runs the benchmark against Azure Table Storage. Each batch
// is one entity group transaction.
type AzureTableStore struct {
	client *aztables.Client
	table  string
	logger zerolog.Logger
}

// OpenAzureTable builds a client for table.
func OpenAzureTable(cfg AzureTableConfig, table string, logger zerolog.Logger) (*AzureTableStore, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	log := logger.With().Str("component", "aztable-tablestore").Logger()

	endpoint := cfg.Endpoint
	if endpoint == "" && cfg.AccountName != "" {
		endpoint = fmt.Sprintf("https://%s.table.core.windows.net", cfg.AccountName)
	}

	var (
		svc *aztables.ServiceClient
		err error
	)
	switch {
	case cfg.ConnectionString != "":
		svc, err = aztables.NewServiceClientFromConnectionString(cfg.ConnectionString, nil)
		log.Info().Msg("Using connection string authentication for Azure Table Storage")

	case cfg.AccountName != "" && cfg.SASToken != "":
		svc, err = aztables.NewServiceClientWithNoCredential(endpoint+"?"+strings.TrimPrefix(cfg.SASToken, "?"), nil)
		log.Info().Msg("Using SAS token authentication for Azure Table Storage")

	case cfg.AccountName != "" && cfg.AccountKey != "":
		cred, credErr := aztables.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", credErr)
		}
		svc, err = aztables.NewServiceClientWithSharedKey(endpoint, cred, nil)
		log.Info().Msg("Using shared key authentication for Azure Table Storage")

	case cfg.UseManagedIdentity && cfg.AccountName != "":
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("failed to create managed identity credential: %w", credErr)
		}
		svc, err = aztables.NewServiceClient(endpoint, cred, nil)
		log.Info().Msg("Using managed identity authentication for Azure Table Storage")

	default:
		return nil, errors.New("no Azure authentication configured: set connection_string, account_name+account_key, account_name+sas_token or account_name+use_managed_identity")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure table client: %w", err)
	}

	return &AzureTableStore{
		client: svc.NewClient(table),
		table:  table,
		logger: log,
	}, nil
}

func (s *AzureTableStore) CreateTableIfAbsent(ctx context.Context) error {
	_, err := s.client.CreateTable(ctx, nil)
	if err != nil {
		if hasStatus(err, http.StatusConflict) {
			s.logger.Info().Str("table", s.table).Msg("Table already exists")
			return nil
		}
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	s.logger.Info().Str("table", s.table).Msg("Created table")
	return nil
}

// InsertBatch submits the batch as one transaction of add actions.
func (s *AzureTableStore) InsertBatch(ctx context.Context, partitionKey string, entities []models.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	if len(entities) > MaxAzureTransactionSize {
		return fmt.Errorf("batch of %d exceeds the %d entity transaction limit", len(entities), MaxAzureTransactionSize)
	}
	if err := checkBatch(partitionKey, entities); err != nil {
		return err
	}

	actions := make([]aztables.TransactionAction, len(entities))
	for i, e := range entities {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode entity %s: %w", e.Key(), err)
		}
		actions[i] = aztables.TransactionAction{
			ActionType: aztables.TransactionTypeAdd,
			Entity:     data,
		}
	}

	if _, err := s.client.SubmitTransaction(ctx, actions, nil); err != nil {
		return fmt.Errorf("failed to submit transaction for partition %s: %w", partitionKey, err)
	}
	return nil
}

func (s *AzureTableStore) GetByKey(ctx context.Context, partitionKey, rowKey string) (models.Entity, bool, error) {
	resp, err := s.client.GetEntity(ctx, partitionKey, rowKey, nil)
	if err != nil {
		if hasStatus(err, http.StatusNotFound) {
			return models.Entity{}, false, nil
		}
		return models.Entity{}, false, fmt.Errorf("failed to read %s/%s: %w", partitionKey, rowKey, err)
	}

	var e models.Entity
	if err := json.Unmarshal(resp.Value, &e); err != nil {
		return models.Entity{}, false, fmt.Errorf("failed to decode entity %s/%s: %w", partitionKey, rowKey, err)
	}
	return e, true, nil
}

func (s *AzureTableStore) Close() error {
	return nil
}

func (s *AzureTableStore) Type() string {
	return "aztable"
}

func hasStatus(err error, status int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == status
}
