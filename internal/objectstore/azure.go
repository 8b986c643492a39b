package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/rs/zerolog"
)

// AzureBlobConfig configures an Azure Blob Storage backend. The first usable
// authentication method wins: connection string, SAS token, shared key, then
// managed identity.
type AzureBlobConfig struct {
	ConnectionString   string
	AccountName        string
	AccountKey         string
	SASToken           string
	UseManagedIdentity bool
	ContainerName      string
	Endpoint           string // for Azurite
}

// AzureBlobBackend stores objects as block blobs in one container.
type AzureBlobBackend struct {
	client    *azblob.Client
	container string
	logger    zerolog.Logger
}

// NewAzureBlobBackend builds the client for cfg.
func NewAzureBlobBackend(cfg AzureBlobConfig, logger zerolog.Logger) (*AzureBlobBackend, error) {
	if cfg.ContainerName == "" {
		return nil, errors.New("azure container name is required")
	}
	log := logger.With().Str("component", "azblob-objectstore").Logger()

	endpoint := cfg.Endpoint
	if endpoint == "" && cfg.AccountName != "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName)
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		log.Info().Msg("Using connection string authentication for Azure Blob Storage")

	case cfg.AccountName != "" && cfg.SASToken != "":
		serviceURL := endpoint + "?" + strings.TrimPrefix(cfg.SASToken, "?")
		client, err = azblob.NewClientWithNoCredential(serviceURL, nil)
		log.Info().Msg("Using SAS token authentication for Azure Blob Storage")

	case cfg.AccountName != "" && cfg.AccountKey != "":
		cred, credErr := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
		log.Info().Msg("Using shared key authentication for Azure Blob Storage")

	case cfg.UseManagedIdentity && cfg.AccountName != "":
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("failed to create managed identity credential: %w", credErr)
		}
		client, err = azblob.NewClient(endpoint, cred, nil)
		log.Info().Msg("Using managed identity authentication for Azure Blob Storage")

	default:
		return nil, errors.New("no Azure authentication configured: set connection_string, account_name+account_key, account_name+sas_token or account_name+use_managed_identity")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
	}

	return &AzureBlobBackend{client: client, container: cfg.ContainerName, logger: log}, nil
}

// Ensure creates the container; an existing container is fine.
func (b *AzureBlobBackend) Ensure(ctx context.Context) error {
	_, err := b.client.CreateContainer(ctx, b.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("failed to create container %s: %w", b.container, err)
	}
	return nil
}

// Create uploads data with If-None-Match: *, so an existing blob is kept.
func (b *AzureBlobBackend) Create(ctx context.Context, path string, data []byte) error {
	opts := &azblob.UploadBufferOptions{
		AccessConditions: &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{
				IfNoneMatch: to.Ptr(azcore.ETagAny),
			},
		},
	}
	if _, err := b.client.UploadBuffer(ctx, b.container, path, data, opts); err != nil {
		if bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet) {
			return fmt.Errorf("%s: %w", path, ErrExists)
		}
		return fmt.Errorf("failed to write to Azure Blob Storage: %w", err)
	}
	return nil
}

func (b *AzureBlobBackend) Get(ctx context.Context, path string) ([]byte, error) {
	resp, err := b.client.DownloadStream(ctx, b.container, path, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read from Azure Blob Storage: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read Azure blob body: %w", err)
	}
	return data, nil
}

func (b *AzureBlobBackend) Delete(ctx context.Context, path string) error {
	_, err := b.client.DeleteBlob(ctx, b.container, path, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("failed to delete from Azure Blob Storage: %w", err)
	}
	return nil
}

func (b *AzureBlobBackend) Close() error {
	return nil
}

func (b *AzureBlobBackend) Type() string {
	return "azblob"
}
