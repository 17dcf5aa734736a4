package storage

import (
	"context"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
)

// AzureBucket implements Bucket for Azure Blob Storage.
type AzureBucket struct {
	client    *azblob.Client
	container string
	prefix    string
}

// AzureConfig holds Azure Blob Storage configuration.
// SAS URLs require a shared key, so either AccountKey or a
// ConnectionString carrying one must be set.
type AzureConfig struct {
	Container        string
	AccountName      string
	AccountKey       string
	ConnectionString string
	Prefix           string
}

// NewAzureBucket creates a new Azure Blob Storage client.
func NewAzureBucket(cfg AzureConfig) (*AzureBucket, error) {
	var (
		client *azblob.Client
		err    error
	)

	if cfg.ConnectionString != "" {
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	} else {
		url := "https://" + cfg.AccountName + ".blob.core.windows.net/"
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err == nil {
			client, err = azblob.NewClientWithSharedKeyCredential(url, cred, nil)
		}
	}
	if err != nil {
		return nil, err
	}

	return &AzureBucket{
		client:    client,
		container: cfg.Container,
		prefix:    cfg.Prefix,
	}, nil
}

// Upload implements Bucket.
func (b *AzureBucket) Upload(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath) //#nosec G304 -- localPath is a workspace file
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = b.client.UploadFile(ctx, b.container, joinPrefix(b.prefix, key), f, nil)
	return err
}

// Exists implements Bucket.
func (b *AzureBucket) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.blobClient(key).GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PresignGet implements Bucket with a read-only SAS URL.
func (b *AzureBucket) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	return b.blobClient(key).GetSASURL(sas.BlobPermissions{Read: true}, time.Now().UTC().Add(expiry), nil)
}

// List implements Bucket.
func (b *AzureBucket) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	full := joinPrefix(b.prefix, prefix)
	pager := b.client.NewListBlobsFlatPager(b.container, &azblob.ListBlobsFlatOptions{
		Prefix: &full,
	})

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			keys = append(keys, trimPrefix(b.prefix, *item.Name))
		}
	}

	return keys, nil
}

func (b *AzureBucket) blobClient(key string) *blob.Client {
	return b.client.ServiceClient().
		NewContainerClient(b.container).
		NewBlobClient(joinPrefix(b.prefix, key))
}
