package storage

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/rotisserie/eris"
)

// AzureStore reads and writes blobs in an Azure Storage account.
// Credentials come from the default Azure credential chain (managed identity, CLI login, env).
type AzureStore struct {
	client *azblob.Client
}

// NewAzureStore connects to https://<account>.blob.core.windows.net
func NewAzureStore(_ context.Context, accountName string) (*AzureStore, error) {
	if accountName == "" {
		return nil, eris.New("azure storage account name is required")
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, eris.Wrap(err, "failed to obtain azure credential")
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to create blob client for %s", serviceURL)
	}
	return &AzureStore{client: client}, nil
}

// URL returns the public address of a blob
func (s *AzureStore) URL(container, name string) string {
	return s.client.URL() + container + "/" + name
}

// Get downloads a blob
func (s *AzureStore) Get(ctx context.Context, container, name string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, container, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, eris.Wrapf(ErrNotFound, "%s/%s", container, name)
		}
		return nil, eris.Wrapf(err, "failed to download %s/%s", container, name)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s/%s", container, name)
	}
	return data, nil
}

// Put uploads a blob, overwriting any existing one
func (s *AzureStore) Put(ctx context.Context, container, name string, data []byte) error {
	if _, err := s.client.UploadBuffer(ctx, container, name, data, nil); err != nil {
		if bloberror.HasCode(err, bloberror.ContainerNotFound) {
			return eris.Wrapf(ErrNotFound, "container %s", container)
		}
		return eris.Wrapf(err, "failed to upload %s/%s", container, name)
	}
	return nil
}

// List pages through every blob in a container
func (s *AzureStore) List(ctx context.Context, container string) ([]BlobInfo, error) {
	var out []BlobInfo
	pager := s.client.NewListBlobsFlatPager(container, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			if bloberror.HasCode(err, bloberror.ContainerNotFound) {
				return nil, eris.Wrapf(ErrNotFound, "container %s", container)
			}
			return nil, eris.Wrapf(err, "failed to list container %s", container)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			info := BlobInfo{Name: *item.Name}
			if item.Properties != nil && item.Properties.ContentLength != nil {
				info.Size = *item.Properties.ContentLength
			}
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
