package azure

import (
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/sirupsen/logrus"

	config "github.com/avatarctic/cloud-storage-provider/configs"
	"github.com/avatarctic/cloud-storage-provider/internal/core/ports"
)

// NewClientFromSettings builds a client for one configured instance. Connection strings carry
// their own credentials; service URLs authenticate with the default Azure credential chain.
func NewClientFromSettings(settings *config.StorageInstanceSettings, logger *logrus.Logger) (ports.CloudStorageClient, error) {
	opts := &azblob.ClientOptions{}
	if settings.Client.MaxRetries > 0 {
		opts.Retry.MaxRetries = int32(settings.Client.MaxRetries)
	}
	if settings.Client.TryTimeout > 0 {
		opts.Retry.TryTimeout = settings.Client.TryTimeout
	}

	switch {
	case settings.ConnectionString != "":
		account, err := AccountNameFromConnectionString(settings.ConnectionString)
		if err != nil {
			return nil, fmt.Errorf("storage instance %q: %w", settings.Name, err)
		}
		client, err := azblob.NewClientFromConnectionString(settings.ConnectionString, opts)
		if err != nil {
			return nil, fmt.Errorf("storage instance %q: failed to create client: %w", settings.Name, err)
		}
		return NewBlobStorageClient(client, account, logger), nil

	case settings.ServiceURL != "":
		account, err := AccountNameFromServiceURL(settings.ServiceURL)
		if err != nil {
			return nil, fmt.Errorf("storage instance %q: %w", settings.Name, err)
		}
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("storage instance %q: failed to obtain credential: %w", settings.Name, err)
		}
		client, err := azblob.NewClient(settings.ServiceURL, cred, opts)
		if err != nil {
			return nil, fmt.Errorf("storage instance %q: failed to create client: %w", settings.Name, err)
		}
		return NewBlobStorageClient(client, account, logger), nil
	}
	return nil, fmt.Errorf("storage instance %q: no connection configured", settings.Name)
}
