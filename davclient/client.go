package davclient

import (
	"context"

	"github.com/cyp0633/caldelete/internal/httpclient"
)

// DAVClient interface defines the CalDAV/CardDAV delete operations
type DAVClient interface {
	// DeleteObject deletes a calendar or address object. Empty tags send no
	// conditional headers.
	DeleteObject(ctx context.Context, objectURL, etag, scheduleTag string) error
	// DeleteCollection deletes a collection and everything below it. Members
	// that could not be deleted are returned with their status.
	DeleteCollection(ctx context.Context, collectionURL string) (map[string]int, error)
}

type davClient struct {
	httpClient httpclient.HttpClientWrapper
}

// NewDAVClient creates a new client
func NewDAVClient(httpClient httpclient.HttpClientWrapper) DAVClient {
	return &davClient{
		httpClient: httpClient,
	}
}
