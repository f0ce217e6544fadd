package davclient

import (
	"context"
	"fmt"

	"github.com/cyp0633/caldelete/internal/httpclient"
)

// PartialError reports an object delete that left members behind. It only
// happens when the URL turned out to be a collection.
type PartialError struct {
	Failures map[string]int
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("delete left %d member(s) behind", len(e.Failures))
}

func (c *davClient) DeleteObject(ctx context.Context, objectURL, etag, scheduleTag string) error {
	resp, err := c.httpClient.DoDELETE(ctx, objectURL, httpclient.DeleteOptions{
		ETag:        etag,
		ScheduleTag: scheduleTag,
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	if len(resp.Failures) > 0 {
		return &PartialError{Failures: resp.Failures}
	}
	return nil
}

func (c *davClient) DeleteCollection(ctx context.Context, collectionURL string) (map[string]int, error) {
	resp, err := c.httpClient.DoDELETE(ctx, collectionURL, httpclient.DeleteOptions{Depth: "infinity"})
	if err != nil {
		return nil, fmt.Errorf("failed to delete collection: %w", err)
	}
	return resp.Failures, nil
}
