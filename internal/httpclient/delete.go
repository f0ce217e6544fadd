package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/beevik/etree"
	"github.com/cyp0633/caldelete/internal/xml"
)

// maxBodySize bounds the response bodies the client reads.
const maxBodySize = 1 << 20

// DeleteOptions are the conditional headers of a DELETE.
type DeleteOptions struct {
	// Depth is sent verbatim when set. Servers treat a missing header as infinity.
	Depth string
	// ETag is sent as If-Match.
	ETag string
	// ScheduleTag is sent as If-Schedule-Tag-Match.
	ScheduleTag string
}

// DeleteResponse is a successful or partially successful DELETE.
type DeleteResponse struct {
	Status int
	// Failures maps the href of each member that could not be deleted to its
	// status. Only set on 207 Multi-Status.
	Failures map[string]int
}

// StatusError is a DELETE the server refused as a whole.
type StatusError struct {
	Status int
	// Condition is the precondition element of the DAV:error body, if any.
	Condition *xml.Error
	Message   string
}

func (e *StatusError) Error() string {
	if e.Condition != nil {
		return fmt.Sprintf("DELETE request failed with status %d (%s)", e.Status, e.Condition.Tag)
	}
	if e.Message != "" {
		return fmt.Sprintf("DELETE request failed with status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("DELETE request failed with status %d", e.Status)
}

// DoDELETE sends a DELETE request. A 207 answer is returned with its failed
// members; any other non-2xx answer becomes a *StatusError.
func (c *httpClientWrapper) DoDELETE(ctx context.Context, urlStr string, opts DeleteOptions) (*DeleteResponse, error) {
	c.logger.Debug("starting DELETE request",
		"url", urlStr,
		"depth", opts.Depth,
		"etag", opts.ETag,
		"schedule_tag", opts.ScheduleTag)

	resolvedURL, err := c.resolveURL(urlStr)
	if err != nil {
		c.logger.Debug("failed to resolve URL", "url", urlStr, "error", err)
		return nil, fmt.Errorf("failed to resolve URL %q: %w", urlStr, err)
	}

	c.logger.Debug("resolved URL", "url", resolvedURL.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, resolvedURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create DELETE request: %w", err)
	}

	if opts.Depth != "" {
		req.Header.Set("Depth", opts.Depth)
	}
	if opts.ETag != "" {
		req.Header.Set("If-Match", opts.ETag)
	}
	if opts.ScheduleTag != "" {
		req.Header.Set("If-Schedule-Tag-Match", opts.ScheduleTag)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "error", err)
		return nil, fmt.Errorf("failed to send DELETE request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("received response", "status", resp.Status)

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		c.logger.Debug("DELETE request complete", "status", resp.Status)
		return &DeleteResponse{Status: resp.StatusCode}, nil
	case http.StatusMultiStatus:
		failures, err := parseMultistatus(resp.Body)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("DELETE request partially failed",
			"failed", len(failures))
		return &DeleteResponse{Status: resp.StatusCode, Failures: failures}, nil
	default:
		c.logger.Debug("unexpected status code",
			"status_code", resp.StatusCode,
			"status", resp.Status)
		return nil, parseError(resp)
	}
}

func parseMultistatus(body io.Reader) (map[string]int, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(io.LimitReader(body, maxBodySize)); err != nil {
		return nil, fmt.Errorf("failed to parse multistatus: %w", err)
	}
	ms := &xml.MultistatusResponse{}
	if err := ms.Parse(doc); err != nil {
		return nil, fmt.Errorf("failed to parse multistatus: %w", err)
	}

	failures := make(map[string]int, len(ms.Responses))
	for _, r := range ms.Responses {
		code, err := xml.ParseStatusLine(r.Status)
		if err != nil {
			return nil, fmt.Errorf("response for %s: %w", r.Href, err)
		}
		failures[r.Href] = code
	}
	return failures, nil
}

// parseError builds a StatusError from an error response. Bodies that are
// not a DAV:error document only contribute their text.
func parseError(resp *http.Response) error {
	statusErr := &StatusError{Status: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil || len(data) == 0 {
		return statusErr
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil || doc.Root() == nil || doc.Root().Tag != xml.TagError {
		statusErr.Message = strings.TrimSpace(string(data))
		return statusErr
	}
	root := doc.Root()
	if children := root.ChildElements(); len(children) > 0 {
		statusErr.Condition = &xml.Error{
			Namespace: xml.Namespace(children[0].Space),
			Tag:       children[0].Tag,
			Message:   children[0].Text(),
		}
	} else {
		statusErr.Message = strings.TrimSpace(root.Text())
	}
	return statusErr
}
