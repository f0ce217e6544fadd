package deletion

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cyp0633/caldelete/server/storage"
)

// PreconditionChecker evaluates If-Schedule-Tag-Match.
type PreconditionChecker struct {
	// ScheduleTagCompatibility mirrors the server's schedule-tag compatibility
	// mode. Without a header there is nothing to check either way. If-Match is
	// not covered here; callers evaluate it with CheckETag before Run.
	ScheduleTagCompatibility bool
	Logger                   *slog.Logger
}

// Check fails with 412 Precondition Failed when header is set and res does
// not exist or carries a different schedule tag. Internal requests are never
// checked.
func (p PreconditionChecker) Check(ctx context.Context, res storage.Resource, header string, internal bool) error {
	if internal {
		return nil
	}
	if header == "" {
		return nil
	}

	exists, err := res.Exists(ctx)
	if err != nil {
		return err
	}
	var tag string
	matched := false
	if exists {
		var ok bool
		tag, ok, err = res.ScheduleTag(ctx)
		if err != nil {
			return err
		}
		matched = ok && tag == header
	}
	if !matched {
		if p.Logger != nil {
			p.Logger.Debug("If-Schedule-Tag-Match mismatch",
				"uri", res.URI(),
				"header", header,
				"schedule_tag", tag)
		}
		return scheduleTagMismatch(res.URI())
	}
	return nil
}

// CheckETag evaluates an If-Match header against res. It fails with 412
// Precondition Failed when res does not exist or none of the listed tags is
// its current entity tag. "*" matches any existing resource; weak tags never
// match. An empty header always passes.
func CheckETag(ctx context.Context, res storage.Resource, header string) error {
	if header == "" {
		return nil
	}
	exists, err := res.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return etagMismatch(res.URI())
	}
	etag, ok, err := res.ETag(ctx)
	if err != nil {
		return err
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || (ok && candidate == etag && !strings.HasPrefix(candidate, "W/")) {
			return nil
		}
	}
	return etagMismatch(res.URI())
}
