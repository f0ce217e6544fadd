package server

import (
	"fmt"
	"path"
	"strings"
)

// URLConverter helps you define URL path convention. Leave this blank when creating handler defaults to DefaultURLConverter.
//
// However, there are some basic assumptions you should respect:
//
// A store URI must carry its owner as the first segment, like /<userid>/cal/<calendarid>/<objectid>.
// Access control relies on it.
//
// If you set prefix in the handler, you should consider initializing your URLConverter with the same prefix, like DefaultURLConverter does.
type URLConverter interface {
	// ParsePath parses a request path and returns the corresponding Resource.
	ParsePath(path string) (Resource, error)
	// EncodePath encodes a Resource back to its URL path representation.
	EncodePath(resource Resource) (string, error)
}

// Resource is a request target as the store addresses it.
type Resource struct {
	URI   string // store URI, always absolute and cleaned
	Owner string // first segment of URI; empty for the service root
}

// IsRoot reports whether r is the service root.
func (r Resource) IsRoot() bool {
	return r.URI == "/"
}

// DefaultURLConverter maps request paths onto store URIs one to one:
//
//   - Service Root: /
//   - Principal: /<userid>
//   - Calendar Home: /<userid>/cal
//   - Calendar: /<userid>/cal/<calendarid>
//   - Calendar Object: /<userid>/cal/<calendarid>/<objectid>
//   - Address Book Home: /<userid>/card
//   - Address Book: /<userid>/card/<addressbookid>
//   - Address Object: /<userid>/card/<addressbookid>/<objectid>
//
// Plain collections and resources may live anywhere below a principal.
// The Prefix field can be used to add a common prefix to all paths (e.g., "/caldav/")
type DefaultURLConverter struct {
	Prefix string
}

// ParsePath parses a path into a store URI. It handles paths with or without
// the configured prefix and refuses paths that climb above the root. The
// prefix only matches whole segments, so /caldavx is not below /caldav.
func (c *DefaultURLConverter) ParsePath(p string) (Resource, error) {
	rel := p
	prefix := strings.TrimSuffix(c.Prefix, "/")
	if p == prefix || strings.HasPrefix(p, prefix+"/") {
		rel = p[len(prefix):]
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return Resource{}, fmt.Errorf("invalid path %q: parent references are not allowed", p)
		}
	}

	uri := path.Clean("/" + rel)
	resource := Resource{URI: uri}
	if uri != "/" {
		resource.Owner = strings.SplitN(strings.TrimPrefix(uri, "/"), "/", 2)[0]
	}
	return resource, nil
}

// EncodePath adds the prefix to the store URI of resource.
func (c *DefaultURLConverter) EncodePath(resource Resource) (string, error) {
	if !strings.HasPrefix(resource.URI, "/") {
		return "", fmt.Errorf("invalid resource: URI %q is not absolute", resource.URI)
	}
	prefix := c.Prefix
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + strings.TrimPrefix(resource.URI, "/"), nil
}
