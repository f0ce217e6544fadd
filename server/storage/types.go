package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ProductID is the PRODID stamped on calendars the server writes.
const ProductID = "-//caldelete//Go Calendar//EN"

var (
	// ErrNotFound is returned when a requested resource doesn't exist
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidInput is returned when the input parameters are invalid
	ErrInvalidInput = errors.New("invalid input parameters")
	// ErrPermissionDenied is returned when the operation is not allowed
	ErrPermissionDenied = errors.New("permission denied")
	// ErrConflict is returned when there's a conflict with an existing resource
	ErrConflict = errors.New("resource conflict")
	// ErrStorageUnavailable is returned when the storage backend is unavailable
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// PartialDeleteError is returned by Store.Delete when a recursive delete removed
// some members of a collection but not others. Failures is keyed by member URI.
type PartialDeleteError struct {
	Failures map[string]error
}

func (e *PartialDeleteError) Error() string {
	uris := make([]string, 0, len(e.Failures))
	for uri := range e.Failures {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return fmt.Sprintf("partial delete: %d member(s) failed: %s", len(uris), strings.Join(uris, ", "))
}

// Kind is the structural kind of a stored resource.
// This is distinct from the WebDAV prop "resourcetype".
type Kind int

const (
	KindResource Kind = iota
	KindCollection
	KindCalendarCollection
	KindCalendarObject
	KindAddressBookCollection
	KindAddressBookObject
)

// String provides a human-readable representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindResource:
		return "Resource"
	case KindCollection:
		return "Collection"
	case KindCalendarCollection:
		return "CalendarCollection"
	case KindCalendarObject:
		return "CalendarObject"
	case KindAddressBookCollection:
		return "AddressBookCollection"
	case KindAddressBookObject:
		return "AddressBookObject"
	default:
		return "Unknown"
	}
}

// IsCollection reports whether resources of this kind can have children.
func (k Kind) IsCollection() bool {
	return k == KindCollection || k == KindCalendarCollection || k == KindAddressBookCollection
}

// IsSyncCollection reports whether the collection tracks child removals in a
// sync token and index.
func (k Kind) IsSyncCollection() bool {
	return k == KindCalendarCollection || k == KindAddressBookCollection
}

// Depth is the value of the WebDAV Depth header.
type Depth int

const (
	DepthZero Depth = iota
	DepthOne
	DepthInfinity
)

func (d Depth) String() string {
	switch d {
	case DepthZero:
		return "0"
	case DepthOne:
		return "1"
	case DepthInfinity:
		return "infinity"
	default:
		return "unknown"
	}
}

// ParseDepth parses a Depth header value. An empty value means infinity, which
// is what DELETE assumes when the header is absent.
func ParseDepth(value string) (Depth, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "0":
		return DepthZero, nil
	case "1":
		return DepthOne, nil
	case "", "infinity":
		return DepthInfinity, nil
	default:
		return DepthZero, fmt.Errorf("%w: depth %q", ErrInvalidInput, value)
	}
}
