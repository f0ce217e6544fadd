package xml

import "github.com/beevik/etree"

// Namespace definitions for CalDAV, CardDAV and WebDAV
const (
	// DAV is the WebDAV namespace
	DAV = "DAV:"
	// CalDAV is the CalDAV namespace
	CalDAV = "urn:ietf:params:xml:ns:caldav"
	// CardDAV is the CardDAV namespace
	CardDAV = "urn:ietf:params:xml:ns:carddav"
	// CalendarServer is the Calendar Server namespace (used by some implementations)
	CalendarServer = "http://calendarserver.org/ns/"
)

var prefixes = []struct {
	prefix    string
	namespace string
}{
	{"D", DAV},
	{"C", CalDAV},
	{"CARD", CardDAV},
	{"CS", CalendarServer},
}

// AddNamespaces adds standard namespace declarations to the document root
func AddNamespaces(doc *etree.Document) {
	root := doc.Root()
	if root == nil {
		return
	}
	for _, p := range prefixes {
		root.CreateAttr("xmlns:"+p.prefix, p.namespace)
	}
}

// Prefix returns the prefix declared by AddNamespaces for a namespace URI, or
// "" for an unknown namespace.
func Prefix(namespace string) string {
	for _, p := range prefixes {
		if p.namespace == namespace {
			return p.prefix
		}
	}
	return ""
}

// Namespace resolves a declared prefix back to its namespace URI.
func Namespace(prefix string) string {
	for _, p := range prefixes {
		if p.prefix == prefix {
			return p.namespace
		}
	}
	return prefix
}
