package xml

import (
	"fmt"
	"net/http"

	"github.com/beevik/etree"
)

// Common XML tag names used in DAV responses
const (
	TagMultistatus = "multistatus"
	TagResponse    = "response"
	TagHref        = "href"
	TagStatus      = "status"
	TagError       = "error"
)

// Error represents a WebDAV precondition/postcondition element inside DAV:error
type Error struct {
	Namespace string
	Tag       string
	Message   string
}

// ToElement converts an Error to a DAV:error element
func (e *Error) ToElement() *etree.Element {
	err := etree.NewElement(TagError)
	err.Space = Prefix(DAV)
	tag := err.CreateElement(e.Tag)
	if prefix := Prefix(e.Namespace); prefix != "" {
		tag.Space = prefix
	} else if e.Namespace != "" {
		tag.CreateAttr("xmlns", e.Namespace)
	}
	if e.Message != "" {
		tag.SetText(e.Message)
	}
	return err
}

// ErrorDocument builds a standalone DAV:error document
func ErrorDocument(e *Error) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.AddChild(e.ToElement())
	AddNamespaces(doc)
	return doc
}

// StatusLine renders a status code the way DAV:status carries it
func StatusLine(code int) string {
	return fmt.Sprintf("HTTP/1.1 %d %s", code, http.StatusText(code))
}

// ParseStatusLine extracts the status code from a DAV:status value
func ParseStatusLine(line string) (int, error) {
	var code int
	if _, err := fmt.Sscanf(line, "HTTP/1.1 %d", &code); err != nil {
		return 0, fmt.Errorf("invalid status line %q: %w", line, err)
	}
	return code, nil
}
