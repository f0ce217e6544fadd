package xml

import (
	"fmt"

	"github.com/beevik/etree"
)

// MultistatusResponse represents a multistatus response
type MultistatusResponse struct {
	Responses []Response
}

// Response represents a single response within a multistatus
type Response struct {
	Href   string
	Status string
	Error  *Error
}

// Parse parses a multistatus response from an XML document
func (m *MultistatusResponse) Parse(doc *etree.Document) error {
	if doc == nil || doc.Root() == nil {
		return fmt.Errorf("empty document")
	}

	root := doc.Root()
	if root.Tag != TagMultistatus {
		return fmt.Errorf("invalid root tag: %s", root.Tag)
	}

	m.Responses = nil // Reset responses

	for _, respElem := range root.SelectElements(TagResponse) {
		resp := Response{}

		if hrefElem := respElem.SelectElement(TagHref); hrefElem != nil {
			resp.Href = hrefElem.Text()
		}
		if statusElem := respElem.SelectElement(TagStatus); statusElem != nil {
			resp.Status = statusElem.Text()
		}
		if errorElem := respElem.SelectElement(TagError); errorElem != nil {
			if child := errorElem.ChildElements(); len(child) > 0 {
				resp.Error = &Error{
					Tag:       child[0].Tag,
					Namespace: Namespace(child[0].Space),
					Message:   child[0].Text(),
				}
			}
		}

		m.Responses = append(m.Responses, resp)
	}

	return nil
}

// ToXML converts a MultistatusResponse to an XML document
func (m *MultistatusResponse) ToXML() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(TagMultistatus)
	root.Space = Prefix(DAV)
	AddNamespaces(doc)

	for _, resp := range m.Responses {
		response := root.CreateElement(TagResponse)
		response.Space = root.Space
		href := response.CreateElement(TagHref)
		href.Space = root.Space
		href.SetText(resp.Href)

		status := response.CreateElement(TagStatus)
		status.Space = root.Space
		status.SetText(resp.Status)

		if resp.Error != nil {
			response.AddChild(resp.Error.ToElement())
		}
	}

	return doc
}
