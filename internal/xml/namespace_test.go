package xml

import (
	"testing"

	"github.com/beevik/etree"
)

func TestAddNamespaces(t *testing.T) {
	tests := []struct {
		name     string
		setup    func() *etree.Document
		wantAttr map[string]string
	}{
		{
			name: "add namespaces to document with root",
			setup: func() *etree.Document {
				doc := etree.NewDocument()
				doc.CreateElement("multistatus")
				return doc
			},
			wantAttr: map[string]string{
				"xmlns:D":    DAV,
				"xmlns:C":    CalDAV,
				"xmlns:CARD": CardDAV,
				"xmlns:CS":   CalendarServer,
			},
		},
		{
			name: "keep existing attributes",
			setup: func() *etree.Document {
				doc := etree.NewDocument()
				root := doc.CreateElement("error")
				root.CreateAttr("xmlns:custom", "http://example.com/ns")
				return doc
			},
			wantAttr: map[string]string{
				"xmlns:D":      DAV,
				"xmlns:C":      CalDAV,
				"xmlns:CARD":   CardDAV,
				"xmlns:CS":     CalendarServer,
				"xmlns:custom": "http://example.com/ns",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := tt.setup()
			AddNamespaces(doc)

			root := doc.Root()
			if root == nil {
				t.Fatal("expected root element")
			}

			gotAttr := make(map[string]string)
			for _, attr := range root.Attr {
				attrName := attr.Space
				if attrName != "" {
					attrName += ":"
				}
				attrName += attr.Key
				gotAttr[attrName] = attr.Value
			}

			for attrName, wantValue := range tt.wantAttr {
				if gotValue, ok := gotAttr[attrName]; !ok {
					t.Errorf("missing attribute %s", attrName)
				} else if gotValue != wantValue {
					t.Errorf("attribute %s = %s, want %s", attrName, gotValue, wantValue)
				}
			}
			for attrName := range gotAttr {
				if _, ok := tt.wantAttr[attrName]; !ok {
					t.Errorf("unexpected attribute %s = %s", attrName, gotAttr[attrName])
				}
			}
		})
	}

	// A document without root is left alone
	AddNamespaces(etree.NewDocument())
}

func TestPrefixAndNamespace(t *testing.T) {
	tests := []struct {
		namespace string
		prefix    string
	}{
		{DAV, "D"},
		{CalDAV, "C"},
		{CardDAV, "CARD"},
		{CalendarServer, "CS"},
	}

	for _, tt := range tests {
		if got := Prefix(tt.namespace); got != tt.prefix {
			t.Errorf("Prefix(%q) = %q, want %q", tt.namespace, got, tt.prefix)
		}
		if got := Namespace(tt.prefix); got != tt.namespace {
			t.Errorf("Namespace(%q) = %q, want %q", tt.prefix, got, tt.namespace)
		}
	}

	if got := Prefix("http://example.com/ns"); got != "" {
		t.Errorf("Prefix(unknown) = %q, want empty", got)
	}
	if got := Namespace("X"); got != "X" {
		t.Errorf("Namespace(unknown) = %q, want it unchanged", got)
	}
}
