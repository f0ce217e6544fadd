package xml

import (
	"regexp"
	"strings"
	"testing"

	"github.com/beevik/etree"
)

// xmlNoise lists the rewrites applied, in order, before two documents are
// compared. The declaration, indentation and letter case never matter.
var xmlNoise = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`<\?xml[^>]*\?>`), ""},
	{regexp.MustCompile(`>\s+<`), "><"},
	{regexp.MustCompile(`>\s+([^<>\s]+)\s+<`), ">$1<"},
	{regexp.MustCompile(`\s+`), " "},
	{regexp.MustCompile(`>\s+<`), "><"},
	{regexp.MustCompile(`\s+/>`), "/>"},
	{regexp.MustCompile(`<\s+`), "<"},
	{regexp.MustCompile(`\s+>`), ">"},
}

func normalizeXML(s string) string {
	for _, n := range xmlNoise {
		s = n.re.ReplaceAllString(s, n.repl)
	}
	return strings.TrimSpace(strings.ToLower(s))
}

// writeString serializes doc, failing the test if etree cannot.
func writeString(t *testing.T, doc *etree.Document) string {
	t.Helper()
	s, err := doc.WriteToString()
	if err != nil {
		t.Fatalf("WriteToString() error = %v", err)
	}
	return s
}

// elementString serializes a lone element without a declaration.
func elementString(t *testing.T, elem *etree.Element) string {
	t.Helper()
	doc := etree.NewDocument()
	doc.AddChild(elem.Copy())
	return normalizeXML(writeString(t, doc))
}
