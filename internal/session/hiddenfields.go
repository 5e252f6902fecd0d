// File: internal/session/hiddenfields.go
package session

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// FieldSet is the result of a hidden-field extraction. Extracted
// distinguishes "no hidden fields found" from "extraction never ran": the
// orchestrator may submit credentials with an empty-but-known set, never
// with an unattempted one.
type FieldSet struct {
	Values    map[string]string
	Extracted bool
}

// ExtractHiddenFields walks the document and returns the name→value mapping
// of every input[type=hidden]. Pure and idempotent. Duplicate names follow
// standard form-serialization semantics: last write wins.
func ExtractHiddenFields(doc *html.Node) FieldSet {
	fields := FieldSet{Values: make(map[string]string), Extracted: true}
	if doc == nil {
		return fields
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "input") {
			if name, ok := hiddenInputName(n); ok {
				fields.Values[name] = attrValue(n, "value")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return fields
}

// ParseHiddenFields parses HTML from r and extracts its hidden fields.
func ParseHiddenFields(r io.Reader) (FieldSet, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return FieldSet{}, err
	}
	return ExtractHiddenFields(doc), nil
}

func hiddenInputName(n *html.Node) (string, bool) {
	if !strings.EqualFold(attrValue(n, "type"), "hidden") {
		return "", false
	}
	name := attrValue(n, "name")
	if name == "" {
		return "", false
	}
	return name, true
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if strings.EqualFold(attr.Key, key) {
			return attr.Val
		}
	}
	return ""
}
