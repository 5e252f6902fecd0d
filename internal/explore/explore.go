// File: internal/explore/explore.go

// Package explore scans saved portal pages offline. Given an HTML snapshot
// it reports the login surface (forms, their inputs, hidden payload fields)
// and flags invoice-related navigation, so selector config can be updated
// without touching the live portal.
package explore

import (
	"io"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/aduanet/aduanet-cli/internal/session"
)

// keywords that mark login or invoice surfaces on the portal. Romanian
// terms first; the portal's UI is bilingual.
var hintKeywords = []string{"factura", "facturi", "invoice", "intrare", "login", "autentificare", "conectare"}

// Form describes one form found in the document.
type Form struct {
	Selector     string            `json:"selector"`
	Action       string            `json:"action"`
	Method       string            `json:"method"`
	Inputs       []Input           `json:"inputs"`
	HiddenFields map[string]string `json:"hidden_fields"`
}

// Input is a non-hidden form input.
type Input struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// Link is an anchor or button whose text or attributes match a hint
// keyword.
type Link struct {
	Text    string `json:"text"`
	Href    string `json:"href,omitempty"`
	Keyword string `json:"keyword"`
}

// Report is the result of one offline scan.
type Report struct {
	Title        string            `json:"title"`
	Forms        []Form            `json:"forms"`
	Hints        []Link            `json:"hints"`
	HiddenFields map[string]string `json:"hidden_fields"`
}

// Scan parses HTML from r and builds the report.
func Scan(r io.Reader) (*Report, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	report := &Report{
		HiddenFields: session.ExtractHiddenFields(doc).Values,
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch strings.ToLower(n.Data) {
			case "title":
				report.Title = strings.TrimSpace(textOf(n))
			case "form":
				report.Forms = append(report.Forms, describeForm(n, len(report.Forms)))
			case "a", "button":
				if link, ok := matchHint(n); ok {
					report.Hints = append(report.Hints, link)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return report, nil
}

func describeForm(n *html.Node, index int) Form {
	form := Form{
		Selector:     formSelector(n, index),
		Action:       attr(n, "action"),
		Method:       strings.ToUpper(defaultString(attr(n, "method"), "GET")),
		HiddenFields: session.ExtractHiddenFields(n).Values,
	}

	var walk func(node *html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && strings.ToLower(node.Data) == "input" {
			inputType := strings.ToLower(defaultString(attr(node, "type"), "text"))
			if inputType != "hidden" {
				form.Inputs = append(form.Inputs, Input{Type: inputType, Name: attr(node, "name")})
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	sort.Slice(form.Inputs, func(i, j int) bool { return form.Inputs[i].Name < form.Inputs[j].Name })
	return form
}

// formSelector builds the most specific CSS selector available for a form.
func formSelector(n *html.Node, index int) string {
	if id := attr(n, "id"); id != "" {
		return "#" + id
	}
	if name := attr(n, "name"); name != "" {
		return "form[name='" + name + "']"
	}
	if index == 0 {
		return "form"
	}
	return "form:nth-of-type(" + strconv.Itoa(index+1) + ")"
}

// matchHint reports whether a link or button smells like a login or
// invoice entry point.
func matchHint(n *html.Node) (Link, bool) {
	haystack := strings.ToLower(textOf(n) + " " + attr(n, "href") + " " + attr(n, "id") + " " + attr(n, "title"))
	for _, kw := range hintKeywords {
		if strings.Contains(haystack, kw) {
			return Link{
				Text:    strings.TrimSpace(textOf(n)),
				Href:    attr(n, "href"),
				Keyword: kw,
			}, true
		}
	}
	return Link{}, false
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(node *html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
