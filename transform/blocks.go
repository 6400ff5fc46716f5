package transform

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Block is one content element in document order. HeadingPath is the
// breadcrumb of h1/h2/h3 text active when the block was seen.
type Block struct {
	Ord         int      `json:"ord"`
	Type        string   `json:"type"`
	HeadingPath []string `json:"heading_path"`
	Caption     string   `json:"caption,omitempty"`
	Prose       string   `json:"prose,omitempty"`
	Code        string   `json:"code,omitempty"`
	IsCode      bool     `json:"is_code"`
}

// boilerplateSelector matches regions that never carry page content.
const boilerplateSelector = "nav, footer, [role=navigation], [role=banner], [role=contentinfo]"

const contentSelector = "h1, h2, h3, p, li, pre, table"

// Blocks walks the content elements of a cleaned document and emits ordered
// blocks with their heading breadcrumbs. A new h1 resets the breadcrumb, an
// h2 keeps the h1, an h3 keeps h1 and h2. Prose blocks with no text are
// dropped; pre blocks are kept even when whitespace-only, since a literal
// blank code region is still a code region. Headings update the breadcrumb
// even when their own text is empty.
func Blocks(doc *goquery.Document) []Block {
	doc = goquery.CloneDocument(doc)
	doc.Find(boilerplateSelector).Remove()

	var blocks []Block
	var headingPath []string
	ord := 0

	doc.Find(contentSelector).Each(func(_ int, sel *goquery.Selection) {
		name := goquery.NodeName(sel)
		text := collapseText(sel)

		switch name {
		case "h1":
			headingPath = []string{text}
		case "h2":
			headingPath = append(trimPath(headingPath, 1), text)
		case "h3":
			headingPath = append(trimPath(headingPath, 2), text)
		}

		isCode := name == "pre"
		if text == "" && !isCode {
			return
		}

		b := Block{
			Ord:         ord,
			Type:        name,
			HeadingPath: append([]string(nil), headingPath...),
			IsCode:      isCode,
		}
		if len(headingPath) > 0 {
			b.Caption = headingPath[len(headingPath)-1]
		}
		if isCode {
			b.Code = sel.Text()
		} else {
			b.Prose = text
		}

		blocks = append(blocks, b)
		ord++
	})

	return blocks
}

func trimPath(path []string, depth int) []string {
	if len(path) > depth {
		path = path[:depth]
	}
	return append([]string(nil), path...)
}

// collapseText joins the selection's text content on single spaces, the
// whitespace-collapsed reading of an element's visible text.
func collapseText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}
