package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// blockSelector matches the sub-region headings and the table containers
	// of the metro accordion, in document order.
	blockSelector = ".accordion-prices > h3, .accordion-prices > div"
	// rowSelector matches the body rows of a price table inside a container.
	rowSelector = "table tbody tr"
)

// BlocksFromHTML reads a page and returns its heading/table sequence.
// Containers without a price table are ignored.
func BlocksFromHTML(r io.Reader) ([]Block, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return blocksFromDocument(doc), nil
}

func blocksFromDocument(doc *goquery.Document) []Block {
	blocks := make([]Block, 0)

	doc.Find(blockSelector).Each(func(_ int, sel *goquery.Selection) {
		switch goquery.NodeName(sel) {
		case "h3":
			blocks = append(blocks, Heading(strings.TrimSpace(sel.Text())))
		case "div":
			trs := sel.Find(rowSelector)
			if trs.Length() == 0 {
				return
			}
			rows := make([][]string, 0, trs.Length())
			trs.Each(func(_ int, tr *goquery.Selection) {
				cells := make([]string, 0, 5)
				tr.Find("td").Each(func(_ int, td *goquery.Selection) {
					cells = append(cells, strings.TrimSpace(td.Text()))
				})
				rows = append(rows, cells)
			})
			blocks = append(blocks, Table(rows...))
		}
	})

	return blocks
}
