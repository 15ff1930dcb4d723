// Package parser turns a fetched price page into raw observation rows.
//
// A page is modelled as a flat sequence of blocks: a heading names the
// sub-region (a metro area) and each following table block carries that
// sub-region's rows. Rows folds the sequence left to right, so the parsing
// logic does not depend on any markup API. BlocksFromHTML builds the
// sequence from the AAA page markup.
package parser

import (
	"fmt"
	"iter"

	"github.com/andygrunwald/gas-price-scraper/internal/models"
)

// BlockKind tags a Block.
type BlockKind int

const (
	// HeadingBlock names the sub-region for the tables that follow it.
	HeadingBlock BlockKind = iota
	// TableBlock holds body rows of a price table.
	TableBlock
)

// Block is one element of a page's flat heading/table sequence.
type Block struct {
	Kind BlockKind
	// Name is set for headings.
	Name string
	// Rows is set for tables. Each row is the trimmed text of its cells.
	Rows [][]string
}

// Heading returns a heading block.
func Heading(name string) Block {
	return Block{Kind: HeadingBlock, Name: name}
}

// Table returns a table block.
func Table(rows ...[]string) Block {
	return Block{Kind: TableBlock, Rows: rows}
}

// StructuralError reports a block that does not fit the heading/table shape.
// The block is skipped and parsing continues.
type StructuralError struct {
	Region string
	// Index is the position of the offending block in the sequence.
	Index  int
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("region %s: block %d: %s", e.Region, e.Index, e.Reason)
}

// Diagnostics collects recoverable problems found while parsing a page.
type Diagnostics struct {
	Structural []*StructuralError
}

func (d *Diagnostics) record(err *StructuralError) {
	if d != nil {
		d.Structural = append(d.Structural, err)
	}
}

// Rows lazily yields one raw row per table body row, tagged with the most
// recent heading. A table that appears before any heading is skipped and
// recorded in diag. Rows with fewer than five cells get nil price cells for
// the missing ones. diag may be nil.
func Rows(region string, blocks []Block, diag *Diagnostics) iter.Seq[models.RawRow] {
	return func(yield func(models.RawRow) bool) {
		current, seenHeading := "", false

		for i, b := range blocks {
			switch b.Kind {
			case HeadingBlock:
				current, seenHeading = b.Name, true
			case TableBlock:
				if !seenHeading {
					diag.record(&StructuralError{Region: region, Index: i, Reason: "table before any sub-region heading"})
					continue
				}
				for _, cells := range b.Rows {
					if !yield(rawRow(region, current, cells)) {
						return
					}
				}
			default:
				diag.record(&StructuralError{Region: region, Index: i, Reason: fmt.Sprintf("unknown block kind %d", b.Kind)})
			}
		}
	}
}

func rawRow(region, subRegion string, cells []string) models.RawRow {
	row := models.RawRow{Region: region, SubRegion: subRegion}
	if len(cells) > 0 {
		row.TimeLabel = cells[0]
	}
	for i := range row.Cells {
		if i+1 < len(cells) {
			v := cells[i+1]
			row.Cells[i] = &v
		}
	}
	return row
}
