package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/tax-intake/internal/model"
)

// ResultsHeader is the first row of a results sheet.
var ResultsHeader = []string{"Item", "Spouse", "Registered", "Total"}

// WriteResultsXLSX writes tax calculation rows to a one-sheet workbook.
func WriteResultsXLSX(w io.Writer, taxYear string, rows []model.TaxResultRow) error {
	f := xlsx.NewFile()
	name := "Results"
	if taxYear != "" {
		name = "Results " + taxYear
	}
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	addRow(sheet, ResultsHeader)
	for _, r := range rows {
		addRow(sheet, []string{r.Title, r.Spouse, r.Main, r.Total})
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "xlsx: write")
	}
	return nil
}

// ReadResultsXLSX reads a workbook written by WriteResultsXLSX, skipping
// the header row.
func ReadResultsXLSX(path string) ([]model.TaxResultRow, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}

	var out []model.TaxResultRow
	for i, row := range f.Sheets[0].Rows {
		if i == 0 {
			continue
		}
		cells := rowToStrings(row)
		for len(cells) < len(ResultsHeader) {
			cells = append(cells, "")
		}
		out = append(out, model.TaxResultRow{Title: cells[0], Spouse: cells[1], Main: cells[2], Total: cells[3]})
	}
	return out, nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
