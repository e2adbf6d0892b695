package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/floodwatch/internal/model"
)

// SheetName is the worksheet the XLSX export writes to.
const SheetName = "Reports"

// XLSX writes one header row and one row per report.
func XLSX(path string, reports []model.Report) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, name := range columns {
		header.AddCell().SetString(name)
	}

	for _, r := range reports {
		row := sheet.AddRow()
		row.AddCell().SetString(string(r.ID))
		row.AddCell().SetString(string(r.UserID))
		row.AddCell().SetString(string(r.Status))
		row.AddCell().SetString(r.Location)
		row.AddCell().SetString(model.MainArea(r.Location))
		row.AddCell().SetString(r.Description)
		row.AddCell().SetFloat(r.WaterLevel)
		row.AddCell().SetFloat(r.Coordinates.Lat)
		row.AddCell().SetFloat(r.Coordinates.Lng)
		row.AddCell().SetString(r.ImageURL)
		row.AddCell().SetString(createdAt(r))
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "xlsx: save file")
	}
	return nil
}

// ReadXLSX reads the first sheet of an XLSX file as string rows, header
// included.
func ReadXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: file has no sheets")
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
