package roster

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// readXLSX returns the first sheet of a workbook as records.
func readXLSX(data []byte) ([]record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: sheet %s: %v", ErrMalformedFile, sheets[0], err)
	}

	records := make([]record, 0, len(rows))
	for i, row := range rows {
		records = append(records, record{line: i + 1, cells: row})
	}
	return records, nil
}
