package roster

import (
	"encoding/csv"
	"io"
)

var templateRecords = [][]string{
	{"Last Name", "First Name", "Email", "Quiz 1", "Homework 1", "Midterm"},
	{"Date", "", "", "2024-09-06", "2024-09-13", "2024-10-04"},
	{"Points", "", "", "20", "10", "100"},
	{"Smith", "John", "john.smith@example.com", "18", "9", "85"},
	{"Doe", "Jane", "jane.doe@example.com", "20", "10", "92"},
	{"Garcia", "Maria", "maria.garcia@example.com", "15", "", "78"},
}

const TemplateFilename = "grade_upload_template.csv"

// Template writes a sample roster that Parse accepts as is.
func Template(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(templateRecords); err != nil {
		return err
	}
	return cw.Error()
}
