package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shrimpsizemoose/gradeinsight/internal/models"
)

const (
	lastNameColumn = iota
	firstNameColumn
	emailColumn
	firstAssignmentColumn
)

var requiredColumns = []string{"Last Name", "First Name", "Email"}

type ParseOptions struct {
	DefaultMaxPoints float64
	// MaxRows caps student rows; zero means no limit.
	MaxRows int
}

type AssignmentColumn struct {
	Name      string
	Index     int
	MaxPoints float64
	Date      *time.Time
}

// Row is one student line as it appeared in the file. Cells is aligned with
// Roster.Assignments.
type Row struct {
	Number    int
	LastName  string
	FirstName string
	Email     string
	Cells     []string
}

type Roster struct {
	Assignments []AssignmentColumn
	Rows        []Row
	Warnings    []string
}

type record struct {
	line  int
	cells []string
}

// Parse reads an uploaded roster. Any error it returns is an *InputError.
func Parse(data []byte, opts ParseOptions) (*Roster, error) {
	if opts.DefaultMaxPoints <= 0 {
		opts.DefaultMaxPoints = models.DefaultMaxPoints
	}

	records, err := readRecords(data)
	if err != nil {
		return nil, inputError(err)
	}
	r, err := build(records, opts)
	if err != nil {
		return nil, inputError(err)
	}
	return r, nil
}

func readRecords(data []byte) ([]record, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	f, err := sniff(data)
	if err != nil {
		return nil, err
	}
	if f == formatXLSX {
		return readXLSX(data)
	}

	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}
	return readCSV(text)
}

func readCSV(text string) ([]record, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records []record
	for {
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
		}
		line, _ := r.FieldPos(0)
		records = append(records, record{line: line, cells: cells})
	}
	return records, nil
}

func build(records []record, opts ParseOptions) (*Roster, error) {
	records = dropBlank(records)
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	assignments, err := readHeader(records[0].cells, opts.DefaultMaxPoints)
	if err != nil {
		return nil, err
	}

	roster := &Roster{Assignments: assignments}
	body := records[1:]

	seen := map[metaKind]bool{}
	for len(body) > 0 && len(seen) < 2 {
		kind, labeled := classifyMetadata(body[0].cells, assignments)
		if kind == metaNone || seen[kind] {
			break
		}
		seen[kind] = true
		if !labeled {
			roster.Warnings = append(roster.Warnings, fmt.Sprintf(
				"row %d has no name, email or label and was read as %s; label it %q to make this explicit",
				body[0].line, kind, labelFor(kind)))
		}
		switch kind {
		case metaDates:
			roster.Warnings = append(roster.Warnings, applyDates(body[0].line, body[0].cells, roster.Assignments)...)
		case metaPoints:
			roster.Warnings = append(roster.Warnings, applyPoints(body[0].line, body[0].cells, roster.Assignments, opts.DefaultMaxPoints)...)
		}
		body = body[1:]
	}

	if len(body) == 0 {
		return nil, ErrEmptyFile
	}
	if opts.MaxRows > 0 && len(body) > opts.MaxRows {
		return nil, &TooManyRowsError{Rows: len(body), Max: opts.MaxRows}
	}

	roster.Rows = make([]Row, 0, len(body))
	for _, rec := range body {
		row := Row{
			Number:    rec.line,
			LastName:  cell(rec.cells, lastNameColumn),
			FirstName: cell(rec.cells, firstNameColumn),
			Email:     cell(rec.cells, emailColumn),
			Cells:     make([]string, len(assignments)),
		}
		for i, a := range assignments {
			row.Cells[i] = cell(rec.cells, a.Index)
		}
		roster.Rows = append(roster.Rows, row)
	}
	return roster, nil
}

func readHeader(header []string, defaultMax float64) ([]AssignmentColumn, error) {
	var missing []string
	for i, want := range requiredColumns {
		if !sameColumn(cell(header, i), want) {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	// spreadsheets often export trailing empty columns
	last := len(header)
	for last > firstAssignmentColumn && strings.TrimSpace(header[last-1]) == "" {
		last--
	}
	if last <= firstAssignmentColumn {
		return nil, ErrNoAssignmentColumns
	}

	seen := make(map[string]bool)
	assignments := make([]AssignmentColumn, 0, last-firstAssignmentColumn)
	for i := firstAssignmentColumn; i < last; i++ {
		name := strings.TrimSpace(header[i])
		if name == "" {
			return nil, &DuplicateColumnError{Column: i, Name: name, Reason: "assignment name is blank"}
		}
		if seen[name] {
			return nil, &DuplicateColumnError{Column: i, Name: name, Reason: "assignment appears more than once"}
		}
		seen[name] = true
		assignments = append(assignments, AssignmentColumn{Name: name, Index: i, MaxPoints: defaultMax})
	}
	return assignments, nil
}

func labelFor(k metaKind) string {
	if k == metaDates {
		return "Date"
	}
	return "Points"
}

func sameColumn(got, want string) bool {
	squash := func(s string) string {
		return strings.ToLower(strings.NewReplacer(" ", "", "_", "", "\t", "").Replace(s))
	}
	return squash(got) == squash(want)
}

func dropBlank(records []record) []record {
	out := records[:0]
	for _, rec := range records {
		for _, c := range rec.cells {
			if strings.TrimSpace(c) != "" {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

func cell(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}
