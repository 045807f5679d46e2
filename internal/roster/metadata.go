package roster

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

type metaKind int

const (
	metaNone metaKind = iota
	metaDates
	metaPoints
)

var dateLabels = map[string]bool{"date": true, "dates": true, "due": true, "deadline": true}

var pointLabels = map[string]bool{"point": true, "points": true, "pts": true, "max": true, "maximum": true, "total": true}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"Jan 2, 2006",
	"January 2, 2006",
	"2-Jan-2006",
	"02-Jan-06",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// classifyMetadata decides whether a row sitting right under the header
// carries assignment dates or max points. Student rows always have an email.
// labeled is false when the row had no label and was judged by its cells.
func classifyMetadata(cells []string, assignments []AssignmentColumn) (kind metaKind, labeled bool) {
	if cell(cells, emailColumn) != "" {
		return metaNone, false
	}

	label := strings.ToLower(cell(cells, lastNameColumn) + " " + cell(cells, firstNameColumn))
	words := strings.FieldsFunc(label, func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		if dateLabels[w] {
			return metaDates, true
		}
	}
	for _, w := range words {
		if pointLabels[w] {
			return metaPoints, true
		}
	}
	if len(words) > 0 {
		return metaNone, false
	}

	var values []string
	for _, a := range assignments {
		if v := cell(cells, a.Index); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return metaNone, false
	}
	if allOf(values, func(v string) bool { _, ok := parseDate(v); return ok }) {
		return metaDates, false
	}
	if allOf(values, func(v string) bool { _, err := parseNumber(v); return err == nil }) {
		return metaPoints, false
	}
	return metaNone, false
}

func (k metaKind) String() string {
	switch k {
	case metaDates:
		return "assignment dates"
	case metaPoints:
		return "max points"
	}
	return "student data"
}

func allOf(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

func applyDates(line int, cells []string, assignments []AssignmentColumn) []string {
	var warnings []string
	for i := range assignments {
		v := cell(cells, assignments[i].Index)
		if v == "" {
			continue
		}
		d, ok := parseDate(v)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("row %d, column %q: unrecognized date %q, leaving it empty", line, assignments[i].Name, v))
			continue
		}
		assignments[i].Date = &d
	}
	return warnings
}

func applyPoints(line int, cells []string, assignments []AssignmentColumn, fallback float64) []string {
	var warnings []string
	for i := range assignments {
		v := cell(cells, assignments[i].Index)
		if v == "" {
			continue
		}
		p, err := parseNumber(v)
		if err != nil || p <= 0 {
			warnings = append(warnings, fmt.Sprintf("row %d, column %q: invalid max points %q, using %g", line, assignments[i].Name, v, fallback))
			continue
		}
		assignments[i].MaxPoints = p
	}
	return warnings
}

func parseDate(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// decimalNumber keeps ParseFloat away from hex floats, underscores, Inf and NaN.
var decimalNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

func parseNumber(v string) (float64, error) {
	v = strings.TrimSpace(v)
	if !decimalNumber.MatchString(v) {
		return 0, strconv.ErrSyntax
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(f, 0) {
		return 0, strconv.ErrRange
	}
	return f, nil
}
