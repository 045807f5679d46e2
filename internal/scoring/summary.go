// internal/scoring/summary.go
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/shrimpsizemoose/gradeinsight/internal/models"
	"github.com/shrimpsizemoose/gradeinsight/internal/store"
)

type GradeView struct {
	AssignmentID int64    `json:"assignment_id"`
	Assignment   string   `json:"assignment"`
	Date         *string  `json:"date"`
	MaxPoints    float64  `json:"max_points"`
	Score        float64  `json:"score"`
	Percentage   float64  `json:"percentage"`
	TeacherName  string   `json:"teacher_name"`
	ClassTag     *string  `json:"class_tag"`
	Tags         []string `json:"tags"`
}

type StudentGrades struct {
	ID        int64       `json:"id"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Email     string      `json:"email"`
	Grades    []GradeView `json:"grades"`
}

type StudentReport struct {
	StudentGrades
	TotalAssignments  int     `json:"total_assignments"`
	TotalPoints       float64 `json:"total_points"`
	MaxPossible       float64 `json:"max_possible"`
	OverallPercentage float64 `json:"overall_percentage"`
}

type StudentStats struct {
	ID                int64   `json:"id"`
	FirstName         string  `json:"first_name"`
	LastName          string  `json:"last_name"`
	Email             string  `json:"email"`
	TotalAssignments  int     `json:"total_assignments"`
	TotalPoints       float64 `json:"total_points"`
	MaxPossible       float64 `json:"max_possible"`
	AveragePercentage float64 `json:"average_percentage"`
}

type AssignmentStats struct {
	ID                int64    `json:"id"`
	Name              string   `json:"name"`
	Date              *string  `json:"date"`
	MaxPoints         float64  `json:"max_points"`
	Tags              []string `json:"tags"`
	SubmissionCount   int      `json:"submission_count"`
	AverageScore      float64  `json:"average_score"`
	AveragePercentage float64  `json:"average_percentage"`
	HighestScore      float64  `json:"highest_score"`
	LowestScore       float64  `json:"lowest_score"`
}

type DashboardAssignment struct {
	Name      string   `json:"name"`
	Date      *string  `json:"date"`
	MaxPoints float64  `json:"max_points"`
	Tags      []string `json:"tags"`
}

type DashboardCell struct {
	Score      float64 `json:"score"`
	MaxPoints  float64 `json:"max_points"`
	Percentage float64 `json:"percentage"`
}

type DashboardStudent struct {
	ID        int64                    `json:"id"`
	FirstName string                   `json:"first_name"`
	LastName  string                   `json:"last_name"`
	Email     string                   `json:"email"`
	Grades    map[string]DashboardCell `json:"grades"`
}

type Dashboard struct {
	Assignments []DashboardAssignment `json:"assignments"`
	Students    []DashboardStudent    `json:"students"`
	NumStudents int                   `json:"num_students"`
}

// TagIndex maps assignment ids to tag names, built once per request.
type TagIndex map[int64][]string

func NewTagIndex(links []store.AssignmentTag) TagIndex {
	idx := make(TagIndex)
	for _, l := range links {
		idx[l.AssignmentID] = append(idx[l.AssignmentID], l.TagName)
	}
	return idx
}

func (idx TagIndex) For(assignmentID int64) []string {
	if tags := idx[assignmentID]; tags != nil {
		return tags
	}
	return []string{}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func dateString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}

func gradeView(r store.GradeRow, tags TagIndex) GradeView {
	var classTag *string
	if r.ClassTag.Valid {
		classTag = &r.ClassTag.String
	}
	return GradeView{
		AssignmentID: r.AssignmentID,
		Assignment:   r.AssignmentName,
		Date:         dateString(r.AssignmentDate),
		MaxPoints:    r.MaxPoints,
		Score:        r.Score,
		Percentage:   round(models.Percentage(r.Score, r.MaxPoints), 2),
		TeacherName:  r.TeacherName,
		ClassTag:     classTag,
		Tags:         tags.For(r.AssignmentID),
	}
}

// GradesTable groups grade rows under every student, including students
// without grades.
func GradesTable(students []models.Student, rows []store.GradeRow, tags TagIndex) []StudentGrades {
	byStudent := make(map[int64][]GradeView, len(students))
	for _, r := range rows {
		byStudent[r.StudentID] = append(byStudent[r.StudentID], gradeView(r, tags))
	}

	table := make([]StudentGrades, 0, len(students))
	for _, s := range students {
		grades := byStudent[s.ID]
		if grades == nil {
			grades = []GradeView{}
		}
		table = append(table, StudentGrades{
			ID:        s.ID,
			FirstName: s.FirstName,
			LastName:  s.LastName,
			Email:     s.Email,
			Grades:    grades,
		})
	}
	return table
}

func Report(student models.Student, rows []store.GradeRow, tags TagIndex) StudentReport {
	report := StudentReport{
		StudentGrades: GradesTable([]models.Student{student}, rows, tags)[0],
	}
	for _, r := range rows {
		report.TotalPoints += r.Score
		report.MaxPossible += r.MaxPoints
	}
	report.TotalAssignments = len(report.Grades)
	report.OverallPercentage = round(models.Percentage(report.TotalPoints, report.MaxPossible), 2)
	return report
}

func StudentsWithStats(students []models.Student, rows []store.GradeRow) []StudentStats {
	type totals struct {
		count      int
		points, of float64
	}
	byStudent := make(map[int64]*totals)
	for _, r := range rows {
		t := byStudent[r.StudentID]
		if t == nil {
			t = &totals{}
			byStudent[r.StudentID] = t
		}
		t.count++
		t.points += r.Score
		t.of += r.MaxPoints
	}

	stats := make([]StudentStats, 0, len(students))
	for _, s := range students {
		st := StudentStats{ID: s.ID, FirstName: s.FirstName, LastName: s.LastName, Email: s.Email}
		if t := byStudent[s.ID]; t != nil {
			st.TotalAssignments = t.count
			st.TotalPoints = t.points
			st.MaxPossible = t.of
			st.AveragePercentage = round(models.Percentage(t.points, t.of), 1)
		}
		stats = append(stats, st)
	}
	return stats
}

func AssignmentSummaries(assignments []models.Assignment, rows []store.GradeRow, tags TagIndex) []AssignmentStats {
	scores := make(map[int64][]float64)
	for _, r := range rows {
		scores[r.AssignmentID] = append(scores[r.AssignmentID], r.Score)
	}

	summaries := make([]AssignmentStats, 0, len(assignments))
	for _, a := range assignments {
		st := AssignmentStats{
			ID:        a.ID,
			Name:      a.Name,
			Date:      a.DateString(),
			MaxPoints: a.MaxPoints,
			Tags:      tags.For(a.ID),
		}
		if s := scores[a.ID]; len(s) > 0 {
			sum, hi, lo := 0.0, s[0], s[0]
			for _, v := range s {
				sum += v
				hi = math.Max(hi, v)
				lo = math.Min(lo, v)
			}
			avg := sum / float64(len(s))
			st.SubmissionCount = len(s)
			st.AverageScore = round(avg, 2)
			st.AveragePercentage = round(models.Percentage(avg, a.MaxPoints), 2)
			st.HighestScore = hi
			st.LowestScore = lo
		}
		summaries = append(summaries, st)
	}
	return summaries
}

// BuildDashboard lays grades out as a student x assignment matrix. Only
// assignments with at least one grade get a column, ordered by date (undated
// first) and then name.
func BuildDashboard(students []models.Student, rows []store.GradeRow, tags TagIndex) Dashboard {
	type column struct {
		DashboardAssignment
		date *time.Time
	}
	columns := make(map[int64]*column)
	cells := make(map[int64]map[string]DashboardCell)

	for _, r := range rows {
		if _, ok := columns[r.AssignmentID]; !ok {
			columns[r.AssignmentID] = &column{
				DashboardAssignment: DashboardAssignment{
					Name:      r.AssignmentName,
					Date:      dateString(r.AssignmentDate),
					MaxPoints: r.MaxPoints,
					Tags:      tags.For(r.AssignmentID),
				},
				date: r.AssignmentDate,
			}
		}
		if cells[r.StudentID] == nil {
			cells[r.StudentID] = make(map[string]DashboardCell)
		}
		cells[r.StudentID][r.AssignmentName] = DashboardCell{
			Score:      r.Score,
			MaxPoints:  r.MaxPoints,
			Percentage: round(models.Percentage(r.Score, r.MaxPoints), 2),
		}
	}

	sorted := make([]*column, 0, len(columns))
	for _, c := range columns {
		sorted = append(sorted, c)
	}
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a.date == nil && b.date != nil:
			return true
		case a.date != nil && b.date == nil:
			return false
		case a.date != nil && !a.date.Equal(*b.date):
			return a.date.Before(*b.date)
		}
		return a.Name < b.Name
	})

	d := Dashboard{
		Assignments: make([]DashboardAssignment, 0, len(sorted)),
		Students:    make([]DashboardStudent, 0, len(students)),
		NumStudents: len(students),
	}
	for _, c := range sorted {
		d.Assignments = append(d.Assignments, c.DashboardAssignment)
	}
	for _, s := range students {
		grades := cells[s.ID]
		if grades == nil {
			grades = map[string]DashboardCell{}
		}
		d.Students = append(d.Students, DashboardStudent{
			ID:        s.ID,
			FirstName: s.FirstName,
			LastName:  s.LastName,
			Email:     s.Email,
			Grades:    grades,
		})
	}
	return d
}
