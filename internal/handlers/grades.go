package handlers

import (
	"fmt"
	"net/http"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/gradeinsight/internal/export"
	"github.com/shrimpsizemoose/gradeinsight/internal/roster"
)

func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.service.Dashboard(r.Context(), tenantID(r))
	if err != nil {
		logger.Error.Printf("[%s] Failed to build dashboard: %v", tenantID(r), err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (h *Handler) HandleGradesTable(w http.ResponseWriter, r *http.Request) {
	table, err := h.service.GradesTable(r.Context(), tenantID(r))
	if err != nil {
		logger.Error.Printf("[%s] Failed to fetch grades table: %v", tenantID(r), err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": table})
}

func (h *Handler) HandleStudent(w http.ResponseWriter, r *http.Request) {
	email := r.PathValue("email")
	report, err := h.service.StudentReport(r.Context(), tenantID(r), email)
	if err != nil {
		logger.Error.Printf("[%s] Failed to fetch student %s: %v", tenantID(r), email, err)
		writeError(w, err)
		return
	}
	if report == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("Student with email %s not found.", email),
		})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), tenantID(r))
	if err != nil {
		logger.Error.Printf("[%s] %v", tenantID(r), err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) HandleStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.service.Students(r.Context(), tenantID(r))
	if err != nil {
		logger.Error.Printf("[%s] Failed to list students: %v", tenantID(r), err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": students})
}

func (h *Handler) HandleSearchStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.service.SearchStudents(r.Context(), tenantID(r), r.URL.Query().Get("query"))
	if err != nil {
		logger.Error.Printf("[%s] Failed to search students: %v", tenantID(r), err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": students})
}

func (h *Handler) HandleAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.service.Assignments(r.Context(), tenantID(r))
	if err != nil {
		logger.Error.Printf("[%s] Failed to list assignments: %v", tenantID(r), err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": assignments})
}

func (h *Handler) HandleTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.service.Tags(r.Context(), tenantID(r))
	if err != nil {
		logger.Error.Printf("[%s] Failed to list tags: %v", tenantID(r), err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (h *Handler) HandleTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", roster.TemplateFilename))
	if err := roster.Template(w); err != nil {
		logger.Error.Printf("Failed to write template: %v", err)
	}
}

func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Store.ListGradeRows(r.Context(), tenantID(r))
	if err != nil {
		logger.Error.Printf("[%s] Failed to export grades: %v", tenantID(r), err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", tenantID(r)+"_grades.csv"))
	if err := export.WriteGradesCSV(w, rows); err != nil {
		logger.Error.Printf("[%s] Failed to write export: %v", tenantID(r), err)
	}
}
