package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/gradeinsight/internal/ingest"
	"github.com/shrimpsizemoose/gradeinsight/internal/roster"
)

func (h *Handler) HandleUploadForm(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(h.service.Config.Server.StaticDir, "upload.html"))
}

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	cfg := h.service.Config.Upload
	r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxBytes)

	if err := r.ParseMultipartForm(cfg.MaxBytes); err != nil {
		logger.Debug.Printf("Bad upload form: %v", err)
		writeError(w, badForm(err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, &roster.InputError{Err: fmt.Errorf("a roster file is required in field \"file\"")})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, badForm(err))
		return
	}

	tagIDs, err := parseTagIDs(r.MultipartForm.Value["tags"])
	if err != nil {
		writeError(w, &roster.InputError{Err: err})
		return
	}

	tenantID := tenantID(r)
	logger.Debug.Printf("[%s] upload %s (%d bytes)", tenantID, header.Filename, len(data))

	result, err := h.service.Engine.Import(r.Context(), ingest.Request{
		TenantID:    tenantID,
		TeacherName: r.FormValue("teacher_name"),
		ClassTag:    r.FormValue("class_tag"),
		TagIDs:      tagIDs,
		NewTags:     strings.Split(r.FormValue("new_tags"), ","),
		Data:        data,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": result.Summary(),
		"stats":   result,
	})
}

// badForm keeps size-limit errors distinguishable from malformed forms.
func badForm(err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return err
	}
	return &roster.InputError{Err: fmt.Errorf("invalid upload form: %w", err)}
}

func parseTagIDs(values []string) ([]int64, error) {
	var ids []int64
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid tag id %q", part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
