package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ginjaninja78/comandos-pagamento-xml/internal/converter"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/logger"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/types"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/xlsxparser"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/xmlwriter"
	"github.com/google/uuid"
)

// previewSampleSize is the number of valid records returned by /preview.
const previewSampleSize = 5

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// PreviewResponse is the body returned by /v1/preview.
type PreviewResponse struct {
	FileName    string                 `json:"file_name"`
	Summary     converter.Summary      `json:"summary"`
	Trigramas   []string               `json:"trigramas"`
	Sample      []types.CommandRecord  `json:"sample"`
	Diagnostics []converter.Diagnostic `json:"diagnostics"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	path, name, cleanup, err := s.saveUpload(w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanup()

	records, err := converter.LoadFile(path, s.config.CSV)
	if err != nil {
		writeConversionError(w, err)
		return
	}

	valid := converter.ValidRecords(records)
	if len(valid) > previewSampleSize {
		valid = valid[:previewSampleSize]
	}

	groups := xmlwriter.GroupByTrigrama(records)
	trigramas := make([]string, len(groups))
	for i, g := range groups {
		trigramas[i] = g.Trigrama
	}

	diags := converter.Diagnostics(records)
	if diags == nil {
		diags = []converter.Diagnostic{}
	}

	writeJSON(w, http.StatusOK, &APIResponse[PreviewResponse]{
		Success: true,
		Data: PreviewResponse{
			FileName:    name,
			Summary:     converter.Summarize(records),
			Trigramas:   trigramas,
			Sample:      valid,
			Diagnostics: diags,
		},
	})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	path, name, cleanup, err := s.saveUpload(w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanup()

	id, err := strconv.Atoi(r.FormValue("responsible_id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "responsible_id is required")
		return
	}
	signer, err := s.registry.Get(id)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	folha := strings.TrimSpace(r.FormValue("folha"))

	result := s.converter.Run(converter.Request{
		InputPath: path,
		Signer:    signer,
		Folha:     folha,
		DryRun:    true,
	})
	if !result.Success {
		writeConversionError(w, result.Error)
		return
	}

	logger.Info("Payload generated over HTTP", map[string]interface{}{
		"file":        name,
		"responsible": signer.ID,
		"valid":       result.Summary.Valid,
		"rejected":    result.Summary.Invalid,
	})

	w.Header().Set("Content-Type", "application/xml; charset=iso-8859-1")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="comandos_pagamento_%s.xml"`, folha))
	w.Header().Set("X-Rejected-Rows", strconv.Itoa(result.Summary.Invalid))
	w.WriteHeader(http.StatusOK)
	w.Write(result.XML)
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := xlsxparser.WriteTemplateTo(&buf); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="modelo_comandos.xlsx"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// saveUpload stores the multipart "file" field in a temporary file named by
// a random token and returns its path, the client file name and a cleanup
// func.
func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request) (string, string, func(), error) {
	maxBytes := int64(s.config.MaxUploadMB) << 20
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return "", "", nil, fmt.Errorf("invalid upload: %w", err)
	}
	// The upload is copied below; the form's own temp files can go.
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", nil, errors.New("no file selected")
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !isSupported(ext) {
		return "", "", nil, fmt.Errorf("unsupported file format %q", ext)
	}

	dir, err := os.MkdirTemp("", "comandos-upload-")
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to store upload: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	path := filepath.Join(dir, uuid.NewString()+ext)
	out, err := os.Create(path)
	if err != nil {
		cleanup()
		return "", "", nil, fmt.Errorf("failed to store upload: %w", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		cleanup()
		return "", "", nil, fmt.Errorf("failed to store upload: %w", err)
	}
	if err := out.Close(); err != nil {
		cleanup()
		return "", "", nil, fmt.Errorf("failed to store upload: %w", err)
	}

	return path, header.Filename, cleanup, nil
}

func isSupported(ext string) bool {
	for _, e := range converter.SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// writeConversionError maps conversion sentinels to status codes.
func writeConversionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, xmlwriter.ErrNoValidRecords):
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, xmlwriter.ErrInvalidPeriod),
		errors.Is(err, converter.ErrMissingColumns),
		errors.Is(err, converter.ErrEmptyWorkbook),
		errors.Is(err, converter.ErrInvalidWorkbook),
		errors.Is(err, converter.ErrUnsupportedFile):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}
