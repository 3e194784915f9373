package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/pii-gateway/internal/audit"
	"github.com/raaihank/pii-gateway/internal/gateway"
	"github.com/raaihank/pii-gateway/internal/privacy"
)

type textRequest struct {
	Text string `json:"text"`
}

type unmaskRequest struct {
	Generated string              `json:"generated"`
	Mapping   privacy.MaskMapping `json:"mapping"`
	Original  string              `json:"original"`
}

type jargonRequest struct {
	Terms []string `json:"terms"`
}

type settingsRequest struct {
	MinScore   *float64 `json:"min_score"`
	Categories []string `json:"categories"`
}

type recognizerInfo struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Score    float64 `json:"score,omitempty"`
	Kind     string  `json:"kind"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":              "pii-gateway",
		"version":           version,
		"recognizers":       s.pipeline.Registry().Len(),
		"min_score":         s.pipeline.Settings().MinScore,
		"generator_model":   s.config.Generator.Model,
		"websocket_enabled": s.wsHub != nil && s.config.WebSocket.Enabled,
		"uptime":            s.Uptime().Round(time.Second).String(),
	}
	if s.audit != nil {
		info["audit_backend"] = s.audit.Backend()
		info["audit_failures"] = s.audit.Failures()
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.pipeline.Process(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMask(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.pipeline.Mask(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUnmask(w http.ResponseWriter, r *http.Request) {
	var req unmaskRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.pipeline.Unmask(r.Context(), req.Generated, req.Mapping, req.Original)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDocument extracts text from an uploaded file and masks it, or runs
// the full round trip when mode is "process" (the default).
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(s.config.Server.MaxUploadSize); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, `missing "file" part`)
		return
	}
	defer file.Close()

	text, err := s.extractor.Extract(header.Filename, file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	switch mode := r.FormValue("mode"); mode {
	case "", "process":
		result, err := s.pipeline.Process(r.Context(), text)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case "mask":
		result, err := s.pipeline.Mask(r.Context(), text)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		writeJSONError(w, http.StatusBadRequest, "mode must be process or mask")
	}
}

func (s *Server) handleAuditSummary(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "audit ledger is disabled")
		return
	}
	summary, err := s.audit.Summary(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		audit.Summary
		Backend  string `json:"backend"`
		Failures int64  `json:"failures"`
	}{summary, s.audit.Backend(), s.audit.Failures()})
}

func (s *Server) handleListRecognizers(w http.ResponseWriter, r *http.Request) {
	recs := s.pipeline.Registry().Snapshot()
	out := make([]recognizerInfo, 0, len(recs))
	for _, rec := range recs {
		info := recognizerInfo{Name: rec.Name(), Category: rec.Category()}
		switch v := rec.(type) {
		case *privacy.PatternRecognizer:
			info.Kind = "pattern"
			info.Score = v.Score()
		case *privacy.DenyListRecognizer:
			info.Kind = "deny_list"
			info.Score = v.Score()
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRemoveRecognizer(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	removed := s.pipeline.Registry().RemoveDefinition(name)
	if removed == 0 {
		writeJSONError(w, http.StatusNotFound, "recognizer not found")
		return
	}
	s.logger.WithRequestID(gateway.RequestID(r.Context())).Info("Recognizer removed",
		zap.String("recognizer", name),
		zap.Int("parts", removed),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetJargon(w http.ResponseWriter, r *http.Request) {
	var req jargonRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.pipeline.SetJargon(req.Terms); err != nil {
		s.writeError(w, r, err)
		return
	}
	_, active := s.pipeline.Registry().Get(privacy.JargonRecognizerName)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active": active,
		"terms":  len(req.Terms),
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Settings())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !s.decode(w, r, &req) {
		return
	}
	current := s.pipeline.Settings()
	minScore := current.MinScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	if err := s.pipeline.UpdateSettings(minScore, req.Categories); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.pipeline.Settings())
}

// decode reads a JSON body bounded by the upload limit. It writes a 400 and
// returns false on failure; the decoder error is not echoed since it may
// quote the body.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadSize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
