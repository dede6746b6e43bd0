package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	cloakotel "github.com/dativo-io/cloak/internal/otel"
	"github.com/dativo-io/cloak/internal/pipeline"
	"github.com/dativo-io/cloak/internal/recognizer"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type healthResponse struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	RecognizerLoaded bool   `json:"recognizer_loaded"`
	ModelConfigured  bool   `json:"model_configured"`
	Provider         string `json:"provider"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	resp := healthResponse{
		Status:          "ok",
		Uptime:          time.Since(s.startTime).String(),
		ModelConfigured: s.provider != "" && s.model != "",
		Provider:        s.provider,
	}
	if s.analyzer != nil {
		if err := s.analyzer.Ready(ctx); err != nil {
			log.Debug().Err(err).Msg("health_recognizer_not_ready")
		} else {
			resp.RecognizerLoaded = true
		}
	}
	if !resp.RecognizerLoaded {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

type analyzeRequest struct {
	Text string `json:"text"`
}

// EntityResponse reports offsets in characters (Unicode code points).
type EntityResponse struct {
	Text        string  `json:"text"`
	Label       string  `json:"label"`
	Start       int     `json:"start"`
	End         int     `json:"end"`
	Confidence  float64 `json:"confidence"`
	Placeholder string  `json:"placeholder"`
}

// AnalyzeResponse is the body of a successful /analyze call.
type AnalyzeResponse struct {
	ID                    string           `json:"id"`
	Entities              []EntityResponse `json:"entities"`
	AIResponse            string           `json:"ai_response"`
	OriginalText          string           `json:"original_text"`
	SanitizedText         string           `json:"sanitized_text"`
	RewriteStatus         string           `json:"rewrite_status"`
	RestorationIncomplete bool             `json:"restoration_incomplete"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}

	res, err := s.analyzer.Analyze(r.Context(), req.Text)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrEmptyInput):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, recognizer.ErrUnavailable):
			log.Error().Err(err).Func(cloakotel.LogTraceFields(r.Context())).Msg("analyze_recognizer_unavailable")
			writeError(w, http.StatusServiceUnavailable, "recognizer_unavailable", "entity recognizer is unavailable")
		default:
			log.Error().Err(err).Func(cloakotel.LogTraceFields(r.Context())).Msg("analyze_failed")
			writeError(w, http.StatusInternalServerError, "internal", "analysis failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, NewAnalyzeResponse(res))
}

// NewAnalyzeResponse converts a pipeline result to its wire form.
func NewAnalyzeResponse(res *pipeline.Result) AnalyzeResponse {
	out := AnalyzeResponse{
		ID:                    res.ID,
		Entities:              make([]EntityResponse, 0, len(res.Entities)),
		AIResponse:            res.RewrittenText,
		OriginalText:          res.OriginalText,
		SanitizedText:         res.SanitizedText,
		RewriteStatus:         string(res.RewriteStatus),
		RestorationIncomplete: res.Restoration.Incomplete(),
	}
	for _, e := range res.Entities {
		out.Entities = append(out.Entities, EntityResponse{
			Text:        e.Text,
			Label:       e.Label,
			Start:       charOffset(res.OriginalText, e.Start),
			End:         charOffset(res.OriginalText, e.End),
			Confidence:  e.Confidence,
			Placeholder: e.Placeholder(),
		})
	}
	return out
}

// charOffset converts a byte offset into text to a code-point offset.
func charOffset(text string, byteOffset int) int {
	if byteOffset <= 0 {
		return 0
	}
	if byteOffset > len(text) {
		byteOffset = len(text)
	}
	return utf8.RuneCountInString(text[:byteOffset])
}
