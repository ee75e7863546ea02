package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/ineyio/voicepool"
)

// Synthesize streams the audio for one text of bounded length.
func (s *Server) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req SynthesisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	n := voicepool.CountChars(req.Text)
	if n < int64(s.cfg.MinTextChars) || n > int64(s.cfg.MaxTextChars) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("text must be between %d and %d characters", s.cfg.MinTextChars, s.cfg.MaxTextChars))
		return
	}

	stream, err := s.pool.SynthesizeStream(r.Context(), voicepool.SynthesisRequest{
		Text:          req.Text,
		VoiceID:       req.VoiceID,
		ModelID:       req.ModelID,
		VoiceSettings: req.VoiceSettings,
	})
	if err != nil {
		s.logger.Error("synthesis failed", "chars", n, "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			s.logger.Error("failed to record usage", "error", err)
		}
	}()

	routing := stream.Routing()
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", `attachment; filename="speech.mp3"`)
	w.Header().Set("X-Voicepool-Credential", routing.Label)
	w.Header().Set("X-Voicepool-Attempts", strconv.Itoa(routing.Attempts))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, stream); err != nil {
		s.logger.Warn("audio stream interrupted", "credential", routing.Label, "error", err)
	}
}

// Preview synthesizes a voice's preview text. The text length bounds of
// Synthesize do not apply.
func (s *Server) Preview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var voice *voicepool.Voice
	if s.voices != nil {
		for _, v := range s.voices.Voices() {
			if v.ID == id {
				voice = &v
				break
			}
		}
	}
	if voice == nil || voice.PreviewText == "" {
		writeError(w, http.StatusNotFound, "voice not found")
		return
	}

	res, err := s.pool.Synthesize(r.Context(), voicepool.SynthesisRequest{
		Text:    voice.PreviewText,
		VoiceID: voice.ID,
	})
	if err != nil {
		s.logger.Error("preview failed", "voice", voice.Name, "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Voicepool-Credential", res.Routing.Label)
	w.Header().Set("X-Voicepool-Attempts", strconv.Itoa(res.Routing.Attempts))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Audio); err != nil {
		s.logger.Warn("preview write interrupted", "voice", voice.Name, "error", err)
	}
}

// Split plans how a long text is spread across the active credentials.
func (s *Server) Split(w http.ResponseWriter, r *http.Request) {
	var req SplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	chunks, err := s.pool.Plan(r.Context(), req.Text, req.Refresh)
	if chunks == nil {
		chunks = []voicepool.TextChunk{}
	}
	resp := SplitResponse{Chunks: chunks, TotalChars: voicepool.CountChars(req.Text)}

	var shortfall *voicepool.SplitShortfallError
	switch {
	case errors.As(err, &shortfall):
		resp.Uncovered = shortfall.Uncovered
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case err != nil:
		writeError(w, statusFor(err), err.Error())
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

// Quota reports the pool's capacity without per-credential detail.
func (s *Server) Quota(w http.ResponseWriter, r *http.Request) {
	sum, err := s.pool.Summary(r.Context())
	if err != nil {
		s.logger.Error("failed to summarize quota", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, QuotaResponse{
		MaxPerRequest:  sum.MaxPerRequest,
		TotalAvailable: sum.TotalAvailable,
		ActiveCount:    sum.ActiveCount,
	})
}

// Voices lists the provider's voice catalog.
func (s *Server) Voices(w http.ResponseWriter, _ *http.Request) {
	voices := []voicepool.Voice{}
	if s.voices != nil {
		voices = s.voices.Voices()
	}
	writeJSON(w, http.StatusOK, voices)
}
