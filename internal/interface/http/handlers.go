package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aicompanion/companion-hub/internal/application/command"
	"github.com/aicompanion/companion-hub/internal/application/query"
	"github.com/aicompanion/companion-hub/internal/domain/progression"
	"github.com/aicompanion/companion-hub/internal/domain/shared"
	"github.com/aicompanion/companion-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, r, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, r, http.StatusOK, status)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"healthy": true,
		"uptime":  s.Uptime().Round(time.Second).String(),
		"version": APIVersion,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// handleCatalogSkills handles GET /catalog/skills?category=
func (s *Server) handleCatalogSkills(w http.ResponseWriter, r *http.Request) {
	skills, err := s.deps.ListCatalog.Skills(query.ListCatalogQuery{
		Category: r.URL.Query().Get("category"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, skills)
}

// handleCatalogAchievements handles GET /catalog/achievements?tier=
func (s *Server) handleCatalogAchievements(w http.ResponseWriter, r *http.Request) {
	achievements, err := s.deps.ListCatalog.Achievements(query.ListCatalogQuery{
		Tier: r.URL.Query().Get("tier"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, achievements)
}

// handleCatalogAbilities handles GET /catalog/abilities
func (s *Server) handleCatalogAbilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.deps.ListCatalog.Abilities())
}

// ══════════════════════════════════════════════════════════════════════════════
// EVOLUTION QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// handleGetEvolution handles GET /companions/{id}/evolution
func (s *Server) handleGetEvolution(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.GetEvolution.Handle(r.Context(), query.GetEvolutionQuery{
		CompanionID: chi.URLParam(r, "id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// handleGetEvolutionStats handles GET /companions/{id}/evolution/stats?fresh=true
func (s *Server) handleGetEvolutionStats(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.GetEvolutionStats.Handle(r.Context(), query.GetEvolutionStatsQuery{
		CompanionID: chi.URLParam(r, "id"),
		SkipCache:   queryBool(r, "fresh"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, res.Stats, &ResponseMeta{Cached: res.Cached})
}

// handleGetHistory handles GET /companions/{id}/history?limit=
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	dto, err := s.deps.GetHistory.Handle(r.Context(), query.GetHistoryQuery{
		CompanionID: chi.URLParam(r, "id"),
		Limit:       limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// ══════════════════════════════════════════════════════════════════════════════
// EVOLUTION COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// AwardExperienceRequest is the body of POST /companions/{id}/experience.
// Metrics are decoded into the shape of the named track.
type AwardExperienceRequest struct {
	Track         string          `json:"track"`
	Metrics       json.RawMessage `json:"metrics,omitempty"`
	Multiplier    float64         `json:"multiplier,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// AwardExperienceResponse is returned by POST /companions/{id}/experience.
type AwardExperienceResponse struct {
	CompanionID     string                      `json:"companion_id"`
	Track           progression.Track           `json:"track"`
	Amount          int                         `json:"amount"`
	Level           int                         `json:"level"`
	Stage           progression.Stage           `json:"stage"`
	LevelsGained    int                         `json:"levels_gained"`
	StageEvolved    progression.Stage           `json:"stage_evolved,omitempty"`
	NewAchievements []progression.AchievementID `json:"new_achievements"`
	Events          []string                    `json:"events"`
}

// handleAwardExperience handles POST /companions/{id}/experience
func (s *Server) handleAwardExperience(w http.ResponseWriter, r *http.Request) {
	var req AwardExperienceRequest
	if err := decodeBody(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}

	track, err := progression.ParseTrack(req.Track)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics, err := decodeMetrics(track, req.Metrics)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.AwardExperience.Handle(r.Context(), command.AwardExperienceCommand{
		CompanionID:   chi.URLParam(r, "id"),
		Track:         string(track),
		Metrics:       metrics,
		Multiplier:    req.Multiplier,
		CorrelationID: firstNonEmpty(req.CorrelationID, r.Header.Get("X-Correlation-ID")),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, AwardExperienceResponse{
		CompanionID:     res.CompanionID,
		Track:           res.Track,
		Amount:          res.Amount,
		Level:           res.Level,
		Stage:           res.Stage,
		LevelsGained:    res.LevelsGained,
		StageEvolved:    res.StageEvolved,
		NewAchievements: nonNil(res.NewAchievements),
		Events:          nonNil(res.Events),
	})
}

// UnlockSkillResponse is returned by POST /companions/{id}/skills/{skillID}/unlock.
type UnlockSkillResponse struct {
	CompanionID          string                      `json:"companion_id"`
	SkillID              progression.SkillID         `json:"skill_id"`
	AvailableSkillPoints int                         `json:"available_skill_points"`
	NewAchievements      []progression.AchievementID `json:"new_achievements"`
	Events               []string                    `json:"events"`
}

// handleUnlockSkill handles POST /companions/{id}/skills/{skillID}/unlock
func (s *Server) handleUnlockSkill(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.UnlockSkill.Handle(r.Context(), command.UnlockSkillCommand{
		CompanionID: chi.URLParam(r, "id"),
		SkillID:     chi.URLParam(r, "skillID"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !res.Unlocked {
		writeJSONError(w, r, http.StatusConflict, res.Reason,
			fmt.Sprintf("skill %q was not unlocked", res.SkillID),
			fmt.Sprintf("available_skill_points=%d", res.AvailableSkillPoints))
		return
	}

	writeJSON(w, r, http.StatusOK, UnlockSkillResponse{
		CompanionID:          res.CompanionID,
		SkillID:              res.SkillID,
		AvailableSkillPoints: res.AvailableSkillPoints,
		NewAchievements:      nonNil(res.NewAchievements),
		Events:               nonNil(res.Events),
	})
}

// UseAbilityResponse is returned by POST /companions/{id}/abilities/{abilityID}/use.
type UseAbilityResponse struct {
	CompanionID   string                `json:"companion_id"`
	AbilityID     progression.AbilityID `json:"ability_id"`
	CooldownUntil time.Time             `json:"cooldown_until"`
	Remaining     string                `json:"remaining"`
}

// handleUseAbility handles POST /companions/{id}/abilities/{abilityID}/use
func (s *Server) handleUseAbility(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.UseAbility.Handle(r.Context(), command.UseAbilityCommand{
		CompanionID: chi.URLParam(r, "id"),
		AbilityID:   chi.URLParam(r, "abilityID"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !res.Used {
		details := ""
		if res.Reason == command.RejectOnCooldown {
			seconds := int(res.Remaining.Round(time.Second) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			details = "remaining=" + res.Remaining.Round(time.Second).String()
		}
		writeJSONError(w, r, http.StatusConflict, res.Reason,
			fmt.Sprintf("ability %q was not used", res.AbilityID), details)
		return
	}

	writeJSON(w, r, http.StatusOK, UseAbilityResponse{
		CompanionID:   res.CompanionID,
		AbilityID:     res.AbilityID,
		CooldownUntil: res.CooldownUntil,
		Remaining:     res.Remaining.Round(time.Second).String(),
	})
}

// ResetEvolutionRequest is the optional body of POST /companions/{id}/evolution/reset.
type ResetEvolutionRequest struct {
	PurgeHistory bool `json:"purge_history"`
}

// ResetEvolutionResponse is returned by POST /companions/{id}/evolution/reset.
type ResetEvolutionResponse struct {
	CompanionID   string            `json:"companion_id"`
	PreviousLevel int               `json:"previous_level"`
	PreviousStage progression.Stage `json:"previous_stage"`
	HistoryPurged bool              `json:"history_purged"`
}

// handleResetEvolution handles POST /companions/{id}/evolution/reset
func (s *Server) handleResetEvolution(w http.ResponseWriter, r *http.Request) {
	var req ResetEvolutionRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.ResetEvolution.Handle(r.Context(), command.ResetEvolutionCommand{
		CompanionID:  chi.URLParam(r, "id"),
		PurgeHistory: req.PurgeHistory,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, ResetEvolutionResponse{
		CompanionID:   res.CompanionID,
		PreviousLevel: res.PreviousLevel,
		PreviousStage: res.PreviousStage,
		HistoryPurged: res.HistoryPurged,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeError maps domain errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsNotFound(err) && progression.IsUnknownID(err):
		writeJSONError(w, r, http.StatusNotFound, "unknown_id", err.Error(), "")
	case shared.IsValidation(err):
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), "")
	case shared.IsNotFound(err):
		writeJSONError(w, r, http.StatusNotFound, "not_found", err.Error(), "")
	case shared.IsRetryable(err):
		w.Header().Set("Retry-After", "1")
		writeJSONError(w, r, http.StatusServiceUnavailable, "unavailable", "storage is temporarily unavailable", "")
		s.logger.Warn("request failed with retryable error",
			logger.String("path", r.URL.Path), logger.Err(err))
	default:
		writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "internal error", "")
		s.logger.Error("request failed",
			logger.String("path", r.URL.Path), logger.Err(err))
	}
}

func badRequest(op, msg string) error {
	return shared.NewDomainError("http", op, shared.ErrValidation, msg)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody decodes a JSON body, rejecting unknown fields.
// An empty body is accepted unless required.
func decodeBody(r *http.Request, dst interface{}, required bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			if required {
				return badRequest("DecodeBody", "request body is required")
			}
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return badRequest("DecodeBody", "request body is too large")
		}
		return badRequest("DecodeBody", "malformed JSON: "+err.Error())
	}
	return nil
}

// decodeMetrics decodes raw metrics into the shape of the track.
// Absent or null metrics award the minimum.
func decodeMetrics(track progression.Track, raw json.RawMessage) (progression.Metrics, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	m, err := progression.MetricsForTrack(track)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(m); err != nil {
		return nil, badRequest("DecodeMetrics", fmt.Sprintf("%s metrics: %v", track, err))
	}
	return m, nil
}

// queryInt parses an optional integer query parameter (0 when absent).
func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest("QueryParam", fmt.Sprintf("%s must be an integer", key))
	}
	return n, nil
}

// queryBool extracts a boolean query parameter.
func queryBool(r *http.Request, key string) bool {
	value := strings.ToLower(r.URL.Query().Get(key))
	return value == "true" || value == "1" || value == "yes"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
