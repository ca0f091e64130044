package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/opensource-finance/claimrisk/internal/analysis"
	"github.com/opensource-finance/claimrisk/internal/domain"
)

// maxBodySize caps request bodies.
const maxBodySize = 1 << 20

// Messages for absent cached analyses.
const (
	msgResultNotFound      = "Analysis not found. Please run analysis first."
	msgExplanationNotFound = "Analysis not found for this claim"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	svc      *analysis.Service
	validate *validator.Validate
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(svc *analysis.Service, version string) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		svc:      svc,
		validate: v,
		version:  version,
	}
}

// Analyze handles POST /api/analysis/analyze.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req domain.AnalysisRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.svc.Analyze(r.Context(), req.ClaimID, req.ForceReanalysis)
	if err != nil {
		h.analysisError(w, req.ClaimID, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetResult handles GET /api/analysis/results/{claimID}.
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "claimID")

	result, err := h.svc.Cached(r.Context(), claimID)
	if errors.Is(err, domain.ErrAnalysisNotFound) {
		writeError(w, http.StatusNotFound, msgResultNotFound)
		return
	}
	if err != nil {
		slog.Error("failed to read cached analysis", "claim_id", claimID, "error", err)
		writeError(w, http.StatusInternalServerError, "Error retrieving analysis: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// DeleteResult handles DELETE /api/analysis/results/{claimID}.
func (h *Handler) DeleteResult(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "claimID")

	if err := h.svc.Evict(r.Context(), claimID); err != nil {
		slog.Error("failed to evict analysis", "claim_id", claimID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Batch handles POST /api/analysis/batch.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.runBatch(w, r, req)
}

// BatchQuery handles GET /api/analysis/batch-analyze?claim_ids=a&claim_ids=b.
func (h *Handler) BatchQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := domain.BatchRequest{ClaimIDs: q["claim_ids"]}

	if v := q.Get("force_reanalysis"); v != "" {
		force, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "force_reanalysis must be a boolean")
			return
		}
		req.ForceReanalysis = force
	}

	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	h.runBatch(w, r, req)
}

func (h *Handler) runBatch(w http.ResponseWriter, r *http.Request, req domain.BatchRequest) {
	out, err := h.svc.Batch(r.Context(), req.ClaimIDs, req.ForceReanalysis)
	if err != nil {
		h.analysisError(w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// FeatureImportance handles GET /api/analysis/feature-importance.
func (h *Handler) FeatureImportance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"features":      h.svc.FeatureImportance(),
		"model_version": h.svc.ModelVersion(),
	})
}

// Explain handles POST and GET /api/analysis/explain/{claimID}.
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "claimID")

	explanation, err := h.svc.Explain(r.Context(), claimID)
	if errors.Is(err, domain.ErrAnalysisNotFound) {
		writeError(w, http.StatusNotFound, msgExplanationNotFound)
		return
	}
	if err != nil {
		slog.Error("failed to explain analysis", "claim_id", claimID, "error", err)
		writeError(w, http.StatusInternalServerError, "Error generating explanation: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, explanation)
}

// SubmitClaim handles POST /api/claims.
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	var claim domain.Claim
	if !h.decode(w, r, &claim) {
		return
	}

	id, err := h.svc.SubmitClaim(r.Context(), &claim)
	switch {
	case errors.Is(err, domain.ErrClaimExists):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("failed to submit claim", "claim_id", claim.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save claim")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"claim_id": id})
}

// GetClaim handles GET /api/claims/{claimID}.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "claimID")

	claim, err := h.svc.GetClaim(r.Context(), claimID)
	if errors.Is(err, domain.ErrClaimNotFound) {
		writeError(w, http.StatusNotFound, "claim not found")
		return
	}
	if err != nil {
		slog.Error("failed to get claim", "claim_id", claimID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get claim")
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

// BenfordChart handles GET /api/claims/{claimID}/benford.
func (h *Handler) BenfordChart(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "claimID")

	chart, err := h.svc.BenfordChart(r.Context(), claimID)
	if errors.Is(err, domain.ErrClaimNotFound) {
		writeError(w, http.StatusNotFound, "claim not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, chart)
}

// ListRules returns the active rules in evaluation order.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	active := h.svc.Rules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": active,
		"count": len(active),
	})
}

// CreateRule validates, stores and loads a custom CEL rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.RuleConfig
	if !h.decode(w, r, &rule) {
		return
	}

	err := h.svc.SaveRule(r.Context(), &rule)
	if errors.Is(err, domain.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to save rule", "id", rule.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save rule")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule saved and loaded.",
	})
}

// ReloadRules recompiles custom rules from the store.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.ReloadRules(r.Context())
	if err != nil {
		slog.Error("failed to reload rules", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   count,
	})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":        "healthy",
		"version":       h.version,
		"model_version": h.svc.ModelVersion(),
	})
}

// Ready reports whether the store, the cache and the bus are reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		slog.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// analysisError maps an analysis failure onto its status code.
func (h *Handler) analysisError(w http.ResponseWriter, claimID string, err error) {
	switch {
	case errors.Is(err, domain.ErrClaimNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("Claim %s not found", claimID))
	case errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("analysis failed", "claim_id", claimID, "error", err)
		writeError(w, http.StatusInternalServerError, "Error analyzing claim: "+err.Error())
	}
}

// validationMessage renders validator errors as "field is tag" clauses.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must contain at least %s item(s)", fe.Field(), fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
