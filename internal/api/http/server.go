package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/buyback-hub/buyback-hub/internal/application/inventory"
	"github.com/buyback-hub/buyback-hub/internal/application/moderation"
	"github.com/buyback-hub/buyback-hub/internal/application/pipeline"
	"github.com/buyback-hub/buyback-hub/internal/application/reward"
	"github.com/buyback-hub/buyback-hub/internal/telemetry"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	pipelineSvc   *pipeline.Service
	moderationSvc *moderation.Service
	inventorySvc  *inventory.Service
	rewardSvc     *reward.Service
}

func NewServer(
	pipelineSvc *pipeline.Service,
	moderationSvc *moderation.Service,
	inventorySvc *inventory.Service,
	rewardSvc *reward.Service,
) *Server {
	return &Server{
		pipelineSvc:   pipelineSvc,
		moderationSvc: moderationSvc,
		inventorySvc:  inventorySvc,
		rewardSvc:     rewardSvc,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Handle("/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/buybacks", func(r chi.Router) {
			r.Post("/", s.claimBuyback)
			r.Get("/{buybackId}", s.getBuyback)
			r.Post("/{buybackId}/responses", s.submitResponse)
			r.Post("/{buybackId}/cancel", s.cancelBuyback)
			r.Post("/{buybackId}/finalize", s.finalizeBuyback)
			r.Get("/{buybackId}/responses", s.listResponses)
		})

		r.Route("/moderation", func(r chi.Router) {
			r.Get("/pending", s.listPendingModeration)
			r.Post("/{responseId}/decide", s.decideModeration)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/{productId}/availability", s.getAvailability)
			r.Get("/{productId}/eligibility", s.getEligibility)
		})

		r.Route("/payouts", func(r chi.Router) {
			r.Get("/", s.listPayouts)
			r.Post("/{buybackId}/process", s.processPayout)
		})
	})

	return r
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
