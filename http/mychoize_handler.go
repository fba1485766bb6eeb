package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yourorg/rental-api/internal/logger"
	"github.com/yourorg/rental-api/internal/search"
	"github.com/yourorg/rental-api/mychoize"
)

// Searcher is implemented by *search.Service.
type Searcher interface {
	Rentals(ctx context.Context, req search.Request) (search.RentalResult, error)
	Subscriptions(ctx context.Context, req search.Request) (search.SubscriptionResult, error)
	Locations(ctx context.Context, req search.Request) (json.RawMessage, error)
}

type MyChoizeDeps struct {
	Search Searcher
	Logger *zap.Logger
}

type SearchRequest struct {
	City string `json:"city" validate:"required"`
	Pick string `json:"pick" validate:"required"`
	Drop string `json:"drop" validate:"required"`
	// Hours overrides the trip length used for km allowances.
	Hours *float64 `json:"hours,omitempty" validate:"omitempty,gt=0,lte=8760"`
}

// statusClientClosedRequest is nginx's code for a request the client abandoned.
const statusClientClosedRequest = 499

var validate = validator.New(validator.WithRequiredStructEnabled())

func RegisterMyChoize(r chi.Router, d MyChoizeDeps) {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	h := &mychoizeHandler{search: d.Search, logger: d.Logger.Named("http")}

	r.Route("/v1/mychoize", func(r chi.Router) {
		r.Get("/rentals", withQuery(h.rentals))
		r.Post("/rentals", withBody(h.rentals))
		r.Get("/subscriptions", withQuery(h.subscriptions))
		r.Post("/subscriptions", withBody(h.subscriptions))
		r.Get("/locations", withQuery(h.locations))
		r.Post("/locations", withBody(h.locations))
		r.Get("/packages", h.packages)
	})
}

type mychoizeHandler struct {
	search Searcher
	logger *zap.Logger
}

type searchFunc func(w http.ResponseWriter, req *http.Request, sr search.Request)

func withBody(next searchFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body SearchRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, req, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
		handleSearch(w, req, body, next)
	}
}

func withQuery(next searchFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		body := SearchRequest{City: q.Get("city"), Pick: q.Get("pick"), Drop: q.Get("drop")}
		if v := q.Get("hours"); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				writeError(w, req, http.StatusBadRequest, "invalid_hours", err.Error())
				return
			}
			body.Hours = &f
		}
		handleSearch(w, req, body, next)
	}
}

func handleSearch(w http.ResponseWriter, req *http.Request, body SearchRequest, next searchFunc) {
	if err := validate.Struct(body); err != nil {
		writeError(w, req, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	pick, drop, err := search.ParseWindow(body.Pick, body.Drop)
	if err != nil {
		writeError(w, req, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}
	sr := search.Request{City: body.City, Pick: pick, Drop: drop}
	if body.Hours != nil {
		sr.Hours = *body.Hours
	}
	next(w, req, sr)
}

func (h *mychoizeHandler) rentals(w http.ResponseWriter, req *http.Request, sr search.Request) {
	res, err := h.search.Rentals(req.Context(), sr)
	if err != nil {
		h.searchError(w, req, "rentals", err)
		return
	}
	render.JSON(w, req, map[string]any{
		"ok":       true,
		"count":    len(res.Cars),
		"duration": res.Duration,
		"hours":    res.Hours,
		"cache":    res.Cache,
		"cars":     res.Cars,
	})
}

func (h *mychoizeHandler) subscriptions(w http.ResponseWriter, req *http.Request, sr search.Request) {
	res, err := h.search.Subscriptions(req.Context(), sr)
	if err != nil {
		h.searchError(w, req, "subscriptions", err)
		return
	}
	render.JSON(w, req, map[string]any{
		"ok":    true,
		"count": len(res.Cars),
		"cache": res.Cache,
		"cars":  res.Cars,
	})
}

func (h *mychoizeHandler) locations(w http.ResponseWriter, req *http.Request, sr search.Request) {
	locs, err := h.search.Locations(req.Context(), sr)
	if err != nil {
		h.searchError(w, req, "locations", err)
		return
	}
	render.JSON(w, req, map[string]any{"ok": true, "locations": locs})
}

func (h *mychoizeHandler) packages(w http.ResponseWriter, req *http.Request) {
	hours := 24.0
	if v := req.URL.Query().Get("hours"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			writeError(w, req, http.StatusBadRequest, "invalid_hours", "hours must be a non-negative number")
			return
		}
		hours = f
	}
	labels := map[mychoize.RateBasis]string{}
	for _, rb := range []mychoize.RateBasis{mychoize.FixedFare, mychoize.MonthlyPlan, mychoize.DailyRental} {
		labels[rb] = mychoize.FindPackage(rb)
	}
	render.JSON(w, req, map[string]any{
		"ok":       true,
		"hours":    hours,
		"total_km": mychoize.TotalKms(hours),
		"packages": labels,
	})
}

func (h *mychoizeHandler) searchError(w http.ResponseWriter, req *http.Request, op string, err error) {
	switch {
	case search.IsInvalid(err):
		writeError(w, req, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, context.Canceled):
		// client went away; nothing reaches it, the status is for the access log
		w.WriteHeader(statusClientClosedRequest)
	case mychoize.IsUnavailable(err) || errors.Is(err, context.DeadlineExceeded):
		logger.FromContext(req.Context(), h.logger).Warn("upstream error", zap.String("op", op), zap.Error(err))
		writeError(w, req, http.StatusBadGateway, "upstream_error", err.Error())
	default:
		logger.FromContext(req.Context(), h.logger).Error("search failed", zap.String("op", op), zap.Error(err))
		writeError(w, req, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, req *http.Request, status int, code, detail string) {
	render.Status(req, status)
	render.JSON(w, req, map[string]any{"error": code, "detail": detail})
}
