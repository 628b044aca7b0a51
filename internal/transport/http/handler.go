// Package http exposes the data service over HTTP: point-in-time symbol
// resolution, wide-table field fetches, expression evaluation, universe
// listing and cache administration.
package http

import (
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quantdl/internal/dataaccess"
	"quantdl/internal/session"
	"quantdl/internal/table"
	"quantdl/pkg/contracts/domain"
)

// Handler serves the data API.
type Handler struct {
	client    *dataaccess.Client
	logger    *slog.Logger
	validate  *validator.Validate
	chunkSize int
	maxConc   int
}

// NewHandler builds a Handler on the data access client. chunkSize and
// maxConcurrency parameterize the sessions opened for eval requests.
func NewHandler(client *dataaccess.Client, logger *slog.Logger, chunkSize, maxConcurrency int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		client:    client,
		logger:    logger.With(slog.String("component", "data_handler")),
		validate:  validator.New(),
		chunkSize: chunkSize,
		maxConc:   maxConcurrency,
	}
}

// Routes returns the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/resolve", h.Resolve)
	r.Post("/data", h.Data)
	r.Post("/eval", h.Eval)
	r.Get("/universe/{name}", h.Universe)
	r.Route("/cache", func(r chi.Router) {
		r.Get("/stats", h.CacheStats)
		r.Delete("/", h.CacheClear)
	})
	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Resolve handles POST /resolve.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req domain.ResolveRequest
	if !h.decode(w, r, &req) {
		return
	}
	asOf, err := table.ParseDate(req.AsOf)
	if err != nil {
		renderValidation(w, r, "as_of must be a YYYY-MM-DD date")
		return
	}
	records, err := h.client.Securities().ResolveBatch(r.Context(), req.Symbols, asOf)
	if err != nil {
		renderError(w, r, h.logger, err)
		return
	}
	resp := domain.ResolveResponse{
		AsOf:       req.AsOf,
		Securities: make([]domain.ResolvedSecurity, len(req.Symbols)),
	}
	for i, rec := range records {
		resp.Securities[i] = domain.ResolvedSecurity{
			Symbol:   req.Symbols[i],
			Resolved: rec != nil,
			Record:   rec,
		}
	}
	render.JSON(w, r, resp)
}

// Data handles POST /data.
func (h *Handler) Data(w http.ResponseWriter, r *http.Request) {
	var req domain.DataRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, end, ok := h.dateRange(w, r, req.Start, req.End)
	if !ok {
		return
	}
	spec := domain.DataSpec{Source: domain.SourceCategory(req.Source), Field: req.Field}
	t, err := h.client.Fetch(r.Context(), spec, req.Symbols, start, end)
	if err != nil {
		renderError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, tableResponse(t))
}

// Eval handles POST /eval. Each request runs in its own session scope.
func (h *Handler) Eval(w http.ResponseWriter, r *http.Request) {
	var req domain.EvalRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, end, ok := h.dateRange(w, r, req.Start, req.End)
	if !ok {
		return
	}
	opts := []session.Option{
		session.WithMaxConcurrency(h.maxConc),
		session.WithLogger(h.logger),
	}
	chunk := req.ChunkSize
	if chunk == 0 {
		chunk = h.chunkSize
	}
	opts = append(opts, session.WithChunkSize(chunk))

	sess, err := session.New(r.Context(), h.client, req.Symbols, start, end, opts...)
	if err != nil {
		renderError(w, r, h.logger, err)
		return
	}
	defer sess.Close()
	result, err := sess.Eval(r.Context(), req.Expression)
	if err != nil {
		renderError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, tableResponse(result.Table()))
}

// Universe handles GET /universe/{name}.
func (h *Handler) Universe(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		renderValidation(w, r, "universe name is required")
		return
	}
	symbols, err := h.client.Universe(r.Context(), name)
	if err != nil {
		renderError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, domain.UniverseResponse{Name: name, Symbols: symbols})
}

// CacheStats handles GET /cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.client.CacheStats())
}

// CacheClear handles DELETE /cache.
func (h *Handler) CacheClear(w http.ResponseWriter, r *http.Request) {
	if err := h.client.ClearCache(); err != nil {
		renderError(w, r, h.logger, err)
		return
	}
	render.NoContent(w, r)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// decode binds and validates a JSON request body. Returns false after writing
// the error response.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		renderValidation(w, r, "invalid JSON payload")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		renderValidation(w, r, err.Error())
		return false
	}
	return true
}

func (h *Handler) dateRange(w http.ResponseWriter, r *http.Request, startStr, endStr string) (time.Time, time.Time, bool) {
	start, err := table.ParseDate(startStr)
	if err != nil {
		renderValidation(w, r, "start must be a YYYY-MM-DD date")
		return time.Time{}, time.Time{}, false
	}
	end, err := table.ParseDate(endStr)
	if err != nil {
		renderValidation(w, r, "end must be a YYYY-MM-DD date")
		return time.Time{}, time.Time{}, false
	}
	if end.Before(start) {
		renderValidation(w, r, "end precedes start")
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// tableResponse converts a wide table to its JSON form. NaN cells become
// null, which plain float64 marshaling cannot express.
func tableResponse(t *table.WideTable) domain.TableResponse {
	resp := domain.TableResponse{
		Dates:   make([]string, t.NumRows()),
		Columns: t.Columns(),
		Values:  make([][]*float64, t.NumRows()),
	}
	for i, d := range t.Dates() {
		resp.Dates[i] = d.Format(table.DateLayout)
		row := make([]*float64, t.NumColumns())
		for j := 0; j < t.NumColumns(); j++ {
			v := t.Cell(i, j)
			if !math.IsNaN(v) {
				row[j] = &v
			}
		}
		resp.Values[i] = row
	}
	return resp
}
