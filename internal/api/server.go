// Package api serves ESG records and per-ticker history, and accepts ingestion
// invocations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/esg-pipeline/internal/ingest"
	"github.com/sells-group/esg-pipeline/internal/model"
	"github.com/sells-group/esg-pipeline/internal/store"
)

const (
	maxEventBytes = 1 << 20
	allPageSize   = 1000
)

// Ingester runs one ingestion invocation.
type Ingester interface {
	Run(ctx context.Context, ref model.SourceRef) ingest.Report
}

// Options configures the HTTP surface.
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// Server routes API requests to the store and the ingester.
type Server struct {
	store    store.Store
	ingester Ingester
	router   chi.Router
}

// New builds a Server. ingester may be nil, in which case /invoke is not mounted.
func New(st store.Store, ingester Ingester, opts Options) *Server {
	s := &Server{store: st, ingester: ingester, router: chi.NewRouter()}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Timeout(timeout))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/all", s.handleAll)
	s.router.Get("/api/esg/{ticker}", s.handleHistory)
	if ingester != nil {
		s.router.Post("/invoke", s.handleInvoke)
	}
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

type historyResponse struct {
	Ticker            string         `json:"ticker"`
	HistoricalRatings []model.Record `json:"historical_ratings"`
}

type allResponse struct {
	Message string         `json:"message"`
	Data    []model.Record `json:"data"`
	Cursor  string         `json:"cursor,omitempty"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	recs, err := s.store.History(r.Context(), strings.ToLower(ticker))
	if err != nil {
		zap.L().Error("api: history lookup failed", zap.String("ticker", ticker), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "Error fetching ESG data", Error: err.Error()})
		return
	}
	if len(recs) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "No ESG data found for ticker: " + ticker})
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Ticker: ticker, HistoricalRatings: recs})
}

// handleAll returns every record in key order. With ?limit=N it returns one
// page and the cursor for the next; pass it back as ?cursor=.
func (s *Server) handleAll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cursor := q.Get("cursor")
	if cursor != "" {
		if _, err := store.DecodeCursor(cursor); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid cursor", Error: err.Error()})
			return
		}
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Message: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	var resp allResponse
	for {
		size := allPageSize
		if limit > 0 {
			size = limit
		}
		page, err := s.store.ScanPage(r.Context(), cursor, size)
		if err != nil {
			zap.L().Error("api: scan failed", zap.String("cursor", cursor), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "Error fetching ESG data", Error: err.Error()})
			return
		}
		resp.Data = append(resp.Data, page.Records...)
		cursor = page.Cursor
		if limit > 0 {
			resp.Cursor = cursor
			break
		}
		if cursor == "" {
			break
		}
	}

	if len(resp.Data) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "No ESG data found"})
		return
	}
	resp.Message = "All ESG data retrieved successfully"
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body", Error: err.Error()})
		return
	}
	ref, err := ingest.ParseEvent(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid event", Error: err.Error()})
		return
	}
	rep := s.ingester.Run(r.Context(), ref)
	writeJSON(w, rep.StatusCode, rep)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
