package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/trogers1052/nzx-scorer/internal/database"
	"github.com/trogers1052/nzx-scorer/internal/models"
	"github.com/trogers1052/nzx-scorer/internal/scoring"
)

const (
	defaultLimit = 30
	maxLimit     = 500
	dateFormat   = "2006-01-02"
	maxScoreBody = 32 << 20
)

// Repository is the read side of the database used by the handlers
type Repository interface {
	Ping() error
	GetLatestRun() (*models.ScoredBatch, error)
	GetRun(runID string) (*models.ScoredBatch, error)
	GetRunByDate(date time.Time) (*models.ScoredBatch, error)
	GetRunFailures(runID string) ([]models.CompanyFailure, error)
	ListRuns(limit int) ([]*models.RunSummary, error)
	GetCompanyScores(ticker string, limit int) ([]*models.ScoreHistoryRow, error)
	GetPriceHistory(ticker string, from, to time.Time) ([]*models.PriceHistoryRow, error)
	GetLatestPrice(ticker string) (*models.PriceHistoryRow, error)
}

// LatestCache serves the most recent scored batch and latest closes
type LatestCache interface {
	LatestBatch(ctx context.Context) (*models.ScoredBatch, error)
	LatestPrice(ctx context.Context, ticker string, load func() (*models.PriceHistoryRow, error)) (*models.PriceHistoryRow, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	repo    Repository
	cache   LatestCache
	scoring scoring.Options
	maxBody int64
	log     zerolog.Logger
}

// NewHandler creates a new Handler. cache may be nil.
func NewHandler(repo Repository, cache LatestCache, opts scoring.Options, log zerolog.Logger) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		scoring: opts,
		maxBody: maxScoreBody,
		log:     log.With().Str("module", "api").Logger(),
	}
}

// GetLatestRun handles GET /runs/latest
func (h *Handler) GetLatestRun(w http.ResponseWriter, r *http.Request) {
	if h.cache != nil {
		batch, err := h.cache.LatestBatch(r.Context())
		if err != nil {
			h.log.Warn().Err(err).Msg("latest batch cache unavailable")
		}
		if batch != nil {
			respondJSON(w, http.StatusOK, batch)
			return
		}
	}

	batch, err := h.repo.GetLatestRun()
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

// ListRuns handles GET /runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	runs, err := h.repo.ListRuns(limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if runs == nil {
		runs = []*models.RunSummary{}
	}
	respondJSON(w, http.StatusOK, runs)
}

// GetRun handles GET /runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}

	batch, err := h.repo.GetRun(id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

// GetRunByDate handles GET /runs/date/{date}
func (h *Handler) GetRunByDate(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse(dateFormat, mux.Vars(r)["date"])
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	batch, err := h.repo.GetRunByDate(date)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

// GetRunFailures handles GET /runs/{id}/failures
func (h *Handler) GetRunFailures(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}

	// distinguishes an unknown run from a run without failures
	if _, err := h.repo.GetRun(id); err != nil {
		h.respondError(w, err)
		return
	}

	failures, err := h.repo.GetRunFailures(id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, failures)
}

// GetCompanyScores handles GET /companies/{ticker}/scores
func (h *Handler) GetCompanyScores(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]

	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	scores, err := h.repo.GetCompanyScores(ticker, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if len(scores) == 0 {
		http.Error(w, "no scores found for "+ticker, http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, scores)
}

// GetPriceHistory handles GET /companies/{ticker}/prices
func (h *Handler) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]

	to := time.Now()
	from := to.AddDate(-1, 0, 0)
	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(dateFormat, v); err != nil {
			http.Error(w, "from must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(dateFormat, v); err != nil {
			http.Error(w, "to must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}
	if to.Before(from) {
		http.Error(w, "to is before from", http.StatusBadRequest)
		return
	}

	prices, err := h.repo.GetPriceHistory(ticker, from, to)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if prices == nil {
		prices = []*models.PriceHistoryRow{}
	}
	respondJSON(w, http.StatusOK, prices)
}

// GetLatestPrice handles GET /companies/{ticker}/prices/latest
func (h *Handler) GetLatestPrice(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	load := func() (*models.PriceHistoryRow, error) {
		return h.repo.GetLatestPrice(ticker)
	}

	var price *models.PriceHistoryRow
	var err error
	if h.cache != nil {
		price, err = h.cache.LatestPrice(r.Context(), ticker, load)
	} else {
		price, err = load()
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, price)
}

// Score handles POST /score. The posted batch is scored and returned; nothing
// is stored or delivered.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	var batch models.ScrapeBatch
	body := http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(body).Decode(&batch); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	opts := h.scoring
	if v := r.URL.Query().Get("isolate"); v != "" {
		isolate, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "isolate must be a boolean", http.StatusBadRequest)
			return
		}
		opts.IsolateFailures = isolate
	}

	result, err := scoring.NewScorer(opts, h.log).Score(batch)
	if err != nil {
		h.log.Info().Err(err).Msg("posted batch failed scoring")
		respondJSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, database.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.log.Error().Err(err).Msg("request failed")
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func runID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
