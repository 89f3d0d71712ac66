package risk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"homedash/internal/handlers"
	httputil "homedash/internal/http"
	"homedash/internal/models"
	"homedash/internal/services/metrics"
	"homedash/internal/services/montecarlo"
	"homedash/internal/services/portfolio"
)

// errNoResult is returned by chart endpoints before any run has committed
var errNoResult = errors.New("no simulation has completed yet")

// streamWriteTimeout bounds a single websocket push
const streamWriteTimeout = 5 * time.Second

var (
	portfolios     *portfolio.Manager
	runner         *montecarlo.Runner
	metricsSvc     *metrics.Service
	originPatterns []string
	logger         = zerolog.Nop()
)

// Initialize sets up the handler dependencies. allowedOrigins uses the same
// values as the CORS configuration.
func Initialize(pm *portfolio.Manager, rn *montecarlo.Runner, ms *metrics.Service, allowedOrigins []string, log zerolog.Logger) {
	portfolios = pm
	runner = rn
	metricsSvc = ms
	originPatterns = hostPatterns(allowedOrigins)
	logger = log.With().Str("component", "risk_handlers").Logger()
}

// RegisterRoutes registers all risk routes
func RegisterRoutes(r chi.Router) {
	r.Get("/risk", handleRisk)
	r.Post("/risk/simulate", handleSimulate)
	r.Get("/risk/chart/distribution", handleDistributionChart)
	r.Get("/risk/chart/fan", handleFanChart)
	r.Get("/risk/horizons", handleHorizons)
	r.Post("/risk/positions", handleAddPosition)
	r.Put("/risk/positions/{id}", handleUpdatePosition)
	r.Put("/risk/positions/{id}/volatility", handleAdjustVolatility)
	r.Delete("/risk/positions/{id}", handleDeletePosition)
	r.Post("/risk/positions/{id}/restore", handleRestorePosition)
}

// RegisterStreamRoutes registers the long-lived websocket route, kept apart so
// request timeouts do not apply to it
func RegisterStreamRoutes(r chi.Router) {
	r.Get("/risk/stream", handleStream)
}

func handleRisk(w http.ResponseWriter, r *http.Request) {
	p, err := portfolios.Load()
	if err != nil {
		handlers.Error(w, err)
		return
	}

	cfg := p.SimulationConfig()
	data := models.RiskPageData{
		Portfolio: p,
		Summary:   metricsSvc.Summarize(p.Snapshot(), cfg.HorizonYears),
	}

	// A failed latest run hides any earlier result
	if c, ok := runner.Latest(); ok {
		data.RunID = c.RunID
		if c.Err != nil {
			data.Error = c.Err.Error()
		} else {
			data.Result = c.Result.WithoutPaths()
		}
	}

	httputil.Respond(w, r, http.StatusOK, data)
}

type simulateResponse struct {
	RunID  uint64                   `json:"run_id"`
	Result *models.SimulationResult `json:"result"`
}

func handleSimulate(w http.ResponseWriter, r *http.Request) {
	p, err := portfolios.Load()
	if err != nil {
		handlers.Error(w, err)
		return
	}

	cfg := p.SimulationConfig()
	if cfg.HorizonYears, err = httputil.ParseFloat(r, "horizon_years", cfg.HorizonYears); err != nil {
		httputil.FieldErrorResponse(w, err.Error(), "horizonYears", http.StatusBadRequest)
		return
	}
	if r.FormValue("horizon_years") != "" && !models.IsHorizonChoice(cfg.HorizonYears) {
		httputil.FieldErrorResponse(w, "horizon_years must be one of "+horizonChoiceList(), "horizonYears", http.StatusBadRequest)
		return
	}
	if cfg.PathCount, err = httputil.ParseInt(r, "path_count", cfg.PathCount); err != nil {
		httputil.FieldErrorResponse(w, err.Error(), "pathCount", http.StatusBadRequest)
		return
	}
	// Oversized requests are refused here and never become a run
	if cfg.PathCount > models.MaxPathCount {
		httputil.FieldErrorResponse(w, fmt.Sprintf("path_count must be at most %d", models.MaxPathCount), "pathCount", http.StatusBadRequest)
		return
	}

	outcome, err := runner.Run(r.Context(), p.Snapshot(), cfg)
	if err != nil {
		// client went away; the run still commits in the background
		return
	}
	if outcome.Stale {
		httputil.ErrorResponse(w, fmt.Sprintf("run %d was superseded by a newer run", outcome.RunID), http.StatusConflict)
		return
	}
	if outcome.Err != nil {
		handlers.Error(w, outcome.Err)
		return
	}

	// Remember the chosen settings for the next page load
	if _, err := portfolios.SetSimulationConfig(cfg); err != nil {
		logger.Warn().Err(err).Msg("Failed to save simulation settings")
	}

	result := outcome.Result
	if !httputil.ParseBool(r, "include_paths") {
		result = result.WithoutPaths()
	}

	httputil.Respond(w, r, http.StatusOK, simulateResponse{RunID: outcome.RunID, Result: result})
}

func horizonChoiceList() string {
	choices := make([]string, len(models.HorizonChoices))
	for i, h := range models.HorizonChoices {
		choices[i] = strconv.FormatFloat(h, 'g', -1, 64)
	}
	return strings.Join(choices, ", ")
}

// latestResult returns the committed result or the error to report instead
func latestResult() (montecarlo.Commit, error) {
	c, ok := runner.Latest()
	if !ok {
		return montecarlo.Commit{}, errNoResult
	}
	if c.Err != nil {
		return c, c.Err
	}
	return c, nil
}

func respondLatestError(w http.ResponseWriter, err error) {
	if errors.Is(err, errNoResult) {
		httputil.ErrorResponse(w, err.Error(), http.StatusNotFound)
		return
	}
	handlers.Error(w, err)
}

type distributionChart struct {
	RunID         uint64               `json:"run_id"`
	TotalInvested float64              `json:"total_invested"`
	P10           float64              `json:"p10"`
	P50           float64              `json:"p50"`
	P90           float64              `json:"p90"`
	Buckets       []models.BucketDatum `json:"buckets"`
}

func handleDistributionChart(w http.ResponseWriter, r *http.Request) {
	c, err := latestResult()
	if err != nil {
		respondLatestError(w, err)
		return
	}

	httputil.Respond(w, r, http.StatusOK, distributionChart{
		RunID:         c.RunID,
		TotalInvested: c.Result.TotalInvested,
		P10:           c.Result.P10,
		P50:           c.Result.P50,
		P90:           c.Result.P90,
		Buckets:       c.Result.Buckets,
	})
}

type fanChart struct {
	RunID         uint64            `json:"run_id"`
	HorizonYears  float64           `json:"horizon_years"`
	TotalInvested float64           `json:"total_invested"`
	Points        []models.FanPoint `json:"points"`
}

func handleFanChart(w http.ResponseWriter, r *http.Request) {
	c, err := latestResult()
	if err != nil {
		respondLatestError(w, err)
		return
	}

	httputil.Respond(w, r, http.StatusOK, fanChart{
		RunID:         c.RunID,
		HorizonYears:  c.Result.Config.HorizonYears,
		TotalInvested: c.Result.TotalInvested,
		Points:        c.Result.FanSeries,
	})
}

type horizonsResponse struct {
	Choices             []float64 `json:"choices"`
	DefaultHorizonYears float64   `json:"default_horizon_years"`
	DefaultPathCount    int       `json:"default_path_count"`
}

func handleHorizons(w http.ResponseWriter, r *http.Request) {
	cfg := models.DefaultSimulationConfig()
	if p, err := portfolios.Load(); err == nil {
		cfg = p.SimulationConfig()
	}

	httputil.Respond(w, r, http.StatusOK, horizonsResponse{
		Choices:             models.HorizonChoices,
		DefaultHorizonYears: cfg.HorizonYears,
		DefaultPathCount:    cfg.PathCount,
	})
}

// positionRequest is the JSON body for adding or replacing a position.
// value accepts a number or a string and is rounded to cents.
type positionRequest struct {
	Ticker     string          `json:"ticker"`
	Name       string          `json:"name"`
	Value      decimal.Decimal `json:"value"`
	Volatility float64         `json:"volatility"`
	Drift      float64         `json:"drift"`
	Account    string          `json:"account"`
}

func (req positionRequest) position() models.Position {
	return models.Position{
		Ticker:     req.Ticker,
		Name:       req.Name,
		Value:      req.Value.Round(2).InexactFloat64(),
		Volatility: req.Volatility,
		Drift:      req.Drift,
		Account:    req.Account,
	}
}

// parsePosition reads a position from a JSON body or from form fields
func parsePosition(r *http.Request) (models.Position, error) {
	var req positionRequest

	if httputil.IsJSON(r) {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			return models.Position{}, err
		}
		return req.position(), nil
	}

	raw := strings.TrimSpace(r.FormValue("value"))
	if raw == "" {
		return models.Position{}, fmt.Errorf("missing required field: value")
	}
	value, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return models.Position{}, fmt.Errorf("invalid value: %q is not an amount", raw)
	}

	req.Ticker = r.FormValue("ticker")
	req.Name = r.FormValue("name")
	req.Account = r.FormValue("account")
	req.Value = value
	if req.Volatility, err = httputil.ParseFloat(r, "volatility", 0); err != nil {
		return models.Position{}, err
	}
	if req.Drift, err = httputil.ParseFloat(r, "drift", 0); err != nil {
		return models.Position{}, err
	}

	return req.position(), nil
}

func handleAddPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := parsePosition(r)
	if err != nil {
		httputil.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := portfolios.AddPosition(pos)
	respondPortfolio(w, r, p, err, http.StatusCreated)
}

func handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	pos, err := parsePosition(r)
	if err != nil {
		httputil.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := portfolios.UpdatePosition(chi.URLParam(r, "id"), pos)
	respondPortfolio(w, r, p, err, http.StatusOK)
}

func handleAdjustVolatility(w http.ResponseWriter, r *http.Request) {
	vol, err := httputil.ParseFloat(r, "volatility", -1)
	if err != nil {
		httputil.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := portfolios.AdjustVolatility(chi.URLParam(r, "id"), vol)
	respondPortfolio(w, r, p, err, http.StatusOK)
}

func handleDeletePosition(w http.ResponseWriter, r *http.Request) {
	p, err := portfolios.RemovePosition(chi.URLParam(r, "id"))
	respondPortfolio(w, r, p, err, http.StatusOK)
}

func handleRestorePosition(w http.ResponseWriter, r *http.Request) {
	p, err := portfolios.RestorePosition(chi.URLParam(r, "id"))
	respondPortfolio(w, r, p, err, http.StatusOK)
}

// respondPortfolio answers a position edit and re-simulates the edited
// portfolio in the background
func respondPortfolio(w http.ResponseWriter, r *http.Request, p *models.Portfolio, err error, statusCode int) {
	if err != nil {
		handlers.Error(w, err)
		return
	}

	runID, _ := runner.Submit(p.Snapshot(), p.SimulationConfig())
	logger.Debug().Uint64("run_id", runID).Int("positions", len(p.Positions)).Msg("Portfolio changed; simulation submitted")

	httputil.Respond(w, r, statusCode, p)
}

// streamMessage is pushed to websocket clients on every commit
type streamMessage struct {
	RunID       uint64                   `json:"run_id"`
	CommittedAt time.Time                `json:"committed_at"`
	Result      *models.SimulationResult `json:"result,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

func newStreamMessage(c montecarlo.Commit) streamMessage {
	msg := streamMessage{RunID: c.RunID, CommittedAt: c.CommittedAt}
	if c.Err != nil {
		msg.Error = c.Err.Error()
	} else if c.Result != nil {
		msg.Result = c.Result.WithoutPaths()
	}
	return msg
}

func handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originPatterns})
	if err != nil {
		logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	// Clients only listen; reading is handled so close frames are processed
	ctx := conn.CloseRead(r.Context())

	commits, unsubscribe := runner.Subscribe(8)
	defer unsubscribe()

	if c, ok := runner.Latest(); ok {
		if err := writeStream(ctx, conn, c); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case c, ok := <-commits:
			if !ok {
				return
			}
			if err := writeStream(ctx, conn, c); err != nil {
				logger.Debug().Err(err).Msg("Websocket client dropped")
				return
			}
		}
	}
}

func writeStream(ctx context.Context, conn *websocket.Conn, c montecarlo.Commit) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, newStreamMessage(c))
}

// hostPatterns converts CORS origins into websocket host patterns
func hostPatterns(origins []string) []string {
	var patterns []string
	for _, origin := range origins {
		if origin == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		} else {
			patterns = append(patterns, origin)
		}
	}
	return patterns
}
