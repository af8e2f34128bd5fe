package handler

import (
	"errors"
	"net/http"

	"dizzycode.xyz/dca-backtest/backtesting/batch"
	"dizzycode.xyz/dca-backtest/backtesting/engine"
	"dizzycode.xyz/dca-backtest/backtesting/loader"
	"dizzycode.xyz/dca-backtest/internal/application"
	"dizzycode.xyz/dca-backtest/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SourceFactory resolves the candle source for a market when a request
// carries no inline candles.
type SourceFactory func(instID, bar string) (loader.Source, error)

// RunDTO is one job of a batch response.
type RunDTO struct {
	RunID      string         `json:"runId,omitempty"`
	Job        string         `json:"job"`
	Status     string         `json:"status"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"durationMs"`
	Report     *engine.Report `json:"report,omitempty"`
}

// BacktestResponse is the body returned by POST /api/v1/backtests.
type BacktestResponse struct {
	InstID    string   `json:"instId,omitempty"`
	Bar       string   `json:"bar,omitempty"`
	Candles   int      `json:"candles"`
	Runs      []RunDTO `json:"runs"`
	SinkError string   `json:"sinkError,omitempty"`
}

type BacktestHandler struct {
	service  *application.BacktestService
	defaults engine.StrategyConfig
	sources  SourceFactory
	logger   *logger.Logger
}

// NewBacktestHandler creates a BacktestHandler. sources may be nil, in which
// case every request must carry its candles.
func NewBacktestHandler(service *application.BacktestService, defaults engine.StrategyConfig, sources SourceFactory, log *logger.Logger) *BacktestHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &BacktestHandler{
		service:  service,
		defaults: defaults,
		sources:  sources,
		logger:   log,
	}
}

// Create runs the requested backtests and answers with every report.
func (h *BacktestHandler) Create(c *gin.Context) {
	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobs, err := req.jobs(h.defaults)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	source, err := h.source(req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.service.Run(c.Request.Context(), application.RunRequest{
		Source: source,
		InstID: req.InstID,
		Bar:    req.Bar,
		Jobs:   jobs,
	})
	if err != nil && outcome.Results == nil {
		h.logger.Warn("Backtest request failed", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	resp := BacktestResponse{
		InstID:  req.InstID,
		Bar:     req.Bar,
		Candles: outcome.Candles,
		Runs:    make([]RunDTO, 0, len(outcome.Results)),
	}
	if err != nil {
		resp.SinkError = err.Error()
	}
	for _, res := range outcome.Results {
		resp.Runs = append(resp.Runs, newRunDTO(res))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BacktestHandler) source(req BacktestRequest) (loader.Source, error) {
	if len(req.Candles) > 0 {
		candles, err := req.candles()
		if err != nil {
			return nil, err
		}
		return loader.Static(candles), nil
	}
	if h.sources == nil || req.InstID == "" || req.Bar == "" {
		return nil, &engine.DataError{Index: -1, Reason: "no candles given and no market to load"}
	}
	return h.sources(req.InstID, req.Bar)
}

func newRunDTO(res batch.Result) RunDTO {
	dto := RunDTO{
		RunID:      res.RunID,
		Job:        res.Job,
		DurationMs: res.Duration.Milliseconds(),
	}
	switch {
	case res.Err != nil:
		dto.Status = batch.StatusError
		dto.Error = res.Err.Error()
	case res.Report.Liquidated:
		dto.Status = batch.StatusLiquidated
	default:
		dto.Status = batch.StatusOK
	}
	if res.Err == nil {
		report := res.Report
		dto.Report = &report
	}
	return dto
}

// statusFor maps engine validation errors to 400 and anything else to 502,
// since the remaining failures come from the candle source.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidConfig), errors.Is(err, engine.ErrInvalidData):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
