package api

import (
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rzzdr/credit-risk-pipeline/internal/risk"
	"github.com/rzzdr/credit-risk-pipeline/pkg/models"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/circuit"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/errors"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/logger"
)

const (
	defaultSampleCount = 20
	maxSampleCount     = 10_000
)

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	deps    Dependencies
	started time.Time
	log     *logger.Logger
}

// NewHandlers creates new API handlers
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		deps:    deps,
		started: time.Now(),
		log:     logger.GetLogger("api.handlers"),
	}
}

// LoanBookSummary is a loan book without its loans
type LoanBookSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	LoanCount int       `json:"loanCount"`
	Created   time.Time `json:"created"`
	Updated   time.Time `json:"updated"`
}

// StressRequest selects scenarios by standard name and/or supplies custom ones.
// An empty request runs every standard scenario.
type StressRequest struct {
	Names     []string                `json:"names"`
	Scenarios []models.StressScenario `json:"scenarios"`
}

// AnalyzeRequest carries loans for a stateless analysis
type AnalyzeRequest struct {
	Loans []models.Loan `json:"loans"`
}

// Health reports liveness and the state of guarded dependencies
func (h *Handlers) Health(c *gin.Context) {
	status := "ok"
	breakers := make([]circuit.Stats, 0, len(h.deps.Breakers))
	for _, b := range h.deps.Breakers {
		stats := b.Stats()
		if stats.State != circuit.StateClosed.String() {
			status = "degraded"
		}
		breakers = append(breakers, stats)
	}

	resp := gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"breakers":  breakers,
	}
	if h.deps.Hub != nil {
		resp["websocketClients"] = h.deps.Hub.ClientCount()
	}
	c.JSON(http.StatusOK, resp)
}

// ListScenarios returns the standard stress scenarios
func (h *Handlers) ListScenarios(c *gin.Context) {
	c.JSON(http.StatusOK, risk.StandardScenarios())
}

// ListLoanBooks returns a summary of every stored loan book
func (h *Handlers) ListLoanBooks(c *gin.Context) {
	books, err := h.deps.Books.ListLoanBooks()
	if err != nil {
		h.respondError(c, err)
		return
	}

	summaries := make([]LoanBookSummary, len(books))
	for i, b := range books {
		summaries[i] = LoanBookSummary{ID: b.ID, Name: b.Name, LoanCount: len(b.Loans), Created: b.Created, Updated: b.Updated}
	}
	c.JSON(http.StatusOK, summaries)
}

// CreateLoanBook stores a new loan book; the ID is generated when omitted
func (h *Handlers) CreateLoanBook(c *gin.Context) {
	var book models.LoanBook
	if err := c.ShouldBindJSON(&book); err != nil {
		h.respondError(c, errors.InvalidArgumentf("invalid loan book: %v", err))
		return
	}
	if book.ID == "" {
		book.ID = uuid.NewString()
	}

	if _, err := h.deps.Books.GetLoanBook(book.ID); err == nil {
		h.respondError(c, errors.AlreadyExists("loan book already exists: "+book.ID))
		return
	}

	h.saveLoanBook(c, &book, http.StatusCreated)
}

// ReplaceLoanBook creates or replaces the loan book at the given ID
func (h *Handlers) ReplaceLoanBook(c *gin.Context) {
	var book models.LoanBook
	if err := c.ShouldBindJSON(&book); err != nil {
		h.respondError(c, errors.InvalidArgumentf("invalid loan book: %v", err))
		return
	}
	id := c.Param("id")
	if book.ID != "" && book.ID != id {
		h.respondError(c, errors.InvalidArgumentf("loan book ID %q does not match path %q", book.ID, id))
		return
	}
	book.ID = id

	h.saveLoanBook(c, &book, http.StatusOK)
}

func (h *Handlers) saveLoanBook(c *gin.Context, book *models.LoanBook, status int) {
	if err := models.ValidateLoanBook(*book); err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.deps.Books.SaveLoanBook(book); err != nil {
		h.respondError(c, err)
		return
	}

	// push fresh figures to subscribers; the write itself already succeeded
	if _, err := h.deps.Calculator.Snapshot(c.Request.Context(), book.ID); err != nil {
		h.log.Warnf("Snapshot after saving %s failed: %v", book.ID, err)
	}

	stored, err := h.deps.Books.GetLoanBook(book.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(status, stored)
}

// GetLoanBook returns a stored loan book
func (h *Handlers) GetLoanBook(c *gin.Context) {
	book, err := h.deps.Calculator.GetLoanBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

// DeleteLoanBook removes a stored loan book
func (h *Handlers) DeleteLoanBook(c *gin.Context) {
	id := c.Param("id")
	if err := h.deps.Books.DeleteLoanBook(id); err != nil {
		h.respondError(c, err)
		return
	}
	if h.deps.Recorder != nil {
		h.deps.Recorder.ForgetPortfolio(id)
	}
	c.Status(http.StatusNoContent)
}

// AnalyzePortfolio returns the enriched portfolio aggregate
func (h *Handlers) AnalyzePortfolio(c *gin.Context) {
	portfolio, err := h.deps.Calculator.AnalyzePortfolio(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, portfolio)
}

// RiskMetrics returns the distributional risk metrics
func (h *Handlers) RiskMetrics(c *gin.Context) {
	metrics, err := h.deps.Calculator.CalculateRiskMetrics(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

// RegulatoryRatios returns the Basel-style ratios
func (h *Handlers) RegulatoryRatios(c *gin.Context) {
	ratios, err := h.deps.Calculator.CalculateRegulatoryRatios(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ratios)
}

// Staging returns the IFRS 9 staging report
func (h *Handlers) Staging(c *gin.Context) {
	report, err := h.deps.Calculator.StageExposures(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Snapshot computes and publishes a risk snapshot
func (h *Handlers) Snapshot(c *gin.Context) {
	snapshot, err := h.deps.Calculator.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// RunStressTest runs a stress campaign against a stored loan book
func (h *Handlers) RunStressTest(c *gin.Context) {
	var req StressRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondError(c, errors.InvalidArgumentf("invalid stress request: %v", err))
			return
		}
	}

	scenarios, err := resolveScenarios(req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	campaign, err := h.deps.Calculator.RunStressTest(c.Request.Context(), c.Param("id"), scenarios)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// StressHistory lists recorded stress runs, newest first
func (h *Handlers) StressHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.respondError(c, errors.InvalidArgumentf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	id := c.Param("id")
	if _, err := h.deps.Calculator.GetLoanBook(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	runs, err := h.deps.Calculator.StressHistory(c.Request.Context(), id, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

// Analyze runs every view over loans supplied in the request, without storing them
func (h *Handlers) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, errors.InvalidArgumentf("invalid analysis request: %v", err))
		return
	}
	if err := models.ValidateLoans(req.Loans); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.deps.Calculator.Report(req.Loans))
}

// GenerateSamples builds a synthetic loan book; ?store=true also saves it
func (h *Handlers) GenerateSamples(c *gin.Context) {
	count, err := queryInt(c, "count", defaultSampleCount)
	if err != nil || count < 0 || count > maxSampleCount {
		h.respondError(c, errors.InvalidArgumentf("count must be between 0 and %d", maxSampleCount))
		return
	}
	seed, err := queryInt(c, "seed", int(time.Now().UnixNano()))
	if err != nil {
		h.respondError(c, errors.InvalidArgumentf("invalid seed %q", c.Query("seed")))
		return
	}

	book := &models.LoanBook{
		ID:    "sample-" + strconv.Itoa(seed),
		Name:  "Sample portfolio",
		Loans: risk.GenerateSampleLoans(rand.New(rand.NewSource(int64(seed))), count),
	}

	if c.Query("store") == "true" {
		h.saveLoanBook(c, book, http.StatusCreated)
		return
	}
	c.JSON(http.StatusOK, book)
}

func resolveScenarios(req StressRequest) ([]models.StressScenario, error) {
	if len(req.Names) == 0 && len(req.Scenarios) == 0 {
		return risk.StandardScenarios(), nil
	}

	scenarios := make([]models.StressScenario, 0, len(req.Names)+len(req.Scenarios))
	for _, name := range req.Names {
		s, ok := risk.ScenarioByName(name)
		if !ok {
			return nil, errors.InvalidArgumentf("unknown scenario %q", name)
		}
		scenarios = append(scenarios, s)
	}
	return append(scenarios, req.Scenarios...), nil
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// respondError maps application error types to HTTP status codes
func (h *Handlers) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errors.TypeOf(err) {
	case errors.ErrorTypeInvalidArgument:
		status = http.StatusBadRequest
	case errors.ErrorTypeNotFound:
		status = http.StatusNotFound
	case errors.ErrorTypeAlreadyExists:
		status = http.StatusConflict
	case errors.ErrorTypeUnavailable:
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.log.Errorf("Request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(status, gin.H{
		"error": err.Error(),
		"type":  errors.TypeOf(err).String(),
	})
}
