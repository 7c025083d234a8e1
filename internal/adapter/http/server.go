package http

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/simaogato/goalflow-backend/internal/domain"
	"github.com/simaogato/goalflow-backend/internal/usecase/allocation"
	"github.com/simaogato/goalflow-backend/internal/usecase/period"
	"github.com/simaogato/goalflow-backend/internal/usecase/progress"
)

// Server wires the usecase services into a REST API for the display layer.
// All writes go through the documented operations; closed-period reads never
// re-derive.
type Server struct {
	AllocationManager *allocation.Manager
	PeriodController  *period.Controller
	ProgressService   *progress.Service
	AssetRepo         domain.AssetRepository
	GoalRepo          domain.GoalRepository
	PeriodRepo        domain.PeriodRepository
	ContributionRepo  domain.ContributionRepository
	Logger            *zap.Logger
}

// NewServer creates a new HTTP server instance
func NewServer(
	allocationManager *allocation.Manager,
	periodController *period.Controller,
	progressService *progress.Service,
	assetRepo domain.AssetRepository,
	goalRepo domain.GoalRepository,
	periodRepo domain.PeriodRepository,
	contributionRepo domain.ContributionRepository,
	logger *zap.Logger,
) *Server {
	return &Server{
		AllocationManager: allocationManager,
		PeriodController:  periodController,
		ProgressService:   progressService,
		AssetRepo:         assetRepo,
		GoalRepo:          goalRepo,
		PeriodRepo:        periodRepo,
		ContributionRepo:  contributionRepo,
		Logger:            logger,
	}
}

// Router builds the gin engine with CORS and token auth applied
func (s *Server) Router(apiToken string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	v1 := router.Group("/v1", AuthMiddleware(apiToken))
	{
		v1.POST("/assets", s.createAsset)
		v1.POST("/goals", s.createGoal)
		v1.POST("/periods", s.createPeriod)

		v1.POST("/assets/:id/allocations", s.updateAllocations)
		v1.POST("/assets/:id/deposits", s.recordDeposit)

		v1.POST("/periods/:id/start", s.startTracking)
		v1.GET("/periods/:id/totals", s.derivedTotals)
		v1.POST("/periods/:id/complete", s.markComplete)
		v1.GET("/periods/:id/progress", s.goalProgress)
		v1.GET("/periods/:id/contributions", s.persistedContributions)
	}

	return router
}

// mapError translates domain errors to HTTP status codes
func (s *Server) mapError(c *gin.Context, err error) {
	s.Logger.Warn("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	switch {
	case domain.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case domain.IsStateError(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, sql.ErrNoRows):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, domain.NewValidationError("timestamp must be RFC3339")
	}
	return at, nil
}

type createAssetRequest struct {
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

func (s *Server) createAsset(c *gin.Context) {
	var req createAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	asset := &domain.Asset{ID: uuid.New(), Name: req.Name, Currency: req.Currency}
	if err := asset.Validate(); err != nil {
		s.mapError(c, err)
		return
	}
	if err := s.AssetRepo.Create(c.Request.Context(), asset); err != nil {
		s.mapError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": asset.ID.String()})
}

type createGoalRequest struct {
	Name         string `json:"name"`
	Currency     string `json:"currency"`
	TargetAmount string `json:"target_amount"`
}

func (s *Server) createGoal(c *gin.Context) {
	var req createGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	target := decimal.Zero
	if req.TargetAmount != "" {
		parsed, err := decimal.NewFromString(req.TargetAmount)
		if err != nil {
			s.mapError(c, domain.NewValidationError("invalid target_amount format"))
			return
		}
		target = parsed
	}

	goal := &domain.Goal{ID: uuid.New(), Name: req.Name, Currency: req.Currency, TargetAmount: target}
	if err := goal.Validate(); err != nil {
		s.mapError(c, err)
		return
	}
	if err := s.GoalRepo.Create(c.Request.Context(), goal); err != nil {
		s.mapError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": goal.ID.String()})
}

type createPeriodRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (s *Server) createPeriod(c *gin.Context) {
	var req createPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Month < 1 || req.Month > 12 {
		s.mapError(c, domain.NewValidationError("month must be between 1 and 12"))
		return
	}

	trackingPeriod := domain.NewTrackingPeriod(req.Year, time.Month(req.Month))
	if err := s.PeriodRepo.Create(c.Request.Context(), trackingPeriod); err != nil {
		s.mapError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": trackingPeriod.ID.String()})
}

type updateAllocationsRequest struct {
	Targets map[string]string `json:"targets"` // goal ID -> amount
	At      string            `json:"at"`
}

func (s *Server) updateAllocations(c *gin.Context) {
	assetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.mapError(c, domain.NewValidationError("invalid asset ID format"))
		return
	}

	var req updateAllocationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	at, err := parseTimestamp(req.At)
	if err != nil {
		s.mapError(c, err)
		return
	}

	targets := make(map[uuid.UUID]decimal.Decimal, len(req.Targets))
	for rawGoalID, rawAmount := range req.Targets {
		goalID, err := uuid.Parse(rawGoalID)
		if err != nil {
			s.mapError(c, domain.NewValidationError("invalid goal ID format"))
			return
		}
		amount, err := decimal.NewFromString(rawAmount)
		if err != nil {
			s.mapError(c, domain.NewValidationError("invalid amount format"))
			return
		}
		targets[goalID] = amount
	}

	if err := s.AllocationManager.UpdateAllocations(c.Request.Context(), assetID, targets, at); err != nil {
		s.mapError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type recordDepositRequest struct {
	Amount string `json:"amount"`
	At     string `json:"at"`
}

func (s *Server) recordDeposit(c *gin.Context) {
	assetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.mapError(c, domain.NewValidationError("invalid asset ID format"))
		return
	}

	var req recordDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		s.mapError(c, domain.NewValidationError("invalid amount format"))
		return
	}
	at, err := parseTimestamp(req.At)
	if err != nil {
		s.mapError(c, err)
		return
	}

	event, err := s.AllocationManager.RecordDeposit(c.Request.Context(), assetID, amount, at)
	if err != nil {
		s.mapError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"event_id":  event.ID.String(),
		"timestamp": event.Timestamp.Format(time.RFC3339),
	})
}

type startTrackingRequest struct {
	Pairs []struct {
		GoalID  string `json:"goal_id"`
		AssetID string `json:"asset_id"`
	} `json:"pairs"`
	At string `json:"at"`
}

func (s *Server) startTracking(c *gin.Context) {
	periodID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.mapError(c, domain.NewValidationError("invalid period ID format"))
		return
	}

	var req startTrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	at, err := parseTimestamp(req.At)
	if err != nil {
		s.mapError(c, err)
		return
	}

	pairs := make([]domain.GoalAssetPair, 0, len(req.Pairs))
	for _, raw := range req.Pairs {
		goalID, err := uuid.Parse(raw.GoalID)
		if err != nil {
			s.mapError(c, domain.NewValidationError("invalid goal ID format"))
			return
		}
		assetID, err := uuid.Parse(raw.AssetID)
		if err != nil {
			s.mapError(c, domain.NewValidationError("invalid asset ID format"))
			return
		}
		pairs = append(pairs, domain.GoalAssetPair{GoalID: goalID, AssetID: assetID})
	}

	if err := s.PeriodController.StartTracking(c.Request.Context(), periodID, pairs, at); err != nil {
		s.mapError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "executing"})
}

type pairTotalResponse struct {
	GoalID   string `json:"goal_id"`
	AssetID  string `json:"asset_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (s *Server) derivedTotals(c *gin.Context) {
	periodID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.mapError(c, domain.NewValidationError("invalid period ID format"))
		return
	}

	asOf, err := parseTimestamp(c.Query("as_of"))
	if err != nil {
		s.mapError(c, err)
		return
	}

	totals, err := s.PeriodController.GetDerivedTotals(c.Request.Context(), periodID, asOf)
	if err != nil {
		s.mapError(c, err)
		return
	}

	response := make([]pairTotalResponse, 0, len(totals))
	for _, total := range totals {
		response = append(response, pairTotalResponse{
			GoalID:   total.GoalID.String(),
			AssetID:  total.AssetID.String(),
			Amount:   total.Amount.String(),
			Currency: total.Currency,
		})
	}

	c.JSON(http.StatusOK, gin.H{"totals": response})
}

type markCompleteRequest struct {
	At string `json:"at"`
}

func (s *Server) markComplete(c *gin.Context) {
	periodID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.mapError(c, domain.NewValidationError("invalid period ID format"))
		return
	}

	var req markCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	at, err := parseTimestamp(req.At)
	if err != nil {
		s.mapError(c, err)
		return
	}

	if err := s.PeriodController.MarkComplete(c.Request.Context(), periodID, at); err != nil {
		s.mapError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

type goalProgressResponse struct {
	GoalID       string              `json:"goal_id"`
	Name         string              `json:"name"`
	Currency     string              `json:"currency"`
	Contributed  string              `json:"contributed"`
	TargetAmount string              `json:"target_amount"`
	Display      string              `json:"display"`
	Unconverted  []map[string]string `json:"unconverted,omitempty"`
}

func (s *Server) goalProgress(c *gin.Context) {
	periodID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.mapError(c, domain.NewValidationError("invalid period ID format"))
		return
	}

	asOf, err := parseTimestamp(c.Query("as_of"))
	if err != nil {
		s.mapError(c, err)
		return
	}

	entries, err := s.ProgressService.GetProgress(c.Request.Context(), periodID, asOf)
	if err != nil {
		s.mapError(c, err)
		return
	}

	response := make([]goalProgressResponse, 0, len(entries))
	for _, entry := range entries {
		item := goalProgressResponse{
			GoalID:       entry.GoalID.String(),
			Name:         entry.Name,
			Currency:     entry.Currency,
			Contributed:  entry.Contributed.String(),
			TargetAmount: entry.TargetAmount.String(),
			Display:      entry.Display,
		}
		for _, u := range entry.Unconverted {
			item.Unconverted = append(item.Unconverted, map[string]string{
				"amount":   u.Amount.String(),
				"currency": u.Currency,
			})
		}
		response = append(response, item)
	}

	c.JSON(http.StatusOK, gin.H{"goals": response})
}

type contributionResponse struct {
	ID        string `json:"id"`
	GoalID    string `json:"goal_id"`
	AssetID   string `json:"asset_id"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Timestamp string `json:"timestamp"`
	Rate      string `json:"rate,omitempty"`
	Converted bool   `json:"converted"`
}

func (s *Server) persistedContributions(c *gin.Context) {
	periodID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.mapError(c, domain.NewValidationError("invalid period ID format"))
		return
	}

	rows, err := s.ContributionRepo.ListByPeriod(c.Request.Context(), periodID)
	if err != nil {
		s.mapError(c, err)
		return
	}

	response := make([]contributionResponse, 0, len(rows))
	for _, row := range rows {
		item := contributionResponse{
			ID:        row.ID.String(),
			GoalID:    row.GoalID.String(),
			AssetID:   row.AssetID.String(),
			Amount:    row.Amount.String(),
			Currency:  row.Currency,
			Timestamp: row.Timestamp.Format(time.RFC3339),
			Converted: row.Rate.Converted,
		}
		if row.Rate.Converted {
			item.Rate = row.Rate.Rate.String()
		}
		response = append(response, item)
	}

	c.JSON(http.StatusOK, gin.H{"contributions": response})
}
