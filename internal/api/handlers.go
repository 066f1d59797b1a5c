package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/waterlab-lims-server/internal/audit"
	"github.com/waterlab-lims-server/internal/domain"
)

// actorFromRequest resolves the acting user from the gateway headers.
// Both headers absent means an anonymous request; a present but
// malformed header is an error.
func actorFromRequest(c *gin.Context) (*domain.User, error) {
	idHeader := c.GetHeader("X-Actor-ID")
	roleHeader := c.GetHeader("X-Actor-Role")
	if idHeader == "" && roleHeader == "" {
		return nil, nil
	}

	id, err := uuid.Parse(idHeader)
	if err != nil {
		return nil, domain.NewValidationError("X-Actor-ID", "actor ID must be a UUID", idHeader)
	}
	role, err := domain.ParseRole(roleHeader)
	if err != nil {
		return nil, domain.NewValidationError("X-Actor-Role", "unknown actor role", roleHeader)
	}

	return &domain.User{
		ID:       id,
		Username: c.GetHeader("X-Actor-Name"),
		Role:     role,
	}, nil
}

// requireActor aborts with 401 when no valid actor is present.
func (s *Server) requireActor(c *gin.Context) (*domain.User, bool) {
	actor, err := actorFromRequest(c)
	if err != nil {
		s.respondError(c, err)
		return nil, false
	}
	if actor == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "actor headers are required for this operation",
		})
		return nil, false
	}
	return actor, true
}

// respondError maps domain errors onto HTTP status codes. Unexpected
// errors are logged server-side and reported generically.
func (s *Server) respondError(c *gin.Context, err error) {
	var (
		validationErr *domain.ValidationError
		transitionErr *domain.InvalidTransitionError
		incompleteErr *domain.IncompleteResultsError
		roleErr       *domain.RoleViolationError
		uniqueErr     *domain.UniquenessError
		protectedErr  *domain.ProtectedReferenceError
	)

	switch {
	case errors.As(err, &validationErr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": validationErr.Error(),
			"field": validationErr.Field,
		})
	case errors.As(err, &transitionErr):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error": transitionErr.Error(),
			"from":  transitionErr.From,
			"to":    transitionErr.To,
		})
	case errors.As(err, &incompleteErr):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":     incompleteErr.Error(),
			"requested": incompleteErr.Requested,
			"recorded":  incompleteErr.Recorded,
			"missing":   incompleteErr.Missing,
		})
	case errors.As(err, &roleErr):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": roleErr.Error(),
		})
	case errors.As(err, &uniqueErr):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error": uniqueErr.Error(),
		})
	case errors.As(err, &protectedErr):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error": protectedErr.Error(),
		})
	case errors.Is(err, domain.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error": "resource not found",
		})
	default:
		s.log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "internal server error",
		})
	}
}

// publish offers a committed catalog event to the side-channel sink.
// Failures are logged; the write itself has already succeeded.
func (s *Server) publish(c *gin.Context, event *domain.AuditEvent) {
	if s.deps.Sink == nil || event == nil {
		return
	}
	if err := s.deps.Sink.Record(c.Request.Context(), event); err != nil {
		s.log.WithError(err).Warn("Audit side channel record failed")
	}
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, error) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(name, "must be a UUID", raw)
	}
	return id, nil
}

// --- customers ---

type createCustomerRequest struct {
	Name    string `json:"name" binding:"required"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

func (s *Server) handleCreateCustomer(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}

	var req createCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}

	customer := &domain.Customer{
		Name:    req.Name,
		Phone:   req.Phone,
		Email:   req.Email,
		Address: req.Address,
	}
	created, err := s.deps.Samples.RegisterCustomer(c.Request.Context(), actor, customer)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleListCustomers(c *gin.Context) {
	customers, err := s.deps.Samples.ListCustomers(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers, "count": len(customers)})
}

// --- samples ---

type createSampleRequest struct {
	CustomerID        uuid.UUID   `json:"customer_id" binding:"required"`
	CollectionTime    time.Time   `json:"collection_time" binding:"required"`
	Source            string      `json:"source" binding:"required"`
	CollectedBy       string      `json:"collected_by" binding:"required"`
	ReferredBy        string      `json:"referred_by"`
	SampleType        string      `json:"sample_type"`
	QuantityReceived  string      `json:"quantity_received"`
	SamplingProcedure string      `json:"sampling_procedure"`
	SamplingLocation  string      `json:"sampling_location"`
	RequestedParamIDs []uuid.UUID `json:"requested_parameter_ids" binding:"required"`
}

func (s *Server) handleCreateSample(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}

	var req createSampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}

	sample := &domain.Sample{
		CustomerID:        req.CustomerID,
		CollectionTime:    req.CollectionTime,
		Source:            domain.SampleSource(req.Source),
		CollectedBy:       domain.CollectorType(req.CollectedBy),
		ReferredBy:        req.ReferredBy,
		SampleType:        req.SampleType,
		QuantityReceived:  req.QuantityReceived,
		SamplingProcedure: req.SamplingProcedure,
		SamplingLocation:  req.SamplingLocation,
		RequestedParamIDs: req.RequestedParamIDs,
	}
	created, err := s.deps.Samples.CreateSample(c.Request.Context(), actor, sample)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleListSamples(c *gin.Context) {
	status := domain.SampleStatus(c.Query("status"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	samples, err := s.deps.Samples.ListSamples(c.Request.Context(), status, limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"samples": samples, "count": len(samples)})
}

func (s *Server) handleGetSample(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		s.respondError(c, err)
		return
	}
	sample, err := s.deps.Samples.GetSample(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sample)
}

func (s *Server) handleGetSampleByDisplayID(c *gin.Context) {
	sample, err := s.deps.Samples.GetSampleByDisplayID(c.Request.Context(), c.Param("displayID"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sample)
}

type transitionRequest struct {
	Target string `json:"target" binding:"required"`
}

func (s *Server) handleTransitionSample(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	if !actor.Role.CanManageSamples() {
		s.respondError(c, &domain.RoleViolationError{
			Action:  "transition samples",
			Role:    actor.Role,
			Allowed: []domain.Role{domain.RoleFrontDesk, domain.RoleLab, domain.RoleAdmin},
		})
		return
	}

	id, err := pathUUID(c, "id")
	if err != nil {
		s.respondError(c, err)
		return
	}

	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}

	sample, err := s.deps.Lifecycle.Transition(c.Request.Context(), id, domain.SampleStatus(req.Target), actor)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sample)
}

// --- results ---

type recordResultRequest struct {
	ParameterID uuid.UUID `json:"parameter_id" binding:"required"`
	Value       string    `json:"value" binding:"required"`
	Observation string    `json:"observation"`
}

func (r recordResultRequest) toResult(sampleID uuid.UUID) *domain.Result {
	return &domain.Result{
		SampleID:    sampleID,
		ParameterID: r.ParameterID,
		Value:       r.Value,
		Observation: r.Observation,
	}
}

func (s *Server) handleRecordResult(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	sampleID, err := pathUUID(c, "id")
	if err != nil {
		s.respondError(c, err)
		return
	}

	var req recordResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}

	result, err := s.deps.Results.RecordResult(c.Request.Context(), actor, req.toResult(sampleID))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

type recordResultBatchRequest struct {
	Results []recordResultRequest `json:"results" binding:"required"`
}

func (s *Server) handleRecordResultBatch(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	sampleID, err := pathUUID(c, "id")
	if err != nil {
		s.respondError(c, err)
		return
	}

	var req recordResultBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}

	results := make([]*domain.Result, 0, len(req.Results))
	for _, entry := range req.Results {
		results = append(results, entry.toResult(sampleID))
	}
	if err := s.deps.Results.RecordResults(c.Request.Context(), actor, results); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"recorded": len(results)})
}

func (s *Server) handleListResults(c *gin.Context) {
	sampleID, err := pathUUID(c, "id")
	if err != nil {
		s.respondError(c, err)
		return
	}
	results, err := s.deps.Results.ResultsForSample(c.Request.Context(), sampleID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

func (s *Server) handleResolveResultStatus(c *gin.Context) {
	sampleID, err := pathUUID(c, "id")
	if err != nil {
		s.respondError(c, err)
		return
	}
	parameterID, err := pathUUID(c, "parameterID")
	if err != nil {
		s.respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	results, err := s.deps.Results.ResultsForSample(ctx, sampleID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	var result *domain.Result
	for _, r := range results {
		if r.ParameterID == parameterID {
			result = r
			break
		}
	}
	if result == nil {
		s.respondError(c, domain.ErrNotFound)
		return
	}

	parameter, err := s.deps.Parameters.GetByID(ctx, parameterID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	status := s.deps.Resolver.Resolve(ctx, result, parameter)
	c.JSON(http.StatusOK, gin.H{
		"sample_id":     sampleID,
		"parameter_id":  parameterID,
		"value":         result.Value,
		"limit_status":  status,
		"within_limits": status.IsWithinLimits(),
	})
}

// --- report view ---

type reportLine struct {
	ParameterID     uuid.UUID          `json:"parameter_id"`
	ParameterName   string             `json:"parameter_name"`
	Unit            string             `json:"unit"`
	Method          string             `json:"method,omitempty"`
	MinLimit        *float64           `json:"min_limit,omitempty"`
	MaxLimit        *float64           `json:"max_limit,omitempty"`
	MaxLimitDisplay string             `json:"max_limit_display,omitempty"`
	Value           string             `json:"value"`
	Observation     string             `json:"observation,omitempty"`
	LimitStatus     domain.LimitStatus `json:"limit_status"`
	WithinLimits    *bool              `json:"within_limits,omitempty"`
}

func (s *Server) handleSampleReport(c *gin.Context) {
	sampleID, err := pathUUID(c, "id")
	if err != nil {
		s.respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	sample, err := s.deps.Samples.GetSample(ctx, sampleID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	results, err := s.deps.Results.ResultsForSample(ctx, sampleID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	parameters, err := s.deps.Parameters.List(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	byID := make(map[uuid.UUID]*domain.Parameter, len(parameters))
	for _, p := range parameters {
		byID[p.ID] = p
	}

	lines := make([]reportLine, 0, len(results))
	for _, result := range results {
		line := reportLine{
			ParameterID: result.ParameterID,
			Value:       result.Value,
			Observation: result.Observation,
			LimitStatus: domain.UNKNOWN,
		}
		parameter := byID[result.ParameterID]
		if parameter != nil {
			line.ParameterName = parameter.Name
			line.Unit = parameter.Unit
			line.Method = parameter.Method
			line.MinLimit = parameter.MinLimit
			line.MaxLimit = parameter.MaxLimit
			line.MaxLimitDisplay = parameter.MaxLimitDisplay
		}
		line.LimitStatus = s.deps.Resolver.Resolve(ctx, result, parameter)
		line.WithinLimits = line.LimitStatus.IsWithinLimits()
		lines = append(lines, line)
	}

	c.JSON(http.StatusOK, gin.H{
		"sample": sample,
		"lines":  lines,
	})
}

// --- reviews ---

type saveReviewRequest struct {
	Status          string `json:"status" binding:"required"`
	Comments        string `json:"comments"`
	Recommendations string `json:"recommendations"`
}

func (s *Server) handleSaveReview(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	sampleID, err := pathUUID(c, "id")
	if err != nil {
		s.respondError(c, err)
		return
	}

	var req saveReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}

	review := &domain.ConsultantReview{
		SampleID:        sampleID,
		Status:          domain.ReviewStatus(req.Status),
		Comments:        req.Comments,
		Recommendations: req.Recommendations,
	}
	saved, err := s.deps.Reviews.SaveReview(c.Request.Context(), actor, review)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) handleGetReview(c *gin.Context) {
	sampleID, err := pathUUID(c, "id")
	if err != nil {
		s.respondError(c, err)
		return
	}
	review, err := s.deps.Reviews.GetReview(c.Request.Context(), sampleID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

// --- parameter catalog ---

type parameterRequest struct {
	Name            string     `json:"name" binding:"required"`
	Unit            string     `json:"unit" binding:"required"`
	Method          string     `json:"method"`
	MinLimit        *float64   `json:"min_limit"`
	MaxLimit        *float64   `json:"max_limit"`
	MaxLimitDisplay string     `json:"max_limit_display"`
	CategoryID      *uuid.UUID `json:"category_id"`
	ParentID        *uuid.UUID `json:"parent_id"`
	DisplayOrder    int        `json:"display_order"`
}

// requireAdmin gates catalog management endpoints.
func (s *Server) requireAdmin(c *gin.Context) (*domain.User, bool) {
	actor, ok := s.requireActor(c)
	if !ok {
		return nil, false
	}
	if actor.Role != domain.RoleAdmin {
		s.respondError(c, &domain.RoleViolationError{
			Action:  "manage the parameter catalog",
			Role:    actor.Role,
			Allowed: []domain.Role{domain.RoleAdmin},
		})
		return nil, false
	}
	return actor, true
}

func (s *Server) handleListParameters(c *gin.Context) {
	parameters, err := s.deps.Parameters.List(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"parameters": parameters, "count": len(parameters)})
}

func (s *Server) handleCreateParameter(c *gin.Context) {
	actor, ok := s.requireAdmin(c)
	if !ok {
		return
	}

	var req parameterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}

	parameter := &domain.Parameter{
		ID:              uuid.New(),
		Name:            req.Name,
		Unit:            req.Unit,
		Method:          req.Method,
		MinLimit:        req.MinLimit,
		MaxLimit:        req.MaxLimit,
		MaxLimitDisplay: req.MaxLimitDisplay,
		CategoryID:      req.CategoryID,
		ParentID:        req.ParentID,
		DisplayOrder:    req.DisplayOrder,
	}
	if err := parameter.Validate(); err != nil {
		s.respondError(c, err)
		return
	}

	event := domain.NewAuditEvent(actor, domain.AUDIT_CREATE, "parameter", parameter.ID.String(), parameter.Name,
		nil, map[string]interface{}{"name": parameter.Name, "unit": parameter.Unit})
	if err := s.deps.Parameters.Create(c.Request.Context(), parameter, event); err != nil {
		s.respondError(c, err)
		return
	}
	s.publish(c, event)
	c.JSON(http.StatusCreated, parameter)
}

func (s *Server) handleUpdateParameter(c *gin.Context) {
	actor, ok := s.requireAdmin(c)
	if !ok {
		return
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		s.respondError(c, err)
		return
	}

	var req parameterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}

	ctx := c.Request.Context()
	parameter, err := s.deps.Parameters.GetByID(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	old := map[string]interface{}{"name": parameter.Name, "unit": parameter.Unit, "method": parameter.Method}
	parameter.Name = req.Name
	parameter.Unit = req.Unit
	parameter.Method = req.Method
	parameter.MinLimit = req.MinLimit
	parameter.MaxLimit = req.MaxLimit
	parameter.MaxLimitDisplay = req.MaxLimitDisplay
	parameter.CategoryID = req.CategoryID
	parameter.ParentID = req.ParentID
	parameter.DisplayOrder = req.DisplayOrder
	if err := parameter.Validate(); err != nil {
		s.respondError(c, err)
		return
	}

	event := domain.NewAuditEvent(actor, domain.AUDIT_UPDATE, "parameter", parameter.ID.String(), parameter.Name,
		old, map[string]interface{}{"name": parameter.Name, "unit": parameter.Unit, "method": parameter.Method})
	if err := s.deps.Parameters.Update(ctx, parameter, event); err != nil {
		s.respondError(c, err)
		return
	}
	s.publish(c, event)
	c.JSON(http.StatusOK, parameter)
}

func (s *Server) handleDeleteParameter(c *gin.Context) {
	actor, ok := s.requireAdmin(c)
	if !ok {
		return
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		s.respondError(c, err)
		return
	}

	event := domain.NewAuditEvent(actor, domain.AUDIT_DELETE, "parameter", id.String(), "", nil, nil)
	if err := s.deps.Parameters.Delete(c.Request.Context(), id, event); err != nil {
		s.respondError(c, err)
		return
	}
	s.publish(c, event)
	c.Status(http.StatusNoContent)
}

// --- categories ---

type categoryRequest struct {
	Name         string `json:"name" binding:"required"`
	DisplayOrder int    `json:"display_order"`
}

func (s *Server) handleListCategories(c *gin.Context) {
	categories, err := s.deps.Categories.List(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories, "count": len(categories)})
}

func (s *Server) handleCreateCategory(c *gin.Context) {
	actor, ok := s.requireAdmin(c)
	if !ok {
		return
	}

	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}

	category := &domain.Category{
		ID:           uuid.New(),
		Name:         req.Name,
		DisplayOrder: req.DisplayOrder,
	}
	event := domain.NewAuditEvent(actor, domain.AUDIT_CREATE, "category", category.ID.String(), category.Name,
		nil, map[string]interface{}{"name": category.Name, "display_order": category.DisplayOrder})
	if err := s.deps.Categories.Create(c.Request.Context(), category, event); err != nil {
		s.respondError(c, err)
		return
	}
	s.publish(c, event)
	c.JSON(http.StatusCreated, category)
}

// --- result-status overrides ---

type overrideRequest struct {
	ParameterID *uuid.UUID `json:"parameter_id"`
	TextValue   string     `json:"text_value" binding:"required"`
	Status      string     `json:"status" binding:"required"`
	Active      *bool      `json:"active"`
}

func (s *Server) handleListOverrides(c *gin.Context) {
	overrides, err := s.deps.Overrides.List(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"overrides": overrides, "count": len(overrides)})
}

func (s *Server) handleSaveOverride(c *gin.Context) {
	actor, ok := s.requireAdmin(c)
	if !ok {
		return
	}

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}

	override := &domain.ResultStatusOverride{
		ID:          uuid.New(),
		ParameterID: req.ParameterID,
		TextValue:   req.TextValue,
		Status:      req.Status,
		Active:      true,
	}
	if req.Active != nil {
		override.Active = *req.Active
	}
	override.Normalize()

	event := domain.NewAuditEvent(actor, domain.AUDIT_CREATE, "result_status_override", override.ID.String(), override.TextValue,
		nil, map[string]interface{}{"text_value": override.TextValue, "status": override.Status, "active": override.Active})
	if err := s.deps.Overrides.Save(c.Request.Context(), override, event); err != nil {
		s.respondError(c, err)
		return
	}

	if s.deps.Invalidator != nil {
		s.deps.Invalidator.Invalidate(c.Request.Context(), override.ParameterID, override.NormalizedValue)
	}
	s.publish(c, event)
	c.JSON(http.StatusCreated, override)
}

func (s *Server) handleDeleteOverride(c *gin.Context) {
	actor, ok := s.requireAdmin(c)
	if !ok {
		return
	}
	id, err := pathUUID(c, "id")
	if err != nil {
		s.respondError(c, err)
		return
	}

	ctx := c.Request.Context()

	// Locate the row first so the cache entry for its scope can be
	// evicted after the delete.
	var target *domain.ResultStatusOverride
	overrides, err := s.deps.Overrides.List(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	for _, o := range overrides {
		if o.ID == id {
			target = o
			break
		}
	}
	if target == nil {
		s.respondError(c, domain.ErrNotFound)
		return
	}

	event := domain.NewAuditEvent(actor, domain.AUDIT_DELETE, "result_status_override", id.String(), target.TextValue, nil, nil)
	if err := s.deps.Overrides.Delete(ctx, id, event); err != nil {
		s.respondError(c, err)
		return
	}

	if s.deps.Invalidator != nil {
		s.deps.Invalidator.Invalidate(ctx, target.ParameterID, target.NormalizedValue)
	}
	s.publish(c, event)
	c.Status(http.StatusNoContent)
}

// --- seeding ---

func (s *Server) handleSeedParameters(c *gin.Context) {
	actor, ok := s.requireAdmin(c)
	if !ok {
		return
	}
	created, skipped, err := s.deps.Seed.SeedStandardParameters(c.Request.Context(), actor)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": created, "skipped": skipped})
}

func (s *Server) handleSeedCategories(c *gin.Context) {
	actor, ok := s.requireAdmin(c)
	if !ok {
		return
	}
	created, skipped, err := s.deps.Seed.SeedStandardCategories(c.Request.Context(), actor)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": created, "skipped": skipped})
}

// --- audit trail ---

func (s *Server) auditFilterFromQuery(c *gin.Context) audit.Filter {
	filter := audit.Filter{
		Entity:   c.Query("entity"),
		EntityID: c.Query("entity_id"),
		Action:   domain.AuditAction(c.Query("action")),
	}
	if raw := c.Query("actor_id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			filter.ActorID = &id
		}
	}
	if raw := c.Query("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Since = &t
		}
	}
	if raw := c.Query("until"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Until = &t
		}
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	return filter
}

func (s *Server) handleListAudit(c *gin.Context) {
	events, err := s.deps.AuditStore.List(c.Request.Context(), s.auditFilterFromQuery(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func (s *Server) handleExportAudit(c *gin.Context) {
	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", `attachment; filename="audit-trail.json"`)
	if err := s.deps.AuditStore.ExportJSON(c.Request.Context(), c.Writer, s.auditFilterFromQuery(c)); err != nil {
		s.log.WithError(err).Error("Audit export failed")
	}
}
