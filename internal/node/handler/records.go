package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/LandRegistry/internal/identity"
	"github.com/jmerrifield20/LandRegistry/internal/ledger"
	"github.com/jmerrifield20/LandRegistry/internal/model"
)

// RecordHandler exposes the ledger's record, review and role operations.
// Reads are public; writes act as the account bound by RequireAccount.
type RecordHandler struct {
	ledger ledger.Client
	tokens *identity.AccountTokenIssuer // nil = trust the X-Account header
	logger *zap.Logger
}

// NewRecordHandler creates a new RecordHandler.
func NewRecordHandler(client ledger.Client, tokens *identity.AccountTokenIssuer, logger *zap.Logger) *RecordHandler {
	return &RecordHandler{ledger: client, tokens: tokens, logger: logger}
}

// Register mounts the record routes on the given router group.
func (h *RecordHandler) Register(rg *gin.RouterGroup) {
	auth := identity.RequireAccount(h.tokens)

	rg.GET("/accounts/:account/capability", h.GetCapability)
	rg.GET("/events/submissions", h.SubmissionEvents)

	r := rg.Group("/records")
	{
		r.POST("", auth, h.Submit)
		r.GET("/:id", h.GetRecord)
		r.GET("/:id/votes", h.ReviewEvents)
		r.GET("/:id/votes/:officer", h.HasVoted)
		r.POST("/:id/reviews", auth, h.Review)
	}

	roles := rg.Group("/roles", auth)
	{
		roles.POST("/officers", h.GrantOfficer)
		roles.POST("/submitters", h.GrantSubmitter)
	}

	rg.PUT("/settings/required-approvals", auth, h.SetRequiredApprovals)
}

func parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// GetCapability handles GET /accounts/:account/capability.
func (h *RecordHandler) GetCapability(c *gin.Context) {
	account, err := model.NormalizeAccount(c.Param("account"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	capability, err := h.ledger.GetCapability(c.Request.Context(), account)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account":    account,
		"capability": capability,
		"label":      capability.Label(),
	})
}

// SubmissionEvents handles GET /events/submissions?from=<seq>.
func (h *RecordHandler) SubmissionEvents(c *gin.Context) {
	var from uint64
	if s := c.Query("from"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			badRequest(c, "from", "from must be a non-negative integer")
			return
		}
		from = v
	}
	events, err := h.ledger.SubmissionEvents(c.Request.Context(), model.Sequence(from))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if events == nil {
		events = []model.SubmissionEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// Submit handles POST /records.
func (h *RecordHandler) Submit(c *gin.Context) {
	var rec model.LandRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		badRequest(c, "record", err.Error())
		return
	}
	actor := identity.AccountFromCtx(c)

	receipt, err := h.ledger.SubmitRecord(c.Request.Context(), actor, &rec)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	RecordLedgerWrite("submission")
	h.logger.Info("record submitted",
		zap.Uint64("record_id", rec.ID),
		zap.String("actor", actor),
		zap.Uint64("seq", uint64(receipt.Sequence)),
	)
	c.JSON(http.StatusCreated, receipt)
}

// GetRecord handles GET /records/:id.
func (h *RecordHandler) GetRecord(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := h.ledger.GetRecord(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// HasVoted handles GET /records/:id/votes/:officer.
func (h *RecordHandler) HasVoted(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	voted, err := h.ledger.HasVoted(c.Request.Context(), id, c.Param("officer"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"voted": voted})
}

// ReviewEvents handles GET /records/:id/votes.
func (h *RecordHandler) ReviewEvents(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	events, err := h.ledger.ReviewEvents(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if events == nil {
		events = []model.ReviewEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"votes": events})
}

type reviewRequest struct {
	Decision model.Decision `json:"decision" binding:"required"`
}

// Review handles POST /records/:id/reviews.
func (h *RecordHandler) Review(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "decision", "decision must be approve or reject")
		return
	}
	actor := identity.AccountFromCtx(c)

	receipt, err := h.ledger.SubmitReview(c.Request.Context(), actor, id, req.Decision)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	RecordLedgerWrite("review")
	h.logger.Info("review recorded",
		zap.Uint64("record_id", id),
		zap.String("officer", actor),
		zap.Stringer("decision", req.Decision),
	)
	c.JSON(http.StatusCreated, receipt)
}

type grantRequest struct {
	Account string `json:"account" binding:"required"`
}

// GrantOfficer handles POST /roles/officers.
func (h *RecordHandler) GrantOfficer(c *gin.Context) {
	h.grant(c, model.CapabilityOfficer)
}

// GrantSubmitter handles POST /roles/submitters.
func (h *RecordHandler) GrantSubmitter(c *gin.Context) {
	h.grant(c, model.CapabilitySubmitter)
}

func (h *RecordHandler) grant(c *gin.Context, capability model.Capability) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "account", "account is required")
		return
	}
	admin := identity.AccountFromCtx(c)
	ctx := c.Request.Context()

	var (
		receipt *model.Receipt
		err     error
	)
	if capability == model.CapabilityOfficer {
		receipt, err = h.ledger.GrantOfficer(ctx, admin, req.Account)
	} else {
		receipt, err = h.ledger.GrantSubmitter(ctx, admin, req.Account)
	}
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	RecordLedgerWrite("role")
	h.logger.Info("role granted",
		zap.String("admin", admin),
		zap.String("account", req.Account),
		zap.Stringer("capability", capability),
	)
	c.JSON(http.StatusCreated, receipt)
}

type thresholdRequest struct {
	RequiredApprovals int `json:"required_approvals" binding:"required"`
}

// SetRequiredApprovals handles PUT /settings/required-approvals.
func (h *RecordHandler) SetRequiredApprovals(c *gin.Context) {
	var req thresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "required_approvals", "required_approvals must be a positive integer")
		return
	}
	admin := identity.AccountFromCtx(c)

	receipt, err := h.ledger.SetRequiredApprovals(c.Request.Context(), admin, req.RequiredApprovals)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	RecordLedgerWrite("threshold")
	h.logger.Info("approval threshold changed",
		zap.String("admin", admin), zap.Int("required_approvals", req.RequiredApprovals))
	c.JSON(http.StatusOK, receipt)
}
