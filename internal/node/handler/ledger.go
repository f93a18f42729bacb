package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/LandRegistry/internal/ledger"
	"github.com/jmerrifield20/LandRegistry/internal/model"
)

// LedgerHandler exposes read-only HTTP endpoints for the ledger's event chain.
type LedgerHandler struct {
	chain  ledger.Chain
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(chain ledger.Chain, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{chain: chain, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
		l.GET("/entries/:seq", h.GetEntry)
	}
}

// Overview handles GET /ledger and returns the chain length and current root hash.
func (h *LedgerHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.chain.Len(ctx)
	if err != nil {
		h.logger.Error("ledger Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger", "code": model.CodeUnavailable})
		return
	}

	root, err := h.chain.Root(ctx)
	if err != nil {
		h.logger.Error("ledger Root", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger root", "code": model.CodeUnavailable})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": count,
		"root":    root,
	})
}

// Verify handles GET /ledger/verify and walks the full chain to report integrity.
func (h *LedgerHandler) Verify(c *gin.Context) {
	if err := h.chain.Verify(c.Request.Context()); err != nil {
		h.logger.Warn("ledger integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// GetEntry handles GET /ledger/entries/:seq and returns a single ledger entry.
func (h *LedgerHandler) GetEntry(c *gin.Context) {
	seq, err := strconv.ParseUint(c.Param("seq"), 10, 64)
	if err != nil {
		badRequest(c, "seq", "seq must be a non-negative integer")
		return
	}

	entry, err := h.chain.Get(c.Request.Context(), model.Sequence(seq))
	if errors.Is(err, ledger.ErrEntryNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found", "code": model.CodeNotFound})
		return
	}
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}
