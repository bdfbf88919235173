// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api exposes the auction core over HTTP: a REST surface for
// bidders and pool queries, and a websocket feed for round-won events.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/mevshield/shieldpool/pkg/auction"
	"github.com/mevshield/shieldpool/pkg/ids"
	"github.com/mevshield/shieldpool/pkg/log"
	"github.com/mevshield/shieldpool/pkg/mev"
	"github.com/mevshield/shieldpool/pkg/oracle"
	"github.com/mevshield/shieldpool/pkg/seal"
	"github.com/mevshield/shieldpool/pkg/vault"
)

// Server is the HTTP front for the auction core.
type Server struct {
	registry  *auction.Registry
	vault     *vault.Vault
	sealer    *seal.Provider
	estimator *mev.Estimator
	log       log.Logger
}

// NewServer creates an API server. sealer may be nil; encrypted bid
// submission then returns 503.
func NewServer(registry *auction.Registry, v *vault.Vault, sealer *seal.Provider, estimator *mev.Estimator, logger log.Logger) *Server {
	return &Server{
		registry:  registry,
		vault:     v,
		sealer:    sealer,
		estimator: estimator,
		log:       logger,
	}
}

// Router builds the gin router for the server.
func (s *Server) Router(production bool) *gin.Engine {
	if production {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(config))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
	})

	api := router.Group("/api/v1")
	{
		api.POST("/pools", s.createPool)
		api.GET("/pools/:pool/round", s.getRound)
		api.GET("/pools/:pool/rounds", s.getRoundHistory)
		api.POST("/pools/:pool/bids", s.submitBid)
		api.POST("/pools/:pool/encrypted-bids", s.submitEncryptedBid)
		api.GET("/pools/:pool/bids/:bidder", s.getBid)
		api.GET("/pools/:pool/rewards", s.getRewards)
		api.GET("/pools/:pool/rewards/history", s.getRewardHistory)
		api.GET("/pools/:pool/mev", s.getMEVStats)
		api.POST("/pools/:pool/liquidity", s.adjustLiquidity)

		api.POST("/accounts/:addr/deposit", s.deposit)
		api.POST("/accounts/:addr/claim", s.claim)
		api.GET("/accounts/:addr", s.getAccount)
	}

	router.GET("/ws/rounds", s.handleRoundFeed)

	return router
}

func parsePool(c *gin.Context) (ids.PoolID, bool) {
	poolID, err := ids.PoolIDFromString(c.Param("pool"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pool id"})
		return ids.EmptyPoolID, false
	}
	return poolID, true
}

func parseAddr(c *gin.Context, param string) (ids.Address, bool) {
	addr, err := ids.AddressFromString(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return ids.EmptyAddress, false
	}
	return addr, true
}

func rejectionStatus(err error) int {
	switch {
	case errors.Is(err, auction.ErrUnknownPool),
		errors.Is(err, auction.ErrNoBid):
		return http.StatusNotFound
	case errors.Is(err, auction.ErrRoundNotActive),
		errors.Is(err, auction.ErrRoundExpired),
		errors.Is(err, auction.ErrBidTooLow),
		errors.Is(err, auction.ErrBidNotImproved),
		errors.Is(err, auction.ErrInsufficientDeposit),
		errors.Is(err, auction.ErrPoolExists):
		return http.StatusUnprocessableEntity
	case errors.Is(err, auction.ErrReentrantCall):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type createPoolRequest struct {
	PoolID string `json:"pool_id"`
	FeedID string `json:"feed_id" binding:"required"`
}

func (s *Server) createPool(c *gin.Context) {
	var req createPoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	poolID := ids.GeneratePoolID()
	if req.PoolID != "" {
		parsed, err := ids.PoolIDFromString(req.PoolID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pool id"})
			return
		}
		poolID = parsed
	}

	if err := s.registry.OnPoolCreate(poolID, oracle.FeedID(req.FeedID)); err != nil {
		c.JSON(rejectionStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"pool_id": poolID.String()})
}

func (s *Server) getRound(c *gin.Context) {
	poolID, ok := parsePool(c)
	if !ok {
		return
	}
	snap, err := s.registry.GetRoundState(poolID)
	if err != nil {
		c.JSON(rejectionStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pool_id":             snap.PoolID.String(),
		"number":              snap.Number,
		"state":               snap.State.String(),
		"opened_at":           snap.OpenedAt,
		"deadline":            snap.Deadline,
		"anchor_context":      snap.AnchorContext,
		"highest_bid":         snap.HighestBid,
		"highest_bidder":      snap.HighestBidder.String(),
		"encrypted_bids":      snap.EncryptedBids,
		"total_estimated_mev": snap.TotalEstimatedMEV,
	})
}

func (s *Server) getRoundHistory(c *gin.Context) {
	poolID, ok := parsePool(c)
	if !ok {
		return
	}
	snaps, err := s.registry.RoundHistory(poolID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rounds": snaps})
}

type bidRequest struct {
	Bidder string          `json:"bidder" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

func (s *Server) submitBid(c *gin.Context) {
	poolID, ok := parsePool(c)
	if !ok {
		return
	}
	var req bidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bidder, err := ids.AddressFromString(req.Bidder)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bidder address"})
		return
	}

	if err := s.registry.SubmitBid(poolID, bidder, req.Amount); err != nil {
		c.JSON(rejectionStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true, "amount": req.Amount})
}

// submitEncryptedBid seals the amount server-side before recording, so the
// plaintext amount never reaches round state.
func (s *Server) submitEncryptedBid(c *gin.Context) {
	poolID, ok := parsePool(c)
	if !ok {
		return
	}
	if s.sealer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "encryption unavailable"})
		return
	}
	var req bidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bidder, err := ids.AddressFromString(req.Bidder)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bidder address"})
		return
	}

	policy := seal.AccessPolicy{Descriptor: "round-finalization"}
	ct, err := s.sealer.Encrypt(poolID.String(), req.Amount, policy)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	session, err := s.registry.SubmitEncryptedBid(poolID, bidder, ct, policy)
	if err != nil {
		c.JSON(rejectionStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true, "session": session.String()})
}

func (s *Server) getBid(c *gin.Context) {
	poolID, ok := parsePool(c)
	if !ok {
		return
	}
	bidder, ok := parseAddr(c, "bidder")
	if !ok {
		return
	}
	bid, err := s.registry.GetBid(poolID, bidder)
	if err != nil {
		c.JSON(rejectionStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bid)
}

func (s *Server) getRewards(c *gin.Context) {
	poolID, ok := parsePool(c)
	if !ok {
		return
	}
	ledger, err := s.registry.GetRewardLedger(poolID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ledger)
}

func (s *Server) getRewardHistory(c *gin.Context) {
	poolID, ok := parsePool(c)
	if !ok {
		return
	}
	records, err := s.registry.RewardHistory(poolID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"distributions": records})
}

func (s *Server) getMEVStats(c *gin.Context) {
	poolID, ok := parsePool(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.estimator.Tracker().Stats(poolID))
}

type liquidityRequest struct {
	Provider string          `json:"provider" binding:"required"`
	Delta    decimal.Decimal `json:"delta" binding:"required"`
}

func (s *Server) adjustLiquidity(c *gin.Context) {
	poolID, ok := parsePool(c)
	if !ok {
		return
	}
	var req liquidityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	provider, err := ids.AddressFromString(req.Provider)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid provider address"})
		return
	}
	if err := s.registry.OnLiquidityChange(poolID, provider, req.Delta); err != nil {
		c.JSON(rejectionStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

func (s *Server) deposit(c *gin.Context) {
	addr, ok := parseAddr(c, "addr")
	if !ok {
		return
	}
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.vault.Deposit(addr, req.Amount); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": s.vault.Balance(addr)})
}

func (s *Server) claim(c *gin.Context) {
	addr, ok := parseAddr(c, "addr")
	if !ok {
		return
	}
	amount, err := s.vault.Claim(addr)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"claimed": amount, "balance": s.vault.Balance(addr)})
}

func (s *Server) getAccount(c *gin.Context) {
	addr, ok := parseAddr(c, "addr")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address":   addr.String(),
		"balance":   s.vault.Balance(addr),
		"claimable": s.vault.Claimable(addr),
	})
}
