// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/mevshield/shieldpool/pkg/api"
	"github.com/mevshield/shieldpool/pkg/auction"
	"github.com/mevshield/shieldpool/pkg/ids"
	"github.com/mevshield/shieldpool/pkg/log"
	"github.com/mevshield/shieldpool/pkg/metric"
	"github.com/mevshield/shieldpool/pkg/mev"
	"github.com/mevshield/shieldpool/pkg/oracle"
	"github.com/mevshield/shieldpool/pkg/rewards"
	"github.com/mevshield/shieldpool/pkg/seal"
	"github.com/mevshield/shieldpool/pkg/storage"
	"github.com/mevshield/shieldpool/pkg/vault"
)

var (
	// Node configuration flags
	dataDir  = flag.String("data-dir", "/tmp/shieldpoold", "Data directory")
	dbType   = flag.String("db-type", "badger", "Database type: badger, memory")
	apiPort  = flag.Int("api-port", 8080, "Bidder API port")
	opsPort  = flag.Int("ops-port", 9090, "Operations (trade engine + metrics) port")
	logLevel = flag.String("log-level", "info", "Log level")
	env      = flag.String("env", "development", "Environment (development/production)")

	// Auction configuration
	minBid        = flag.String("min-bid", "0.001", "Minimum bid")
	roundDuration = flag.Duration("round-duration", 12*time.Second, "Auction round duration")
	treasury      = flag.String("treasury", "", "Protocol treasury address (hex)")
	lpSharePct    = flag.Int64("lp-share-pct", 90, "LP share of distributed rewards, percent")

	// Encryption committee
	keyHolders = flag.Int("key-holders", 3, "Decryption committee size")
	threshold  = flag.Int("threshold", 2, "Decryption threshold")

	// Oracle configuration
	staleness       = flag.Duration("oracle-staleness", 60*time.Second, "Oracle staleness tolerance")
	fallbackPrice   = flag.String("fallback-price", "1.0", "Reference price used when the oracle degrades")
	oracleUpdateFee = flag.String("oracle-update-fee", "0", "Fee per oracle price update")

	// Version info
	Version   = "dev"
	GitCommit = "unknown"
)

// Node wires the auction core together with its collaborators.
type Node struct {
	Registry  *auction.Registry
	Vault     *vault.Vault
	Ledger    *rewards.Ledger
	Estimator *mev.Estimator
	Oracle    *oracle.FeedStore
	Sealer    *seal.Provider
	Contexts  *auction.SequenceSource
	Store     *storage.Storage
	Metrics   *metric.Metrics

	apiServer *http.Server
	opsServer *http.Server
	log       log.Logger
}

func main() {
	flag.Parse()

	fmt.Printf("MEVShield Pool daemon (shieldpoold) %s (commit: %s)\n", Version, GitCommit)

	logger := log.NewWithLevel(*logLevel)
	defer logger.Sync()

	node, err := NewNode(logger)
	if err != nil {
		fmt.Printf("Failed to create node: %v\n", err)
		os.Exit(1)
	}

	if err := node.Start(); err != nil {
		fmt.Printf("Failed to start node: %v\n", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := node.Shutdown(ctx); err != nil {
		fmt.Printf("Error during shutdown: %v\n", err)
	}

	fmt.Println("Daemon stopped")
}

// NewNode builds all components from flags.
func NewNode(logger log.Logger) (*Node, error) {
	metrics, err := metric.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	store, err := storage.NewStorage(*dbType, *dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	v := vault.New(logger)

	treasuryAddr := ids.GenerateAddress()
	if *treasury != "" {
		treasuryAddr, err = ids.AddressFromString(*treasury)
		if err != nil {
			return nil, fmt.Errorf("invalid treasury address: %w", err)
		}
	}

	ledger, err := rewards.NewLedger(v, store, treasuryAddr, *lpSharePct, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create reward ledger: %w", err)
	}

	feeds := oracle.NewFeedStore(oracle.FeedStoreConfig{
		StalenessTolerance: *staleness,
		UpdateFee:          decimal.RequireFromString(*oracleUpdateFee),
	}, logger)

	estimator := mev.NewEstimator(feeds, mev.Config{
		DefaultReferencePrice: decimal.RequireFromString(*fallbackPrice),
	}, metrics, logger)

	holders := make([]*seal.KeyHolder, *keyHolders)
	for i := range holders {
		holders[i], err = seal.NewKeyHolder(uint32(i + 1))
		if err != nil {
			return nil, fmt.Errorf("failed to create key holder: %w", err)
		}
	}
	sealer, err := seal.NewProvider(holders, *threshold, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create seal provider: %w", err)
	}

	contexts := auction.NewSequenceSource()

	registry := auction.NewRegistry(
		auction.Config{
			MinBid:        decimal.RequireFromString(*minBid),
			RoundDuration: *roundDuration,
		},
		contexts, v, ledger, estimator, sealer, store, metrics, logger,
	)

	return &Node{
		Registry:  registry,
		Vault:     v,
		Ledger:    ledger,
		Estimator: estimator,
		Oracle:    feeds,
		Sealer:    sealer,
		Contexts:  contexts,
		Store:     store,
		Metrics:   metrics,
		log:       logger,
	}, nil
}

// Start launches the bidder API and the operations server.
func (n *Node) Start() error {
	n.log.Info("Starting shieldpool node")

	apiRouter := api.NewServer(n.Registry, n.Vault, n.Sealer, n.Estimator, n.log).
		Router(*env == "production")
	n.apiServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", *apiPort),
		Handler: apiRouter,
	}
	go func() {
		n.log.Info("API server listening", "port", *apiPort)
		if err := n.apiServer.ListenAndServe(); err != http.ErrServerClosed {
			n.log.Error("API server error", "error", err)
		}
	}()

	opsRouter := n.setupOpsRoutes()
	n.opsServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", *opsPort),
		Handler: opsRouter,
	}
	go func() {
		n.log.Info("Ops server listening", "port", *opsPort)
		if err := n.opsServer.ListenAndServe(); err != http.ErrServerClosed {
			n.log.Error("Ops server error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully stops the servers and closes storage.
func (n *Node) Shutdown(ctx context.Context) error {
	n.log.Info("Shutting down node")

	if err := n.apiServer.Shutdown(ctx); err != nil {
		n.log.Error("API server shutdown error", "error", err)
	}
	if err := n.opsServer.Shutdown(ctx); err != nil {
		n.log.Error("Ops server shutdown error", "error", err)
	}
	return n.Store.Close()
}

// setupOpsRoutes exposes the trade-engine hooks, the oracle push endpoint,
// and metrics. These are trusted-collaborator calls, kept off the public
// bidder API.
func (n *Node) setupOpsRoutes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", n.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(n.Metrics.Gatherer(), promhttp.HandlerOpts{})).Methods("GET")

	r.HandleFunc("/rpc/pools/{pool}/before-trade", n.handleBeforeTrade).Methods("POST")
	r.HandleFunc("/rpc/pools/{pool}/after-trade", n.handleAfterTrade).Methods("POST")
	r.HandleFunc("/rpc/context/advance", n.handleAdvanceContext).Methods("POST")
	r.HandleFunc("/rpc/oracle/update", n.handleOracleUpdate).Methods("POST")

	return r
}

func (n *Node) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

type beforeTradeRequest struct {
	Trader string `json:"trader"`
}

func (n *Node) handleBeforeTrade(w http.ResponseWriter, r *http.Request) {
	poolID, err := ids.PoolIDFromString(mux.Vars(r)["pool"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	var req beforeTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	trader, err := ids.AddressFromString(req.Trader)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid trader address"})
		return
	}

	granted, reason, err := n.Registry.BeforeTrade(poolID, trader)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"exclusive_rights": granted,
		"reason":           reason,
	})
}

type afterTradeRequest struct {
	ExecutionPrice decimal.Decimal `json:"execution_price"`
	Volume         decimal.Decimal `json:"volume"`
}

func (n *Node) handleAfterTrade(w http.ResponseWriter, r *http.Request) {
	poolID, err := ids.PoolIDFromString(mux.Vars(r)["pool"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pool id"})
		return
	}
	var req afterTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := n.Registry.AfterTrade(poolID, req.ExecutionPrice, req.Volume); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (n *Node) handleAdvanceContext(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"context": n.Contexts.Advance()})
}

type oracleUpdateRequest struct {
	Updates []oracle.PriceUpdate `json:"updates"`
	Fee     decimal.Decimal      `json:"fee"`
}

func (n *Node) handleOracleUpdate(w http.ResponseWriter, r *http.Request) {
	var req oracleUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := n.Oracle.UpdatePriceFeeds(req.Updates, req.Fee); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
