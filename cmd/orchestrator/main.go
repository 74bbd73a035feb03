// Command orchestrator runs the automated yield orchestrator: it drains
// signals from the durable queue, plans each into an ordered set of
// on-chain steps, gates them against the kill-switch/risk-cap policy, and
// executes them across every configured chain.
//
// Grounded on main.go's phase-numbered startup narration, flag-based CLI
// override of one config field, a background context cancelled on
// SIGINT/SIGTERM, and a timed graceful HTTP shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/certen/yield-orchestrator/internal/adapter"
	"github.com/certen/yield-orchestrator/internal/adapter/aavev3"
	"github.com/certen/yield-orchestrator/internal/chain"
	"github.com/certen/yield-orchestrator/internal/chain/evm"
	"github.com/certen/yield-orchestrator/internal/chain/move"
	"github.com/certen/yield-orchestrator/internal/chain/solana"
	"github.com/certen/yield-orchestrator/internal/config"
	"github.com/certen/yield-orchestrator/internal/dispatch"
	"github.com/certen/yield-orchestrator/internal/execution"
	"github.com/certen/yield-orchestrator/internal/keyvault"
	"github.com/certen/yield-orchestrator/internal/ledger"
	"github.com/certen/yield-orchestrator/internal/metrics"
	"github.com/certen/yield-orchestrator/internal/policy"
	"github.com/certen/yield-orchestrator/internal/store"
	"github.com/certen/yield-orchestrator/internal/types"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("Starting yield orchestrator")

	var (
		consumerID = flag.String("consumer-id", "", "Signal queue consumer ID (overrides SIGNAL_CONSUMER_ID)")
		showHelp   = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *showHelp {
		printHelp()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration:", err)
	}
	if *consumerID != "" {
		cfg.ConsumerID = *consumerID
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	log.Println("[Phase 1] Connecting to PostgreSQL database...")
	dbClient, err := store.NewClient(store.Options{
		URL:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DatabaseMaxConns,
		MaxIdleConns: cfg.DatabaseMinConns,
		MaxIdleTime:  time.Duration(cfg.DatabaseMaxIdleTime) * time.Second,
		MaxLifetime:  time.Duration(cfg.DatabaseMaxLifetime) * time.Second,
	})
	if err != nil {
		log.Fatal("database connection required but failed:", err)
	}
	defer dbClient.Close()
	if err := dbClient.MigrateUp(context.Background()); err != nil {
		log.Fatal("database migration failed:", err)
	}
	log.Println("[Phase 1] Connected and migrated")

	positions := store.NewPositionRepository(dbClient)
	transactions := store.NewTransactionRepository(dbClient)
	auditLog := store.NewAuditLogRepository(dbClient)
	systemConfig := store.NewSystemConfigRepository(dbClient)
	pools := store.NewPoolRepository(dbClient)
	pendingSignatures := store.NewPendingSignatureRepository(dbClient)
	signalQueue := store.NewSignalQueue(dbClient, cfg.ConsumerID)

	log.Println("[Phase 2] Loading key vault...")
	vault, err := keyvault.New(cfg.WalletEncryptionKey)
	if err != nil {
		log.Fatal("key vault init failed:", err)
	}
	if cfg.EvmPrivateKey != "" {
		vault.LoadInto(string(types.FamilyEVM), cfg.EvmPrivateKey)
		log.Println("[Phase 2] EVM hot key loaded")
	} else {
		log.Println("[Phase 2] No EVM hot key configured; EVM executes via PendingSignature")
	}
	if cfg.SolanaPrivateKey != "" {
		vault.LoadInto(string(types.FamilySolana), cfg.SolanaPrivateKey)
		log.Println("[Phase 2] Solana hot key loaded")
	}
	if cfg.AptosPrivateKey != "" {
		vault.LoadInto(string(types.FamilyAptos), cfg.AptosPrivateKey)
		log.Println("[Phase 2] Aptos hot key loaded")
	}
	defer vault.ClearAll()

	log.Println("[Phase 3] Dialing chain RPCs...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	evmChains := []types.ChainID{
		types.ChainEthereum, types.ChainArbitrum, types.ChainOptimism,
		types.ChainBase, types.ChainPolygon, types.ChainBSC,
	}
	evmStrategies := evm.StrategyMap{}
	for _, c := range evmChains {
		rpcURL := cfg.RPCURL(string(c))
		if rpcURL == "" {
			log.Printf("[Phase 3] skipping %s: no RPC URL configured", c)
			continue
		}
		strat, err := evm.Dial(ctx, c, rpcURL)
		if err != nil {
			log.Printf("[Phase 3] WARNING: %s unreachable: %v", c, err)
			continue
		}
		defer strat.Close()
		evmStrategies[c] = strat
		log.Printf("[Phase 3] dialed %s", c)
	}

	var solStrategy *solana.Strategy
	if url := cfg.RPCURL("solana"); url != "" {
		solStrategy, err = solana.Dial(ctx, types.ChainSolana, url)
		if err != nil {
			log.Printf("[Phase 3] WARNING: solana unreachable: %v", err)
		} else {
			log.Println("[Phase 3] dialed solana")
		}
	}

	var aptosStrategy *move.Strategy
	if url := cfg.RPCURL("aptos"); url != "" {
		aptosStrategy, err = move.Dial(ctx, types.ChainAptos, url)
		if err != nil {
			log.Printf("[Phase 3] WARNING: aptos unreachable: %v", err)
		} else {
			log.Println("[Phase 3] dialed aptos")
		}
	}

	log.Println("[Phase 4] Wiring policy gate and metrics...")
	m := metrics.New()
	watcher := policy.NewConfigWatcher(systemConfig, 15*time.Second)
	if err := watcher.Refresh(ctx); err != nil {
		log.Printf("WARNING: initial system_config refresh failed: %v", err)
	}
	go watcher.Run(ctx)
	gate := policy.NewGate(watcher, pools, transactions, auditLog)

	nonceSource := evm.NewMultiChainSource(evmStrategies, defaultNativePrices())
	nonces := chain.New(nonceSource)
	nonces.SetObserver(metrics.NewNonceResetObserver(m))

	fundsClient := evm.NewFundsClient(evmStrategies)
	funds := execution.NewFundPreparer(fundsClient, fundsClient)

	gasThresholds := execution.DefaultGasThresholds()
	gasScheduler := execution.NewGasScheduler(nonceSource, gasThresholds)

	intentRouter := execution.NewIntentRouter()

	wallets := newStaticWalletSource(cfg)

	log.Println("[Phase 5] Registering protocol adapters...")
	registry := adapter.NewRegistry()
	balanceReaders := registerAdapters(registry, cfg, fundsClient)
	if err := registry.InitializeAll(ctx); err != nil {
		log.Printf("WARNING: adapter initialization failed: %v", err)
	}

	planner := execution.NewPlanner(registry, funds, nil, wallets, gate)

	bridge := execution.NewPendingSignatureBridge(pendingSignatures)

	backends := map[types.Family]execution.Backend{}
	chains := map[types.ChainID]types.Chain{}
	for c, strat := range evmStrategies {
		backends[types.FamilyEVM] = evm.NewBackend(c, strat, nonces, nonceSource)
		chains[c] = evmChainMeta(c)
	}
	if solStrategy != nil {
		backends[types.FamilySolana] = solana.NewBackend(types.ChainSolana, solStrategy, solana.NewGenericInstructionBuilder())
		chains[types.ChainSolana] = types.Chain{ID: types.ChainSolana, Family: types.FamilySolana, NativeAsset: "SOL"}
	}
	if aptosStrategy != nil {
		backends[types.FamilyAptos] = move.NewBackend(types.ChainAptos, aptosStrategy, move.NewEd25519Signer())
		chains[types.ChainAptos] = types.Chain{ID: types.ChainAptos, Family: types.FamilyAptos, NativeAsset: "APT"}
	}

	executor := execution.NewExecutor(backends, chains, gasScheduler, intentRouter, gate, vault, wallets, bridge, transactions, auditLog)
	executor.SetObserver(metrics.NewStepObserver(m))
	executor.SetFusionEnabled(cfg.FusionApiKey != "")

	var dispatchChains []types.ChainID
	for c := range chains {
		dispatchChains = append(dispatchChains, c)
	}
	positionLedger := ledger.New(positions)
	dispatcher := dispatch.NewDispatcher(signalQueue, planner, gate, executor, transactions, auditLog, positionLedger, positions, registry, wallets, dispatchChains)

	log.Println("[Phase 6] Starting position ledger reconciler...")
	reconciler := ledger.NewReconciler(positions, balanceReaders, pools)
	go reconciler.Run(ctx)

	log.Println("[Phase 7] Starting signal dispatcher...")
	go dispatcher.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("[Phase 8] HTTP server listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed:", err)
		}
	}()

	log.Println("Orchestrator ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down orchestrator...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	wg.Wait()

	log.Println("Orchestrator stopped")
}

// defaultNativePrices is a startup snapshot; a future price-feed
// integration would refresh this on a timer instead (no price-feed SDK
// ships in the retrieval pack, and live price discovery beyond gas-cost
// accounting is an explicit non-goal).
func defaultNativePrices() map[types.ChainID]float64 {
	return map[types.ChainID]float64{
		types.ChainEthereum: 3000,
		types.ChainArbitrum: 3000,
		types.ChainOptimism: 3000,
		types.ChainBase:     3000,
		types.ChainPolygon:  0.7,
		types.ChainBSC:      600,
	}
}

func evmChainMeta(c types.ChainID) types.Chain {
	meta := types.Chain{ID: c, Family: types.FamilyEVM, NativeAsset: "ETH"}
	switch c {
	case types.ChainPolygon:
		meta.NativeAsset = "MATIC"
		meta.IsL2 = true
	case types.ChainBSC:
		meta.NativeAsset = "BNB"
	case types.ChainArbitrum, types.ChainOptimism, types.ChainBase:
		meta.IsL2 = true
	}
	return meta
}

// staticWalletSource resolves the orchestrator's own signing address per
// chain family from config, since one EOA/account is reused across every
// chain within a family.
type staticWalletSource struct {
	byFamily map[types.Family]string
}

func newStaticWalletSource(cfg *config.Config) *staticWalletSource {
	return &staticWalletSource{byFamily: map[types.Family]string{
		types.FamilyEVM:    cfg.EvmWalletAddress,
		types.FamilySolana: cfg.SolanaWalletAddress,
		types.FamilyAptos:  cfg.AptosWalletAddress,
	}}
}

func (s *staticWalletSource) WalletAddress(chain types.ChainID) (string, bool) {
	family := familyOf(chain)
	addr, ok := s.byFamily[family]
	if !ok || addr == "" {
		return "", false
	}
	return addr, true
}

func familyOf(chain types.ChainID) types.Family {
	switch chain {
	case types.ChainSolana:
		return types.FamilySolana
	case types.ChainAptos:
		return types.FamilyAptos
	default:
		return types.FamilyEVM
	}
}

// registerAdapters wires every protocol adapter this build ships. Only
// Aave v3 is registered today; adding a protocol means adding one
// adapter.Adapter implementation and one Register call here. It returns
// the adapters keyed by protocolId for the ledger Reconciler's
// on-chain-valuation path.
func registerAdapters(registry *adapter.Registry, cfg *config.Config, funds *evm.FundsClient) map[string]ledger.BalanceReader {
	readers := map[string]ledger.BalanceReader{}
	if pool := cfg.RPCURL("ethereum"); pool != "" {
		aave := aavev3.New(
			types.ChainEthereum,
			"0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2", // Aave v3 Pool (Ethereum mainnet)
			"0x8164Cc65827dcFe994AB23944CBC90e0aa80bFcb", // RewardsController (Ethereum mainnet)
			funds,
			map[string]aavev3.Reserve{},
		)
		registry.Register(aave)
		readers[aave.ProtocolID()] = aave
	}
	return readers
}

func printHelp() {
	fmt.Println("yield-orchestrator")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  orchestrator [OPTIONS]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --consumer-id=ID   Signal queue consumer ID (default: orchestrator-1)")
	fmt.Println("  --help             Show this help message")
}
