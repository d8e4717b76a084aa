package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"arthchain/config"
	"arthchain/core/events"
	"arthchain/core/state"
	"arthchain/core/types"
	"arthchain/native/boardroom"
	"arthchain/native/oracle"
	"arthchain/native/token"
	"arthchain/native/treasury"
	"arthchain/native/vault"
	"arthchain/observability/logging"
	"arthchain/observability/metrics"
	"arthchain/rpc"
	"arthchain/storage"
)

var genesisDoneKey = []byte("genesis/done")

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("ARTH_ENV"))
	var logOpts []logging.Option

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if cfg.LogFile != "" {
		logOpts = append(logOpts, logging.WithRotatingFile(cfg.LogFile, 100, 5, 28))
	}
	logger := logging.Setup("arthd", env, logOpts...)

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("Failed to open storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	manager.SetEmitter(logEmitter{logger: logger})

	node, err := buildNode(cfg, logger)
	if err != nil {
		logger.Error("Failed to wire engines", slog.Any("error", err))
		os.Exit(1)
	}

	if err := bootstrap(manager, node, cfg, logger); err != nil {
		logger.Error("Failed to bootstrap ledger", slog.Any("error", err))
		os.Exit(1)
	}

	views := make([]rpc.BoardroomView, 0, len(node.sinks))
	for _, sink := range node.sinks {
		view, ok := sink.(rpc.BoardroomView)
		if !ok {
			logger.Error("boardroom sink lacks a query surface", "type", fmt.Sprintf("%T", sink))
			os.Exit(1)
		}
		views = append(views, view)
	}
	server := rpc.NewServer(rpc.Config{
		ListenAddress:     cfg.RPCAddress,
		Manager:           manager,
		Treasury:          node.treasury,
		Oracle:            node.oracle,
		Boardrooms:        views,
		Keeper:            node.keeper,
		Logger:            logger,
		RequestsPerMinute: cfg.RateLimitPerMinute,
		Burst:             cfg.RateLimitBurst,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runKeeper(ctx, manager, node, cfg.EpochPeriodSeconds, logger)

	go func() {
		logger.Info("rpc server listening", "address", cfg.RPCAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("rpc server stopped", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("rpc shutdown failed", slog.Any("error", err))
	}
}

// node bundles the wired engines.
type node struct {
	cash, bond, share *token.Token
	oracle            *oracle.SimpleOracle
	treasury          *treasury.Treasury
	vault             *vault.Vault
	sinks             []treasury.BoardroomSink
	vaultRooms        []vault.BalanceObserver
	owner             types.Address
	keeper            types.Address
	treasuryAddr      types.Address
	fund              types.Address
}

func buildNode(cfg *config.Config, logger *slog.Logger) (*node, error) {
	n := &node{
		cash:         token.MustNew(token.SymbolCash),
		bond:         token.MustNew(token.SymbolBond),
		share:        token.MustNew(token.SymbolShare),
		treasuryAddr: moduleAddress("treasury"),
	}
	var err error
	if n.owner, err = parseAddressOr(cfg.Owner, moduleAddress("owner")); err != nil {
		return nil, err
	}
	if n.keeper, err = parseAddressOr(cfg.Keeper, n.owner); err != nil {
		return nil, err
	}
	if n.fund, err = parseAddressOr(cfg.Fund, types.Address{}); err != nil {
		return nil, err
	}

	n.oracle = oracle.NewSimpleOracle(n.owner, time.Duration(cfg.OracleMaxAgeSeconds)*time.Second)
	if strings.TrimSpace(cfg.InitialPrice) != "" {
		price, err := config.ParsePrice(cfg.InitialPrice)
		if err != nil {
			return nil, err
		}
		if err := n.oracle.SetPrice(n.owner, price); err != nil {
			return nil, err
		}
	}

	rates := make(map[string]uint64, len(cfg.Boardrooms))
	needVault := false
	for _, roomCfg := range cfg.Boardrooms {
		rates[roomCfg.Name] = roomCfg.Rate
		roomAddr := moduleAddress("boardroom/" + roomCfg.Name)
		reward := n.cash
		if roomCfg.RewardToken == "share" {
			reward = n.share
		}
		switch roomCfg.Kind {
		case "custodial":
			stake := n.share
			if roomCfg.StakeToken == "cash" {
				stake = n.cash
			}
			room := boardroom.New(roomCfg.Name, stake, reward, roomAddr,
				time.Duration(roomCfg.LockPeriodSeconds)*time.Second,
				time.Duration(roomCfg.VestForSeconds)*time.Second)
			n.sinks = append(n.sinks, room)
		case "vault":
			needVault = true
			room := boardroom.NewVault(roomCfg.Name, reward, roomAddr,
				time.Duration(roomCfg.VestForSeconds)*time.Second)
			n.sinks = append(n.sinks, room)
			n.vaultRooms = append(n.vaultRooms, room)
		}
	}
	if needVault {
		n.vault = vault.New("vault", n.share, moduleAddress("vault"),
			time.Duration(cfg.VaultLockPeriodSeconds)*time.Second)
		n.vault.AttachObservers(n.vaultRooms...)
	}

	target, _ := config.ParsePrice(cfg.TargetPrice)
	purchase, _ := config.ParsePrice(cfg.BondPurchasePrice)
	redemption, _ := config.ParsePrice(cfg.BondRedemptionPrice)
	maxIncrease := new(big.Int).Mul(
		new(big.Int).SetUint64(cfg.MaxSupplyIncreasePercent),
		new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil),
	)
	startTime := cfg.EpochStartTime
	if startTime == 0 {
		startTime = uint64(time.Now().Unix())
	}
	n.treasury, err = treasury.New(n.treasuryAddr, n.owner, n.cash, n.bond, n.share, n.oracle, n.fund, n.sinks, treasury.Params{
		StartTime:                 startTime,
		Period:                    cfg.EpochPeriodSeconds,
		TargetPrice:               target,
		BondPurchasePrice:         purchase,
		BondRedemptionPrice:       redemption,
		MaxSupplyIncreasePerEpoch: maxIncrease,
		FundAllocationRate:        cfg.FundAllocationRate,
		BondSeigniorageRate:       cfg.BondSeigniorageRate,
		StabilityFeeRate:          cfg.StabilityFeeRate,
		BoardroomRates:            rates,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("engines wired",
		"boardrooms", len(n.sinks),
		"vault", needVault,
		"treasury", n.treasuryAddr.String(),
	)
	return n, nil
}

// bootstrap runs the one-time genesis transaction: token governance, seeded
// balances, boardroom and vault initialisation, and treasury activation.
func bootstrap(manager *state.Manager, n *node, cfg *config.Config, logger *slog.Logger) error {
	return manager.Apply(func(txn *state.Txn) error {
		done, err := txn.KVGet(genesisDoneKey, new(uint64))
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		for _, tok := range []*token.Token{n.cash, n.bond} {
			if err := tok.InitGovernance(txn, n.treasuryAddr, n.treasuryAddr); err != nil {
				return err
			}
		}
		if err := n.share.InitGovernance(txn, n.owner, n.owner); err != nil {
			return err
		}
		for _, account := range cfg.Genesis {
			addr, err := types.ParseAddress(account.Address)
			if err != nil {
				return err
			}
			if err := mintGenesis(txn, n.cash, n.treasuryAddr, addr, account.Cash); err != nil {
				return err
			}
			if err := mintGenesis(txn, n.bond, n.treasuryAddr, addr, account.Bond); err != nil {
				return err
			}
			if err := mintGenesis(txn, n.share, n.owner, addr, account.Share); err != nil {
				return err
			}
		}
		type initializer interface {
			Init(st boardroom.State, owner, operator types.Address) error
		}
		for _, sink := range n.sinks {
			if err := sink.(initializer).Init(txn, n.owner, n.treasuryAddr); err != nil {
				return err
			}
		}
		if n.vault != nil {
			if err := n.vault.Init(txn, n.owner); err != nil {
				return err
			}
			if err := n.vault.SetBoardrooms(txn, n.owner, n.vaultRooms...); err != nil {
				return err
			}
		}
		if err := n.treasury.Initialize(txn, n.owner); err != nil {
			return err
		}
		logger.Info("genesis applied", "accounts", len(cfg.Genesis))
		return txn.KVPut(genesisDoneKey, uint64(1))
	})
}

func mintGenesis(txn *state.Txn, tok *token.Token, operator, to types.Address, amount string) error {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return fmt.Errorf("invalid genesis amount %q", amount)
	}
	if value.Sign() == 0 {
		return nil
	}
	return tok.Mint(txn, operator, to, value)
}

// runKeeper sleeps until each epoch boundary and fires the permissionless
// allocation as it passes, re-reading the boundary from state after every
// attempt.
func runKeeper(ctx context.Context, manager *state.Manager, n *node, period uint64, logger *slog.Logger) {
	timer := time.NewTimer(time.Second)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		var next uint64
		err := manager.View(func(txn *state.Txn) error {
			point, err := n.treasury.NextEpochPoint(txn)
			if err != nil {
				return err
			}
			next = point
			return nil
		})
		if err != nil {
			logger.Error("keeper view failed", slog.Any("error", err))
			timer.Reset(keeperWait(time.Now().Unix(), 0, period))
			continue
		}
		now := time.Now().Unix()
		if uint64(now) < next {
			timer.Reset(keeperWait(now, next, period))
			continue
		}
		err = manager.Apply(func(txn *state.Txn) error {
			return n.treasury.AllocateSeigniorage(txn, n.keeper)
		})
		switch {
		case err == nil:
			updateTreasuryMetrics(manager, n)
			logger.Info("seigniorage allocated", "epochPoint", next)
		case errors.Is(err, treasury.ErrEpochNotAllowed), errors.Is(err, treasury.ErrEpochNotStarted):
			// Raced another caller across the boundary.
		default:
			metrics.Treasury().ObserveAllocationError()
			logger.Error("allocation failed", slog.Any("error", err))
		}
		timer.Reset(time.Second)
	}
}

// keeperWait returns how long the keeper sleeps before re-checking the epoch
// clock: until nextEpochPoint, clamped between one second and one period.
func keeperWait(now int64, nextEpochPoint, period uint64) time.Duration {
	ceiling := time.Duration(period) * time.Second
	if ceiling < time.Second {
		ceiling = time.Second
	}
	wait := time.Duration(int64(nextEpochPoint)-now) * time.Second
	if wait > ceiling {
		return ceiling
	}
	if wait < time.Second {
		return time.Second
	}
	return wait
}

func updateTreasuryMetrics(manager *state.Manager, n *node) {
	_ = manager.View(func(txn *state.Txn) error {
		status, err := n.treasury.GetStatus(txn)
		if err != nil {
			return err
		}
		metrics.Treasury().SetEpoch(status.Epoch)
		reserve, _ := new(big.Float).SetInt(status.Reserve).Float64()
		metrics.Treasury().SetBondReserve(reserve / 1e18)
		return nil
	})
	if price, err := n.oracle.GetPrice(); err == nil {
		value, _ := new(big.Float).SetInt(price).Float64()
		metrics.Treasury().SetOraclePrice(value / 1e18)
	}
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.StorageBackend {
	case "memory":
		return storage.NewMemDB(), nil
	case "leveldb":
		return storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	case "bolt":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "ledger.db"))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// moduleAddress derives a stable ledger address for a protocol-owned account.
func moduleAddress(name string) types.Address {
	var addr types.Address
	sum := sha256.Sum256([]byte("arthchain/module/" + name))
	copy(addr[:], sum[:20])
	return addr
}

func parseAddressOr(s string, fallback types.Address) (types.Address, error) {
	if strings.TrimSpace(s) == "" {
		return fallback, nil
	}
	return types.ParseAddress(s)
}

// logEmitter forwards committed ledger events to the structured logger and
// the Prometheus collectors.
type logEmitter struct {
	logger *slog.Logger
}

func (e logEmitter) Emit(evt events.Event) {
	payload := evt.Event()
	if payload == nil {
		return
	}
	metrics.Treasury().ObserveEvent(payload)
	args := make([]any, 0, len(payload.Attributes)*2+2)
	args = append(args, "type", payload.Type)
	for key, value := range payload.Attributes {
		args = append(args, key, value)
	}
	e.logger.Info("ledger event", args...)
}
