// Package rpc exposes the daemon's HTTP surface: treasury status and price
// views, a manual keeper trigger, boardroom director queries, health and
// Prometheus metrics.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arthchain/core/state"
	"arthchain/core/types"
	"arthchain/native/boardroom"
	"arthchain/native/oracle"
	"arthchain/native/treasury"
	"arthchain/observability/metrics"
)

// BoardroomView is the query surface the API needs from a boardroom. Both
// engine variants satisfy it.
type BoardroomView interface {
	Name() string
	Earned(st boardroom.State, account types.Address) (*big.Int, error)
}

// priceFeed is the writable half of an oracle; SimpleOracle implements it.
// Read-only oracles simply don't get the POST endpoint behavior.
type priceFeed interface {
	SetPrice(caller types.Address, price *big.Int) error
}

type balanceView interface {
	BalanceOf(st boardroom.State, account types.Address) (*big.Int, error)
}

type laggedBalanceView interface {
	GetBalanceFromLastEpoch(st boardroom.State, account types.Address) (*big.Int, error)
}

// Config carries the dependencies for the HTTP server.
type Config struct {
	ListenAddress     string
	Manager           *state.Manager
	Treasury          *treasury.Treasury
	Oracle            oracle.Oracle
	Boardrooms        []BoardroomView
	Keeper            types.Address
	Logger            *slog.Logger
	RequestsPerMinute float64
	Burst             int
}

// Server is the HTTP API front the state manager and engines.
type Server struct {
	cfg    Config
	logger *slog.Logger
	rooms  map[string]BoardroomView
	http   *http.Server
}

// NewServer constructs the server and its router.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 600
	}
	srv := &Server{cfg: cfg, logger: logger, rooms: make(map[string]BoardroomView, len(cfg.Boardrooms))}
	for _, room := range cfg.Boardrooms {
		srv.rooms[room.Name()] = room
	}
	router := chi.NewRouter()
	router.Use(requestID)
	router.Use(requestLogger(logger))
	router.Use(newRateLimiter(cfg.RequestsPerMinute, cfg.Burst).middleware)
	router.Get("/healthz", srv.handleHealthz)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	router.Route("/v1", func(r chi.Router) {
		r.Get("/treasury", srv.handleTreasuryStatus)
		r.Get("/treasury/price", srv.handlePrice)
		r.Post("/treasury/price", srv.handleSetPrice)
		r.Post("/treasury/allocate", srv.handleAllocate)
		r.Get("/boardrooms/{name}/directors/{addr}", srv.handleDirector)
	})
	srv.http = &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv
}

// ListenAndServe blocks serving HTTP until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type treasuryStatusResponse struct {
	Phase                     string `json:"phase"`
	Epoch                     uint64 `json:"epoch"`
	NextEpochPoint            uint64 `json:"nextEpochPoint"`
	Reserve                   string `json:"reserve"`
	CashToBondConversionLimit string `json:"cashToBondConversionLimit"`
	AccumulatedBonds          string `json:"accumulatedBonds"`
	CirculatingSupply         string `json:"circulatingSupply"`
}

func (s *Server) handleTreasuryStatus(w http.ResponseWriter, r *http.Request) {
	var status *treasury.Status
	err := s.cfg.Manager.View(func(txn *state.Txn) error {
		var viewErr error
		status, viewErr = s.cfg.Treasury.GetStatus(txn)
		return viewErr
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, treasuryStatusResponse{
		Phase:                     status.Phase.String(),
		Epoch:                     status.Epoch,
		NextEpochPoint:            status.NextEpochPoint,
		Reserve:                   status.Reserve.String(),
		CashToBondConversionLimit: status.CashToBondConversionLimit.String(),
		AccumulatedBonds:          status.AccumulatedBonds.String(),
		CirculatingSupply:         status.CirculatingSupply.String(),
	})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	price, err := s.cfg.Oracle.GetPrice()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"price": price.String()})
}

type setPriceRequest struct {
	Caller string `json:"caller"`
	Price  string `json:"price"`
}

// handleSetPrice ingests a TWAP observation into the oracle. The oracle
// enforces its own owner check against the submitted caller, the same
// caller-address authorization model the ledger operations use.
func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	feed, ok := s.cfg.Oracle.(priceFeed)
	if !ok {
		writeError(w, http.StatusNotImplemented, errors.New("rpc: oracle does not accept observations"))
		return
	}
	var req setPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := types.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	price, ok := new(big.Int).SetString(req.Price, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, errors.New("rpc: price must be a decimal integer"))
		return
	}
	if err := feed.SetPrice(caller, price); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, oracle.ErrNotOwner) {
			status = http.StatusForbidden
		}
		writeError(w, status, err)
		return
	}
	value, _ := new(big.Float).SetInt(price).Float64()
	metrics.Treasury().SetOraclePrice(value / 1e18)
	writeJSON(w, http.StatusOK, map[string]string{"price": price.String()})
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	err := s.cfg.Manager.Apply(func(txn *state.Txn) error {
		return s.cfg.Treasury.AllocateSeigniorage(txn, s.cfg.Keeper)
	})
	if err != nil {
		metrics.Treasury().ObserveAllocationError()
		writeError(w, allocateStatus(err), err)
		return
	}
	var epoch uint64
	if viewErr := s.cfg.Manager.View(func(txn *state.Txn) error {
		var err error
		epoch, err = s.cfg.Treasury.Epoch(txn)
		return err
	}); viewErr == nil {
		metrics.Treasury().SetEpoch(epoch)
	}
	writeJSON(w, http.StatusOK, map[string]any{"allocated": true, "epoch": epoch})
}

func allocateStatus(err error) int {
	switch {
	case errors.Is(err, treasury.ErrEpochNotAllowed), errors.Is(err, treasury.ErrEpochNotStarted):
		return http.StatusConflict
	case errors.Is(err, treasury.ErrMigrated), errors.Is(err, treasury.ErrNotInitialized):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

type directorResponse struct {
	Boardroom            string `json:"boardroom"`
	Address              string `json:"address"`
	Earned               string `json:"earned"`
	Balance              string `json:"balance,omitempty"`
	BalanceFromLastEpoch string `json:"balanceFromLastEpoch,omitempty"`
}

func (s *Server) handleDirector(w http.ResponseWriter, r *http.Request) {
	room, ok := s.rooms[chi.URLParam(r, "name")]
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("rpc: unknown boardroom"))
		return
	}
	addr, err := types.ParseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp := directorResponse{Boardroom: room.Name(), Address: addr.String()}
	err = s.cfg.Manager.View(func(txn *state.Txn) error {
		earned, err := room.Earned(txn, addr)
		if err != nil {
			return err
		}
		resp.Earned = earned.String()
		if view, ok := room.(balanceView); ok {
			balance, err := view.BalanceOf(txn, addr)
			if err != nil {
				return err
			}
			resp.Balance = balance.String()
		}
		if view, ok := room.(laggedBalanceView); ok {
			balance, err := view.GetBalanceFromLastEpoch(txn, addr)
			if err != nil {
				return err
			}
			resp.BalanceFromLastEpoch = balance.String()
		}
		return nil
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, boardroom.ErrDirectorNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
