package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/collateral"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/crypto"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/invoker"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/keeper"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/metrics"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/oracle"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/order"
	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/settlement"
)

var errBadSignature = errors.New("invalid signature")

// Backend is the dispatcher surface the API exposes.
type Backend interface {
	Invoke(ctx context.Context, caller, account common.Address, invs []invoker.Invocation) (*invoker.Receipt, error)
	UpdateOperator(ctx context.Context, owner, delegate common.Address, enabled bool) error
	UseNonce(signer common.Address, nonce uint64) error
	RequestNonce(signer common.Address) (uint64, error)
	ReadOrder(owner, market common.Address, id uint64) (*order.TriggerOrder, error)
	CanExecuteOrder(owner, market common.Address, id uint64) (bool, error)
	Claim(ctx context.Context, caller, receiver common.Address, unwrap bool) (*invoker.ClaimResult, error)
	Claimable(receiver common.Address) (internal, external decimal.Decimal, err error)
}

// Server handles REST API and WebSocket connections
type Server struct {
	backend        Backend
	typed          *crypto.TypedSigner
	router         *mux.Router
	hub            *Hub
	allowedOrigins []string
	httpServer     *http.Server
	logger         *zap.Logger
}

func NewServer(backend Backend, typed *crypto.TypedSigner, hub *Hub, allowedOrigins []string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	s := &Server{
		backend:        backend,
		typed:          typed,
		router:         mux.NewRouter(),
		hub:            hub,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/invoke", s.handleInvoke).Methods("POST")
	api.HandleFunc("/operators", s.handleUpdateOperator).Methods("POST")
	api.HandleFunc("/nonces/{address}", s.handleGetNonce).Methods("GET")

	api.HandleFunc("/orders/{owner}/{market}/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{owner}/{market}/{id}/executable", s.handleCanExecute).Methods("GET")

	api.HandleFunc("/fees/claim", s.handleClaim).Methods("POST")
	api.HandleFunc("/fees/{receiver}", s.handleGetFees).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in the CORS policy.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves until Shutdown is called. The hub runs until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("api_listening", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Account) {
		respondError(w, http.StatusBadRequest, "invalid account", req.Account)
		return
	}
	calldata, err := hexutil.Decode(req.Calldata)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid calldata", err.Error())
		return
	}
	account := common.HexToAddress(req.Account)

	hash, err := s.typed.HashInvoke(crypto.InvokeRequest{Account: account, Nonce: req.Nonce, Calldata: calldata})
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	caller, err := s.recover(hash, req.Signature, req.Nonce)
	if err != nil {
		s.fail(w, err)
		return
	}

	invs, err := invoker.DecodeBatch(calldata)
	if err != nil {
		s.fail(w, err)
		return
	}
	rcpt, err := s.backend.Invoke(r.Context(), caller, account, invs)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, rcpt)
}

func (s *Server) handleUpdateOperator(w http.ResponseWriter, r *http.Request) {
	var req OperatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Delegate) {
		respondError(w, http.StatusBadRequest, "invalid delegate", req.Delegate)
		return
	}
	delegate := common.HexToAddress(req.Delegate)

	hash, err := s.typed.HashOperator(crypto.OperatorRequest{Delegate: delegate, Enabled: req.Enabled, Nonce: req.Nonce})
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	owner, err := s.recover(hash, req.Signature, req.Nonce)
	if err != nil {
		s.fail(w, err)
		return
	}

	if err := s.backend.UpdateOperator(r.Context(), owner, delegate, req.Enabled); err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, map[string]interface{}{
		"owner":    owner.Hex(),
		"delegate": delegate.Hex(),
		"enabled":  req.Enabled,
	})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	hash, err := s.typed.HashClaim(crypto.ClaimRequest{Unwrap: req.Unwrap, Nonce: req.Nonce})
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	receiver, err := s.recover(hash, req.Signature, req.Nonce)
	if err != nil {
		s.fail(w, err)
		return
	}

	res, err := s.backend.Claim(r.Context(), receiver, receiver, req.Unwrap)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, res)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	owner, market, id, ok := orderVars(w, r)
	if !ok {
		return
	}
	o, err := s.backend.ReadOrder(owner, market, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, orderInfo(o))
}

func (s *Server) handleCanExecute(w http.ResponseWriter, r *http.Request) {
	owner, market, id, ok := orderVars(w, r)
	if !ok {
		return
	}
	executable, err := s.backend.CanExecuteOrder(owner, market, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, ExecutableResponse{Executable: executable})
}

func (s *Server) handleGetFees(w http.ResponseWriter, r *http.Request) {
	receiver, ok := addressVar(w, r, "receiver")
	if !ok {
		return
	}
	internal, external, err := s.backend.Claimable(receiver)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, FeesResponse{Receiver: receiver.Hex(), Internal: internal, External: external})
}

func (s *Server) handleGetNonce(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r, "address")
	if !ok {
		return
	}
	n, err := s.backend.RequestNonce(addr)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, NonceResponse{Address: addr.Hex(), Nonce: n})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

// recover returns the signer of hash and consumes its request nonce.
func (s *Server) recover(hash []byte, signature string, nonce uint64) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, errBadSignature
	}
	signer, err := crypto.RecoverAddress(hash, sig)
	if err != nil {
		return common.Address{}, errBadSignature
	}
	if err := s.backend.UseNonce(signer, nonce); err != nil {
		return common.Address{}, err
	}
	return signer, nil
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("api_request_failed", zap.Error(err))
	}
	respondError(w, status, http.StatusText(status), err.Error())
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, invoker.ErrUnauthorized), errors.Is(err, errBadSignature):
		return http.StatusUnauthorized
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, settlement.ErrUnknownMarket),
		errors.Is(err, settlement.ErrUnknownVault):
		return http.StatusNotFound
	case errors.Is(err, invoker.ErrStaleNonce),
		errors.Is(err, order.ErrCapacityExceeded),
		errors.Is(err, oracle.ErrVersionAlreadyCommitted),
		errors.Is(err, oracle.ErrStaleVersion):
		return http.StatusConflict
	case errors.Is(err, order.ErrInvalidOrder),
		errors.Is(err, invoker.ErrMalformedAction),
		errors.Is(err, collateral.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, invoker.ErrCannotExecute),
		errors.Is(err, invoker.ErrFeeShortfall),
		errors.Is(err, keeper.ErrFeeExceedsCeiling),
		errors.Is(err, keeper.ErrNativePriceUnavailable),
		errors.Is(err, collateral.ErrInsufficientBalance),
		errors.Is(err, collateral.ErrInsufficientAllowance),
		errors.Is(err, collateral.ErrInsufficientLiquidity),
		errors.Is(err, settlement.ErrInvalidPosition),
		errors.Is(err, settlement.ErrInsufficientCollateral),
		errors.Is(err, settlement.ErrInsufficientMargin),
		errors.Is(err, settlement.ErrPriceUnavailable),
		errors.Is(err, settlement.ErrNotLiquidatable),
		errors.Is(err, settlement.ErrInsufficientShares),
		errors.Is(err, settlement.ErrInsufficientClaimable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func orderVars(w http.ResponseWriter, r *http.Request) (owner, market common.Address, id uint64, ok bool) {
	if owner, ok = addressVar(w, r, "owner"); !ok {
		return
	}
	if market, ok = addressVar(w, r, "market"); !ok {
		return
	}
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return owner, market, 0, false
	}
	return owner, market, id, true
}

func addressVar(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	v := mux.Vars(r)[name]
	if !common.IsHexAddress(v) {
		respondError(w, http.StatusBadRequest, "invalid "+name, v)
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
