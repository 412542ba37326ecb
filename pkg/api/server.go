package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperspot/pkg/app/core"
	"github.com/uhyunpark/hyperspot/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperspot/pkg/app/core/market"
	"github.com/uhyunpark/hyperspot/pkg/app/exchange"
)

const (
	defaultLimit = 50
	maxLimit     = 500
	maxBodyBytes = 1 << 16
)

// Exchange is what the API needs from the engine
type Exchange interface {
	SubmitOrder(ctx context.Context, req exchange.Request) (exchange.Outcome, error)
	BookSnapshot(instrument string) (exchange.Snapshot, error)
	Instruments() []market.Instrument
	Instrument(id string) (market.Instrument, error)
	AssetDecimals(asset string) (int32, bool)

	Deposit(owner, asset string, amount int64) (ledger.Balance, error)
	Withdraw(owner, asset string, amount int64) (ledger.Balance, error)
	Balances(owner string) []ledger.Balance

	Order(orderID string) (core.Order, bool, error)
	OrdersByOwner(owner string, limit int) ([]core.Order, error)
	RecentTrades(instrument string, limit int) ([]core.Trade, error)
	TradesByOwner(owner string, limit int) ([]core.Trade, error)
}

type Options struct {
	AllowedOrigins []string
	Gatherer       prometheus.Gatherer // served at /metrics when set
	Logger         *zap.SugaredLogger
}

// Server handles REST API requests
type Server struct {
	ex      Exchange
	router  *mux.Router
	handler http.Handler
	log     *zap.SugaredLogger
	http    *http.Server
}

// NewServer creates a new API server
func NewServer(ex Exchange, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		ex:     ex,
		router: mux.NewRouter(),
		log:    log,
	}
	s.setupRoutes(opts.Gatherer)

	c := cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	s.handler = c.Handler(s.router)
	return s
}

func (s *Server) setupRoutes(g prometheus.Gatherer) {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Instrument endpoints
	api.HandleFunc("/instruments", s.handleGetInstruments).Methods("GET")
	api.HandleFunc("/instruments/{id}", s.handleGetInstrument).Methods("GET")
	api.HandleFunc("/instruments/{id}/book", s.handleGetBook).Methods("GET")
	api.HandleFunc("/instruments/{id}/trades", s.handleGetTrades).Methods("GET")

	// Order endpoints
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")

	// Account endpoints
	api.HandleFunc("/accounts/{owner}/balances", s.handleGetBalances).Methods("GET")
	api.HandleFunc("/accounts/{owner}/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/accounts/{owner}/trades", s.handleGetAccountTrades).Methods("GET")
	api.HandleFunc("/accounts/{owner}/deposits", s.handleDeposit).Methods("POST")
	api.HandleFunc("/accounts/{owner}/withdrawals", s.handleWithdraw).Methods("POST")

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if g != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{})).Methods("GET")
	}
}

// Handler returns the CORS-wrapped router
func (s *Server) Handler() http.Handler { return s.handler }

// Start serves until Shutdown; it then returns http.ErrServerClosed
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Infow("api_starting", "addr", addr)
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetInstruments(w http.ResponseWriter, r *http.Request) {
	insts := s.ex.Instruments()
	response := make([]InstrumentInfo, len(insts))
	for i, inst := range insts {
		response[i] = instrumentInfo(inst)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetInstrument(w http.ResponseWriter, r *http.Request) {
	inst, err := s.ex.Instrument(mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, instrumentInfo(inst))
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	inst, err := s.ex.Instrument(id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	snap, err := s.ex.BookSnapshot(id)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	response := OrderbookSnapshot{
		Instrument: id,
		Bids:       make([]PriceLevel, len(snap.BidLevels)),
		Asks:       make([]PriceLevel, len(snap.AskLevels)),
		Timestamp:  time.Now().UnixMilli(),
	}
	for i, lvl := range snap.BidLevels {
		response.Bids[i] = PriceLevel{Price: inst.FormatPrice(lvl.Price), Size: inst.FormatQty(lvl.Qty), Orders: lvl.Orders}
	}
	for i, lvl := range snap.AskLevels {
		response.Asks[i] = PriceLevel{Price: inst.FormatPrice(lvl.Price), Size: inst.FormatQty(lvl.Qty), Orders: lvl.Orders}
	}
	respondJSON(w, response)
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	trades, err := s.ex.RecentTrades(mux.Vars(r)["id"], limit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondTrades(w, trades)
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	inst, err := s.ex.Instrument(req.Instrument)
	if err != nil {
		// unknown instrument in a body is a bad request, not a missing resource
		respondError(w, http.StatusBadRequest, "unknown instrument", err.Error())
		return
	}
	side, err := core.ParseSide(req.Side)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	price, err := inst.ParsePrice(req.Price)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	qty, err := inst.ParseQty(req.Size)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	out, err := s.ex.SubmitOrder(r.Context(), exchange.Request{
		Instrument: inst.ID,
		Owner:      req.Owner,
		Side:       side,
		Price:      price,
		Qty:        qty,
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}

	response := SubmitOrderResponse{
		Order:  orderInfo(inst, out.Order),
		Trades: make([]TradeInfo, len(out.Trades)),
	}
	for i, t := range out.Trades {
		response.Trades[i] = tradeInfo(inst, t)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, ok, err := s.ex.Order(mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	inst, err := s.ex.Instrument(o.Instrument)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, orderInfo(inst, o))
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	bs := s.ex.Balances(mux.Vars(r)["owner"])
	response := make([]BalanceInfo, 0, len(bs))
	for _, b := range bs {
		response = append(response, s.balanceInfo(b))
	}
	respondJSON(w, response)
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	orders, err := s.ex.OrdersByOwner(mux.Vars(r)["owner"], limit)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	response := make([]OrderInfo, 0, len(orders))
	for _, o := range orders {
		inst, err := s.ex.Instrument(o.Instrument)
		if err != nil {
			continue // instrument no longer configured
		}
		response = append(response, orderInfo(inst, o))
	}
	respondJSON(w, response)
}

func (s *Server) handleGetAccountTrades(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	trades, err := s.ex.TradesByOwner(mux.Vars(r)["owner"], limit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondTrades(w, trades)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, s.ex.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, s.ex.Withdraw)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, apply func(owner, asset string, amount int64) (ledger.Balance, error)) {
	var req TransferRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	decimals, ok := s.ex.AssetDecimals(req.Asset)
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown asset", req.Asset)
		return
	}
	amount, err := market.ParseAmount(req.Amount, decimals)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	b, err := apply(mux.Vars(r)["owner"], req.Asset, amount)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, s.balanceInfo(b))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Conversions
// ==============================

func instrumentInfo(inst market.Instrument) InstrumentInfo {
	return InstrumentInfo{
		ID:            inst.ID,
		BaseAsset:     inst.BaseAsset,
		QuoteAsset:    inst.QuoteAsset,
		BaseDecimals:  inst.BaseDecimals,
		QuoteDecimals: inst.QuoteDecimals,
		Status:        inst.Status.String(),
	}
}

func orderInfo(inst market.Instrument, o core.Order) OrderInfo {
	return OrderInfo{
		ID:         o.ID,
		Instrument: o.Instrument,
		Owner:      o.Owner,
		Side:       o.Side.String(),
		Price:      inst.FormatPrice(o.Price),
		Size:       inst.FormatQty(o.Qty),
		Filled:     inst.FormatQty(o.Filled),
		Remaining:  inst.FormatQty(o.Remaining()),
		Status:     o.Status.String(),
		Timestamp:  time.Unix(0, o.CreatedAt).UnixMilli(),
	}
}

func tradeInfo(inst market.Instrument, t core.Trade) TradeInfo {
	return TradeInfo{
		ID:          t.ID,
		Instrument:  t.Instrument,
		Seq:         t.Seq,
		Price:       inst.FormatPrice(t.Price),
		Size:        inst.FormatQty(t.Qty),
		Buyer:       t.Buyer,
		Seller:      t.Seller,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		TakerSide:   t.TakerSide.String(),
		Timestamp:   time.Unix(0, t.Timestamp).UnixMilli(),
	}
}

func (s *Server) balanceInfo(b ledger.Balance) BalanceInfo {
	d, _ := s.ex.AssetDecimals(b.Asset)
	return BalanceInfo{
		Asset:     b.Asset,
		Total:     market.FormatAmount(b.Total, d),
		Locked:    market.FormatAmount(b.Locked, d),
		Available: market.FormatAmount(b.Available(), d),
	}
}

func (s *Server) respondTrades(w http.ResponseWriter, trades []core.Trade) {
	response := make([]TradeInfo, 0, len(trades))
	for _, t := range trades {
		inst, err := s.ex.Instrument(t.Instrument)
		if err != nil {
			continue // instrument no longer configured
		}
		response = append(response, tradeInfo(inst, t))
	}
	respondJSON(w, response)
}

// ==============================
// Helper Functions
// ==============================

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", core.ErrValidation)
	}
	return min(n, maxLimit), nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// statusOf maps the engine's error kinds to HTTP statuses
func statusOf(err error) int {
	switch {
	case errors.Is(err, core.ErrUnknownInstrument):
		return http.StatusNotFound
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrPersistence), errors.Is(err, exchange.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Errorw("api_request_failed", "status", status, "err", err)
	}
	respondError(w, status, http.StatusText(status), err.Error())
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
