package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/uhyunpark/hyperspot/pkg/app/core/market"
	"github.com/uhyunpark/hyperspot/pkg/app/core/matching"
	"github.com/uhyunpark/hyperspot/pkg/app/exchange"
	"github.com/uhyunpark/hyperspot/pkg/metrics"
	"github.com/uhyunpark/hyperspot/pkg/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := storage.NewInMemoryPebbleStore()
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reg := market.NewRegistry()
	inst, err := market.NewInstrument("btc-usd", "btc", "usd", 0, 2)
	if err != nil {
		t.Fatalf("instrument: %v", err)
	}
	if err := reg.Register(inst); err != nil {
		t.Fatalf("register: %v", err)
	}

	promReg := prometheus.NewRegistry()
	m, err := metrics.New(promReg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	log := zaptest.NewLogger(t).Sugar()
	ex, err := exchange.New(exchange.Config{PricePolicy: matching.MakerPrice, Metrics: m}, reg, store, log)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	t.Cleanup(ex.Close)

	srv := httptest.NewServer(NewServer(ex, Options{Gatherer: promReg, Logger: log}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func deposit(t *testing.T, srv *httptest.Server, owner, asset, amount string) {
	t.Helper()
	var b BalanceInfo
	if code := do(t, srv, "POST", "/api/v1/accounts/"+owner+"/deposits", TransferRequest{Asset: asset, Amount: amount}, &b); code != http.StatusOK {
		t.Fatalf("deposit %s %s: status %d", owner, asset, code)
	}
}

func TestSubmitAndQuery(t *testing.T) {
	srv := newTestServer(t)
	deposit(t, srv, "seller", "btc", "5")
	deposit(t, srv, "buyer", "usd", "50.00")

	var rest SubmitOrderResponse
	code := do(t, srv, "POST", "/api/v1/orders", SubmitOrderRequest{
		Instrument: "btc-usd", Owner: "seller", Side: "sell", Price: "4.00", Size: "5",
	}, &rest)
	if code != http.StatusOK || rest.Order.Status != "pending" {
		t.Fatalf("sell: status %d order %+v", code, rest.Order)
	}

	var out SubmitOrderResponse
	code = do(t, srv, "POST", "/api/v1/orders", SubmitOrderRequest{
		Instrument: "btc-usd", Owner: "buyer", Side: "buy", Price: "5.00", Size: "10",
	}, &out)
	if code != http.StatusOK {
		t.Fatalf("buy: status %d", code)
	}
	if out.Order.Status != "partially_filled" || out.Order.Remaining != "5" {
		t.Errorf("buy order = %+v", out.Order)
	}
	if len(out.Trades) != 1 || out.Trades[0].Price != "4.00" || out.Trades[0].Size != "5" {
		t.Errorf("trades = %+v", out.Trades)
	}

	var book OrderbookSnapshot
	do(t, srv, "GET", "/api/v1/instruments/btc-usd/book", nil, &book)
	if len(book.Asks) != 0 || len(book.Bids) != 1 || book.Bids[0].Price != "5.00" || book.Bids[0].Size != "5" {
		t.Errorf("book = %+v", book)
	}

	var balances []BalanceInfo
	do(t, srv, "GET", "/api/v1/accounts/buyer/balances", nil, &balances)
	want := map[string]BalanceInfo{
		"btc": {Asset: "btc", Total: "5", Locked: "0", Available: "5"},
		"usd": {Asset: "usd", Total: "30.00", Locked: "25.00", Available: "5.00"},
	}
	if len(balances) != len(want) {
		t.Fatalf("balances = %+v", balances)
	}
	for _, b := range balances {
		if b != want[b.Asset] {
			t.Errorf("%s = %+v, want %+v", b.Asset, b, want[b.Asset])
		}
	}

	var trades []TradeInfo
	do(t, srv, "GET", "/api/v1/instruments/btc-usd/trades?limit=10", nil, &trades)
	if len(trades) != 1 || trades[0].Buyer != "buyer" {
		t.Errorf("trades = %+v", trades)
	}
	do(t, srv, "GET", "/api/v1/accounts/seller/trades", nil, &trades)
	if len(trades) != 1 {
		t.Errorf("seller trades = %+v", trades)
	}

	var orders []OrderInfo
	do(t, srv, "GET", "/api/v1/accounts/buyer/orders", nil, &orders)
	if len(orders) != 1 || orders[0].ID != out.Order.ID {
		t.Errorf("orders = %+v", orders)
	}

	var order OrderInfo
	if code := do(t, srv, "GET", "/api/v1/orders/"+rest.Order.ID, nil, &order); code != http.StatusOK || order.Status != "filled" {
		t.Errorf("order lookup: status %d order %+v", code, order)
	}
}

func TestErrorStatuses(t *testing.T) {
	srv := newTestServer(t)
	deposit(t, srv, "bob", "usd", "10.00")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"insufficient funds", "POST", "/api/v1/orders",
			SubmitOrderRequest{Instrument: "btc-usd", Owner: "bob", Side: "buy", Price: "5.00", Size: "10"}, http.StatusUnprocessableEntity},
		{"too many decimals", "POST", "/api/v1/orders",
			SubmitOrderRequest{Instrument: "btc-usd", Owner: "bob", Side: "buy", Price: "5.001", Size: "1"}, http.StatusBadRequest},
		{"zero size", "POST", "/api/v1/orders",
			SubmitOrderRequest{Instrument: "btc-usd", Owner: "bob", Side: "buy", Price: "5.00", Size: "0"}, http.StatusBadRequest},
		{"bad side", "POST", "/api/v1/orders",
			SubmitOrderRequest{Instrument: "btc-usd", Owner: "bob", Side: "hold", Price: "5.00", Size: "1"}, http.StatusBadRequest},
		{"unknown instrument in body", "POST", "/api/v1/orders",
			SubmitOrderRequest{Instrument: "doge-usd", Owner: "bob", Side: "buy", Price: "5.00", Size: "1"}, http.StatusBadRequest},
		{"unknown fields", "POST", "/api/v1/orders", map[string]string{"qty": "1"}, http.StatusBadRequest},
		{"unknown instrument", "GET", "/api/v1/instruments/doge-usd/book", nil, http.StatusNotFound},
		{"missing order", "GET", "/api/v1/orders/nope", nil, http.StatusNotFound},
		{"bad limit", "GET", "/api/v1/instruments/btc-usd/trades?limit=-1", nil, http.StatusBadRequest},
		{"overdraw", "POST", "/api/v1/accounts/bob/withdrawals", TransferRequest{Asset: "usd", Amount: "10.01"}, http.StatusUnprocessableEntity},
		{"unknown asset", "POST", "/api/v1/accounts/bob/deposits", TransferRequest{Asset: "doge", Amount: "1"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errResp ErrorResponse
			if code := do(t, srv, tt.method, tt.path, tt.body, &errResp); code != tt.want {
				t.Errorf("status = %d, want %d (%+v)", code, tt.want, errResp)
			}
		})
	}
}

func TestInstrumentsHealthMetrics(t *testing.T) {
	srv := newTestServer(t)

	var insts []InstrumentInfo
	do(t, srv, "GET", "/api/v1/instruments", nil, &insts)
	if len(insts) != 1 || insts[0].ID != "btc-usd" || insts[0].Status != "Active" {
		t.Errorf("instruments = %+v", insts)
	}

	var health map[string]string
	if code := do(t, srv, "GET", "/health", nil, &health); code != http.StatusOK || health["status"] != "ok" {
		t.Errorf("health = %d %v", code, health)
	}

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "hyperspot_book_resting_orders") {
		t.Errorf("metrics output missing book gauge")
	}
}
