package api

// API request and response types. Amounts cross the API as decimal strings
// and are converted with the instrument's precision.

// ==============================
// REST Response Types
// ==============================

// InstrumentInfo represents an instrument's static configuration
type InstrumentInfo struct {
	ID            string `json:"id"`         // e.g., "btc-usd"
	BaseAsset     string `json:"baseAsset"`  // e.g., "btc"
	QuoteAsset    string `json:"quoteAsset"` // e.g., "usd"
	BaseDecimals  int32  `json:"baseDecimals"`
	QuoteDecimals int32  `json:"quoteDecimals"`
	Status        string `json:"status"` // "Active", "Paused"
}

// OrderbookSnapshot represents current orderbook state
type OrderbookSnapshot struct {
	Instrument string       `json:"instrument"`
	Bids       []PriceLevel `json:"bids"`      // Sorted high to low
	Asks       []PriceLevel `json:"asks"`      // Sorted low to high
	Timestamp  int64        `json:"timestamp"` // Unix milliseconds
}

// PriceLevel aggregates the resting orders at one price
type PriceLevel struct {
	Price  string `json:"price"`
	Size   string `json:"size"`
	Orders int    `json:"orders"`
}

// TradeInfo represents an executed trade
type TradeInfo struct {
	ID          string `json:"id"`
	Instrument  string `json:"instrument"`
	Seq         uint64 `json:"seq"`
	Price       string `json:"price"`
	Size        string `json:"size"`
	Buyer       string `json:"buyer"`
	Seller      string `json:"seller"`
	BuyOrderID  string `json:"buyOrderId"`
	SellOrderID string `json:"sellOrderId"`
	TakerSide   string `json:"takerSide"` // "buy" or "sell"
	Timestamp   int64  `json:"timestamp"` // Unix milliseconds
}

// BalanceInfo represents one asset balance of an owner
type BalanceInfo struct {
	Asset     string `json:"asset"`
	Total     string `json:"total"`
	Locked    string `json:"locked"`    // Held for resting orders
	Available string `json:"available"` // Total - Locked
}

// OrderInfo represents an order (resting or historical)
type OrderInfo struct {
	ID         string `json:"id"`
	Instrument string `json:"instrument"`
	Owner      string `json:"owner"`
	Side       string `json:"side"` // "buy" or "sell"
	Price      string `json:"price"`
	Size       string `json:"size"`
	Filled     string `json:"filled"`
	Remaining  string `json:"remaining"`
	Status     string `json:"status"`    // "pending", "partially_filled", "filled"
	Timestamp  int64  `json:"timestamp"` // Unix milliseconds
}

// SubmitOrderResponse is the outcome of an accepted submission
type SubmitOrderResponse struct {
	Order  OrderInfo   `json:"order"`
	Trades []TradeInfo `json:"trades"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// REST Request Types
// ==============================

// SubmitOrderRequest is the payload for POST /api/v1/orders
type SubmitOrderRequest struct {
	Instrument string `json:"instrument"`
	Owner      string `json:"owner"`
	Side       string `json:"side"`  // "buy" or "sell"
	Price      string `json:"price"` // e.g., "5.00"
	Size       string `json:"size"`  // e.g., "10"
}

// TransferRequest is the payload for deposits and withdrawals
type TransferRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}
