package market

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hyperspot/pkg/app/core"
)

// Status defines the trading status of an instrument
type Status int8

const (
	Active Status = iota // Trading enabled
	Paused               // Submissions rejected
)

func (s Status) String() string {
	switch s {
	case Active:
		return "Active"
	case Paused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// Instrument is a spot coin market, e.g. btc quoted in usd.
//
// All amounts are integers:
//   - quantity in lots, 1 lot = 10^-BaseDecimals base asset
//   - price in quote minor units per lot, 1 unit = 10^-QuoteDecimals quote asset
//
// so the notional of an order is qty × price quote minor units.
type Instrument struct {
	ID            string // coin id, e.g. "btc"
	BaseAsset     string // e.g. "btc"
	QuoteAsset    string // e.g. "usd"
	BaseDecimals  int32
	QuoteDecimals int32
	Status        Status
}

// NewInstrument creates an active instrument with validation
func NewInstrument(id, base, quote string, baseDecimals, quoteDecimals int32) (*Instrument, error) {
	inst := &Instrument{
		ID:            id,
		BaseAsset:     base,
		QuoteAsset:    quote,
		BaseDecimals:  baseDecimals,
		QuoteDecimals: quoteDecimals,
		Status:        Active,
	}
	if err := inst.Validate(); err != nil {
		return nil, fmt.Errorf("invalid instrument: %w", err)
	}
	return inst, nil
}

// Validate checks instrument parameter sanity
func (i *Instrument) Validate() error {
	if err := ValidateID(i.ID); err != nil {
		return err
	}
	if err := ValidateID(i.BaseAsset); err != nil {
		return err
	}
	if err := ValidateID(i.QuoteAsset); err != nil {
		return err
	}
	if i.BaseAsset == i.QuoteAsset {
		return fmt.Errorf("base and quote assets must differ: %s", i.BaseAsset)
	}
	if i.BaseDecimals < 0 || i.BaseDecimals > 18 || i.QuoteDecimals < 0 || i.QuoteDecimals > 18 {
		return fmt.Errorf("decimals out of range: base=%d quote=%d", i.BaseDecimals, i.QuoteDecimals)
	}
	return nil
}

// ValidateID checks owner, asset and instrument ids.
// Ids are embedded in storage keys, so ':' is reserved.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", core.ErrValidation)
	}
	if len(id) > 128 {
		return fmt.Errorf("%w: id too long", core.ErrValidation)
	}
	if strings.ContainsAny(id, ": \t\n") {
		return fmt.Errorf("%w: id %q contains reserved characters", core.ErrValidation, id)
	}
	return nil
}

// Hold returns the asset and amount an order must have available.
// Buy: qty × price of the quote asset. Sell: qty of the base asset.
func (i *Instrument) Hold(side core.Side, price, qty int64) (string, int64, error) {
	if side == core.Buy {
		amount, err := core.Mul(qty, price)
		if err != nil {
			return "", 0, fmt.Errorf("%w: notional overflows", core.ErrValidation)
		}
		return i.QuoteAsset, amount, nil
	}
	return i.BaseAsset, qty, nil
}

// ValidateOrder checks an order's price and quantity before submission
func (i *Instrument) ValidateOrder(side core.Side, price, qty int64) error {
	if i.Status != Active {
		return fmt.Errorf("%w: instrument %s is %s", core.ErrValidation, i.ID, i.Status)
	}
	if !side.Valid() {
		return fmt.Errorf("%w: invalid side %d", core.ErrValidation, side)
	}
	if price <= 0 {
		return fmt.Errorf("%w: price must be positive: %d", core.ErrValidation, price)
	}
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive: %d", core.ErrValidation, qty)
	}
	// Both sides must be able to express the notional
	if _, err := core.Mul(qty, price); err != nil {
		return fmt.Errorf("%w: notional of %d × %d overflows", core.ErrValidation, qty, price)
	}
	return nil
}

// ParsePrice converts a decimal quote amount per lot ("5.00") to minor units
func (i *Instrument) ParsePrice(s string) (int64, error) {
	return parseFixed(s, i.QuoteDecimals)
}

// ParseQty converts a decimal base amount ("1.5") to lots
func (i *Instrument) ParseQty(s string) (int64, error) {
	return parseFixed(s, i.BaseDecimals)
}

// ParseQuote converts a decimal quote amount to minor units
func (i *Instrument) ParseQuote(s string) (int64, error) {
	return parseFixed(s, i.QuoteDecimals)
}

func (i *Instrument) FormatPrice(v int64) string {
	return decimal.New(v, -i.QuoteDecimals).StringFixed(i.QuoteDecimals)
}

func (i *Instrument) FormatQty(v int64) string {
	return decimal.New(v, -i.BaseDecimals).StringFixed(i.BaseDecimals)
}

// Decimals returns the precision of an asset traded on this instrument
func (i *Instrument) Decimals(asset string) (int32, bool) {
	switch asset {
	case i.BaseAsset:
		return i.BaseDecimals, true
	case i.QuoteAsset:
		return i.QuoteDecimals, true
	}
	return 0, false
}

// ParseAmount converts a decimal string to minor units at the given precision
func ParseAmount(s string, decimals int32) (int64, error) {
	return parseFixed(s, decimals)
}

// FormatAmount renders minor units at the given precision
func FormatAmount(v int64, decimals int32) string {
	return decimal.New(v, -decimals).StringFixed(decimals)
}

// parseFixed requires the value to land exactly on a minor unit
func parseFixed(s string, decimals int32) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid decimal %q", core.ErrValidation, s)
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("%w: %q has more than %d decimal places", core.ErrValidation, s, decimals)
	}
	bi := scaled.BigInt()
	if !bi.IsInt64() {
		return 0, fmt.Errorf("%w: %q out of range", core.ErrValidation, s)
	}
	return bi.Int64(), nil
}
