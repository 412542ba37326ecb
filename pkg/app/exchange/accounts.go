package exchange

import (
	"fmt"

	"github.com/uhyunpark/hyperspot/pkg/app/core"
	"github.com/uhyunpark/hyperspot/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperspot/pkg/app/core/market"
)

// Deposit credits an owner with an asset traded on some registered instrument
func (e *Exchange) Deposit(owner, asset string, amount int64) (ledger.Balance, error) {
	if err := e.checkAccount(owner, asset); err != nil {
		return ledger.Balance{}, err
	}
	b, err := e.ledger.Deposit(owner, asset, amount)
	if err != nil {
		return b, err
	}
	e.log.Infow("deposit", "owner", owner, "asset", asset, "amount", amount, "total", b.Total)
	return b, nil
}

// Withdraw debits an owner's available balance. Held funds cannot be withdrawn.
func (e *Exchange) Withdraw(owner, asset string, amount int64) (ledger.Balance, error) {
	if err := e.checkAccount(owner, asset); err != nil {
		return ledger.Balance{}, err
	}
	b, err := e.ledger.Withdraw(owner, asset, amount)
	if err != nil {
		return b, err
	}
	e.log.Infow("withdraw", "owner", owner, "asset", asset, "amount", amount, "total", b.Total)
	return b, nil
}

func (e *Exchange) checkAccount(owner, asset string) error {
	if err := market.ValidateID(owner); err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	if _, ok := e.registry.AssetDecimals(asset); !ok {
		return fmt.Errorf("%w: asset %s is not traded on any instrument", core.ErrValidation, asset)
	}
	return nil
}

// Balances returns an owner's committed balances sorted by asset
func (e *Exchange) Balances(owner string) []ledger.Balance {
	return e.ledger.Balances(owner)
}

// Balance returns one committed balance
func (e *Exchange) Balance(owner, asset string) ledger.Balance {
	return e.ledger.BalanceOf(owner, asset)
}

// Order returns the latest committed state of an order
func (e *Exchange) Order(orderID string) (core.Order, bool, error) {
	o, ok, err := e.store.LoadOrder(orderID)
	if err != nil {
		return core.Order{}, false, fmt.Errorf("%w: %v", core.ErrPersistence, err)
	}
	return o, ok, nil
}

// OrdersByOwner returns an owner's orders, newest first
func (e *Exchange) OrdersByOwner(owner string, limit int) ([]core.Order, error) {
	orders, err := e.store.LoadOrdersByOwner(owner, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrPersistence, err)
	}
	return orders, nil
}

// RecentTrades returns an instrument's latest trades, newest first
func (e *Exchange) RecentTrades(instrument string, limit int) ([]core.Trade, error) {
	if !e.registry.Exists(instrument) {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownInstrument, instrument)
	}
	ts, err := e.store.LoadRecentTrades(instrument, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrPersistence, err)
	}
	return ts, nil
}

// TradesByOwner returns trades where owner was buyer or seller, newest first
func (e *Exchange) TradesByOwner(owner string, limit int) ([]core.Trade, error) {
	ts, err := e.store.LoadTradesByOwner(owner, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrPersistence, err)
	}
	return ts, nil
}

// AssetDecimals returns an asset's precision if some instrument trades it
func (e *Exchange) AssetDecimals(asset string) (int32, bool) {
	return e.registry.AssetDecimals(asset)
}
