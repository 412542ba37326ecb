package main

import (
	"testing"

	"github.com/uhyunpark/hyperspot/params"
)

func TestBuildRegistry(t *testing.T) {
	reg, err := buildRegistry(params.Markets{Coins: []string{"btc", "eth"}, QuoteAsset: "usd", QuoteDecimals: 2})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !reg.Exists("btc-usd") || !reg.Exists("eth-usd") || reg.Count() != 2 {
		t.Errorf("registry = %+v", reg.List())
	}

	if _, err := buildRegistry(params.Markets{QuoteAsset: "usd"}); err == nil {
		t.Error("empty coin list accepted")
	}
	if _, err := buildRegistry(params.Markets{Coins: []string{"usd"}, QuoteAsset: "usd"}); err == nil {
		t.Error("coin equal to quote asset accepted")
	}
	if _, err := buildRegistry(params.Markets{Coins: []string{"btc", "btc"}, QuoteAsset: "usd"}); err == nil {
		t.Error("duplicate coin accepted")
	}
}
