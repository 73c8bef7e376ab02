package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	strategydomain "github.com/wyfcoding/strategytrading/internal/strategy/domain"
)

type stubQuoteSource struct {
	prices map[string]decimal.Decimal
}

func (s *stubQuoteSource) GetPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	price, ok := s.prices[symbol]
	if !ok {
		return decimal.Zero, errors.New("no quote for " + symbol)
	}
	return price, nil
}

func optionSymbolFor(underlying string, strike int, suffix string, expiry time.Time) string {
	return fmt.Sprintf("%s-%s-%d%s", underlying, expiry.Format("20060102"), strike, suffix)
}

func TestCurrentPricePassesThroughPlainSymbols(t *testing.T) {
	quotes := &stubQuoteSource{prices: map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(100),
	}}
	svc := NewBlackScholesPricingService(quotes, 0.03, 0.3)

	price, err := svc.CurrentPrice(context.Background(), "BTC")

	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(100)))

	_, err = svc.CurrentPrice(context.Background(), "NOQUOTE")
	assert.Error(t, err)
}

func TestCurrentPriceModelsOptionSymbols(t *testing.T) {
	quotes := &stubQuoteSource{prices: map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(100),
	}}
	svc := NewBlackScholesPricingService(quotes, 0.03, 0.3)
	expiry := time.Now().AddDate(0, 0, 30)

	call, err := svc.CurrentPrice(context.Background(), optionSymbolFor("BTC", 100, "C", expiry))
	require.NoError(t, err)
	put, err := svc.CurrentPrice(context.Background(), optionSymbolFor("BTC", 100, "P", expiry))
	require.NoError(t, err)

	assert.True(t, call.IsPositive(), "call price %s", call)
	assert.True(t, put.IsPositive(), "put price %s", put)

	// 买卖权平价：C - P = S - K·e^(-rT)
	yearsToExpiry := time.Until(expiry).Hours() / 24 / 365
	parity := 100 - 100*math.Exp(-0.03*yearsToExpiry)
	diff, _ := call.Sub(put).Float64()
	assert.InDelta(t, parity, diff, 0.01, "put-call parity violated: C-P=%f want %f", diff, parity)
}

func TestCurrentPriceExpiredOptionIsIntrinsic(t *testing.T) {
	quotes := &stubQuoteSource{prices: map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(120),
	}}
	svc := NewBlackScholesPricingService(quotes, 0.03, 0.3)
	expired := time.Now().AddDate(0, 0, -1)

	call, err := svc.CurrentPrice(context.Background(), optionSymbolFor("BTC", 100, "C", expired))
	require.NoError(t, err)
	assert.True(t, call.Equal(decimal.NewFromInt(20)), "expired ITM call %s", call)

	put, err := svc.CurrentPrice(context.Background(), optionSymbolFor("BTC", 100, "P", expired))
	require.NoError(t, err)
	assert.True(t, put.IsZero(), "expired OTM put %s", put)
}

func TestParseOptionSymbol(t *testing.T) {
	expiry := time.Now().AddDate(0, 0, 30)

	opt, ok := parseOptionSymbol(optionSymbolFor("BTC", 110, "P", expiry))
	require.True(t, ok)
	assert.Equal(t, "BTC", opt.underlying)
	assert.Equal(t, strategydomain.OptionTypePut, opt.optionType)
	assert.True(t, opt.strike.Equal(decimal.NewFromInt(110)))
	assert.Equal(t, expiry.Format("20060102"), opt.expiry.Format("20060102"))

	for _, symbol := range []string{"BTC", "BTC-USDT", "AAPL-C100", "BTC-20261231-X", "BTC-20261231-0C"} {
		_, ok := parseOptionSymbol(symbol)
		assert.False(t, ok, "symbol %s must not parse as option", symbol)
	}
}

func TestOptionGreeksDirection(t *testing.T) {
	quotes := &stubQuoteSource{}
	svc := NewBlackScholesPricingService(quotes, 0.03, 0.3)
	expiry := time.Now().AddDate(0, 0, 30)
	spot := decimal.NewFromInt(100)
	strike := decimal.NewFromInt(100)

	callGreeks, err := svc.OptionGreeks(context.Background(), "BTC", strike, strategydomain.OptionTypeCall, expiry, spot)
	require.NoError(t, err)
	putGreeks, err := svc.OptionGreeks(context.Background(), "BTC", strike, strategydomain.OptionTypePut, expiry, spot)
	require.NoError(t, err)

	assert.True(t, callGreeks.Delta.IsPositive() && callGreeks.Delta.LessThan(decimal.NewFromInt(1)), "call delta %s", callGreeks.Delta)
	assert.True(t, putGreeks.Delta.IsNegative() && putGreeks.Delta.GreaterThan(decimal.NewFromInt(-1)), "put delta %s", putGreeks.Delta)
	assert.True(t, callGreeks.Theta.IsNegative(), "long call theta %s", callGreeks.Theta)
	assert.True(t, callGreeks.Gamma.Equal(putGreeks.Gamma), "gamma parity")
}
