package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"strategy-lab/internal/domain"
)

var _ Source = (*AlpacaSource)(nil)

// barsClient is the subset of the Alpaca market-data client used here.
type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaConfig holds Alpaca market-data credentials.
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string // optional data API override
	Feed      string // "sip" or "iex"; default "sip"
}

// AlpacaSource fetches daily bars from the Alpaca market-data API.
type AlpacaSource struct {
	client barsClient
	feed   string
}

// NewAlpacaSource creates an AlpacaSource.
func NewAlpacaSource(cfg AlpacaConfig) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.BaseURL != "" {
		opts.BaseURL = cfg.BaseURL
	}
	return newAlpacaSource(marketdata.NewClient(opts), cfg.Feed)
}

func newAlpacaSource(client barsClient, feed string) *AlpacaSource {
	if feed == "" {
		feed = "sip"
	}
	return &AlpacaSource{client: client, feed: feed}
}

// Bars fetches daily bars. The Alpaca client is not context-aware, so ctx is
// only checked before the request.
func (s *AlpacaSource) Bars(ctx context.Context, symbol string, start, end time.Time) (*domain.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(symbol)

	raw, err := s.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      s.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca GetBars %s: %w", symbol, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, domain.Bar{
			Timestamp: ab.Timestamp.UTC(),
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    float64(ab.Volume),
		})
	}
	return finalize(symbol, bars, start, end)
}
