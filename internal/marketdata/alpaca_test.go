package marketdata

import (
	"context"
	"errors"
	"testing"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

type fakeBarsClient struct {
	bars []marketdata.Bar
	err  error
	req  marketdata.GetBarsRequest
	sym  string
}

func (f *fakeBarsClient) GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.sym = symbol
	f.req = req
	return f.bars, f.err
}

func TestAlpacaSource_Bars(t *testing.T) {
	fake := &fakeBarsClient{bars: []marketdata.Bar{
		{Timestamp: day0, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
		{Timestamp: day0.AddDate(0, 0, 1), Open: 1.5, High: 2, Low: 1, Close: 1.8, Volume: 200},
	}}
	src := newAlpacaSource(fake, "")

	series, err := src.Bars(context.Background(), "aapl", day0, day0.AddDate(0, 0, 5))
	if err != nil {
		t.Fatalf("Bars failed: %v", err)
	}
	if fake.sym != "AAPL" {
		t.Errorf("requested symbol = %s, want AAPL", fake.sym)
	}
	if fake.req.TimeFrame != marketdata.OneDay || fake.req.Feed != "sip" {
		t.Errorf("unexpected request: %+v", fake.req)
	}
	if series.Len() != 2 || series.Bars[1].Close != 1.8 || series.Bars[1].Volume != 200 {
		t.Errorf("unexpected series: %+v", series.Bars)
	}
}

func TestAlpacaSource_Errors(t *testing.T) {
	src := newAlpacaSource(&fakeBarsClient{err: errors.New("boom")}, "iex")
	if _, err := src.Bars(context.Background(), "AAPL", day0, day0); err == nil {
		t.Error("expected client error")
	}

	src = newAlpacaSource(&fakeBarsClient{}, "iex")
	if _, err := src.Bars(context.Background(), "AAPL", day0, day0); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Bars(ctx, "AAPL", day0, day0); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
