package barfile

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"crypto_backtest/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture() map[string][]domain.Bar {
	return map[string][]domain.Bar{
		"BTCUSDT": {
			domain.NewSpotBar(20240101, 42000, 43000, 41500, 42500, 41900, 1200.5, 51000000),
			domain.NewSpotBar(20240102, 42500, 45000, 42400, 44900, 42500, 1500, 66000000),
		},
		"ETHUSDT": {
			domain.NewSpotBar(20240101, 2300, 2350, 2280, 2340, 2290, 9000, 21000000),
		},
	}
}

func TestParquet_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.parquet")
	records := Records(fixture())

	require.NoError(t, WriteParquet(path, records))

	got, err := ReadParquet(path)
	require.NoError(t, err)
	require.Len(t, got, 3)

	grouped, err := Group(got)
	require.NoError(t, err)
	assert.Len(t, grouped, 2)
	for symbol, bars := range fixture() {
		require.Len(t, grouped[symbol], len(bars), symbol)
		for i := range bars {
			assert.True(t, bars[i].Equal(grouped[symbol][i]), "%s bar %d", symbol, i)
		}
	}
	assert.True(t, math.IsNaN(grouped["BTCUSDT"][0].Settlement))
}

func TestParquet_FutureColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "futures.parquet")
	bar := domain.Bar{
		Date: 20240105, Open: 1, High: 2, Low: 0.5, Close: 1.5, PrevClose: 1,
		Volume: 10, TotalTurnover: 15, Settlement: 1.4, PrevSettlement: 1.1, OpenInterest: 300,
	}
	require.NoError(t, Write(path, []Record{NewRecord("BTCUSDT", bar)}))

	got, err := Read(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Bar().Equal(bar))
}

func TestCSV_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, Write(path, Records(fixture())))

	got, err := Read(path)
	require.NoError(t, err)
	grouped, err := Group(got)
	require.NoError(t, err)
	assert.Len(t, grouped["BTCUSDT"], 2)
	assert.Equal(t, 42500.0, grouped["BTCUSDT"][0].Close)
	assert.True(t, math.IsNaN(grouped["ETHUSDT"][0].OpenInterest))
}

func TestReadCSV_SpotColumnsOnly(t *testing.T) {
	body := strings.Join([]string{
		"symbol,date,open,high,low,close,prev_close,volume,total_turnover",
		"BTCUSDT,2024-01-02,2,3,1,2.5,2,10,25",
		"BTCUSDT,20240101,1,2,0.5,2,nan,5,10",
	}, "\n")
	path := filepath.Join(t.TempDir(), "spot.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	got, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	grouped, err := Group(got)
	require.NoError(t, err)
	bars := grouped["BTCUSDT"]
	require.Len(t, bars, 2)
	assert.Equal(t, domain.Date(20240101), bars[0].Date, "records are ordered by date")
	assert.True(t, math.IsNaN(bars[0].PrevClose))
	assert.Nil(t, got[0].Settlement)
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing column", "symbol,date,open\nBTCUSDT,20240101,1\n"},
		{"bad date", "symbol,date,open,high,low,close,prev_close,volume,total_turnover\nBTCUSDT,2024-13-01,1,1,1,1,1,1,1\n"},
		{"bad number", "symbol,date,open,high,low,close,prev_close,volume,total_turnover\nBTCUSDT,20240101,x,1,1,1,1,1,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeCSV(strings.NewReader(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestGroup_RejectsDuplicates(t *testing.T) {
	r := NewRecord("BTCUSDT", domain.NewSpotBar(20240101, 1, 1, 1, 1, 1, 1, 1))
	_, err := Group([]Record{r, r})
	assert.ErrorIs(t, err, domain.ErrUnsortedBars)

	_, err = Group([]Record{{Date: 20240101}})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRead_UnknownFormat(t *testing.T) {
	_, err := Read("bars.xlsx")
	assert.ErrorIs(t, err, domain.ErrNotSupported)
}
