package source

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotecache/pkg/fetch"
)

// fakeDoer returns a canned body and records the request.
type fakeDoer struct {
	body []byte
	err  error
	last fetch.Request
}

func (f *fakeDoer) Do(_ context.Context, req fetch.Request) ([]byte, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

func newTestClient(t *testing.T, doer *fakeDoer) *Client {
	t.Helper()

	c, err := NewClient(doer, zerolog.Nop(), WithBaseURL("http://quotes.test"))
	require.NoError(t, err)
	return c
}

func TestSecID(t *testing.T) {
	tests := []struct {
		symbol  string
		want    string
		wantErr bool
	}{
		{"SH600000", "1.600000", false},
		{"SZ000001", "0.000001", false},
		{"sh600519", "1.600519", false},
		{"SH000001", "1.000001", false},
		{"XX600000", "", true},
		{"A", "", true},
	}

	for _, tt := range tests {
		got, err := secID(tt.symbol)
		if tt.wantErr {
			assert.Error(t, err, tt.symbol)
			continue
		}
		require.NoError(t, err, tt.symbol)
		assert.Equal(t, tt.want, got, tt.symbol)
	}
}

func TestQuotesNormalization(t *testing.T) {
	// Raw fixed-point payload: price 12.34 arrives as 1234, volume in lots,
	// timestamp in epoch seconds.
	doer := &fakeDoer{body: []byte(`{
		"data": {
			"total": 1,
			"diff": [{
				"f12": "600000",
				"f13": 1,
				"f14": "PF Bank",
				"f2": 1234,
				"f3": 156,
				"f4": 19,
				"f5": 52311,
				"f6": 645000000,
				"f18": 1215,
				"f17": 1220,
				"f15": 1240,
				"f16": 1210,
				"f8": 123,
				"f9": 567,
				"f20": 360000000000,
				"f21": 350000000000,
				"f124": 1710313200
			}]
		}
	}`)}
	c := newTestClient(t, doer)

	records, err := c.Quotes(context.Background(), []string{"SH600000"}, LevelFull)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "SH600000", rec.Symbol)
	assert.Empty(t, rec.Err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Data, &got))

	assert.Equal(t, "600000", got["code"])
	assert.Equal(t, "PF Bank", got["name"])
	assert.InDelta(t, 12.34, got["price"], 1e-9)
	assert.InDelta(t, 1.56, got["change_pct"], 1e-9)
	assert.InDelta(t, 0.19, got["change"], 1e-9)
	assert.InDelta(t, 12.15, got["prev_close"], 1e-9)
	assert.InDelta(t, 12.40, got["high"], 1e-9)
	// Lots to shares.
	assert.InDelta(t, 5231100, got["volume"], 1e-9)
	// Epoch seconds rendered in the civil timezone (UTC+8).
	assert.Equal(t, "2024-03-13 15:00:00", got["time"])

	// Request shape: batch secids, raw fixed-point format, browser headers.
	assert.Contains(t, doer.last.URL, "secids=1.600000")
	assert.Contains(t, doer.last.URL, "fltt=1")
	assert.Equal(t, QuoteSource, doer.last.Source)
	assert.Contains(t, doer.last.Header.Get("User-Agent"), "Mozilla/5.0")
}

func TestQuotesSuspendedFieldsNull(t *testing.T) {
	doer := &fakeDoer{body: []byte(`{
		"data": {"total": 1, "diff": [{"f12": "600001", "f13": 1, "f14": "Halted Co", "f2": "-", "f5": "-"}]}
	}`)}
	c := newTestClient(t, doer)

	records, err := c.Quotes(context.Background(), []string{"SH600001"}, LevelBasic)
	require.NoError(t, err)
	require.Len(t, records, 1)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(records[0].Data, &got))
	assert.Nil(t, got["price"])
	assert.Nil(t, got["volume"])
}

func TestQuotesMalformedSymbolInlineError(t *testing.T) {
	doer := &fakeDoer{body: []byte(`{"data": {"total": 0, "diff": []}}`)}
	c := newTestClient(t, doer)

	records, err := c.Quotes(context.Background(), []string{"BAD", "SH600000"}, LevelBasic)
	require.NoError(t, err)

	require.NotEmpty(t, records)
	assert.Equal(t, "BAD", records[0].Symbol)
	assert.NotEmpty(t, records[0].Err)
}

func TestQuotesMissingDataSection(t *testing.T) {
	doer := &fakeDoer{body: []byte(`{"data": null}`)}
	c := newTestClient(t, doer)

	_, err := c.Quotes(context.Background(), []string{"SH600000"}, LevelBasic)
	assert.Error(t, err)
}

func TestKlineParsesBars(t *testing.T) {
	doer := &fakeDoer{body: []byte(`{
		"data": {
			"code": "600000",
			"klines": [
				"2024-03-12,12.00,12.30,12.50,11.90,123456,150000000.00,3.2",
				"2024-03-13,12.30,12.15,12.40,12.10,98765,120000000.00,2.1",
				"garbage-row"
			]
		}
	}`)}
	c := newTestClient(t, doer)

	rec, err := c.Kline(context.Background(), "SH600000", PeriodDaily, 120)
	require.NoError(t, err)
	assert.Equal(t, "SH600000", rec.Symbol)
	assert.Empty(t, rec.Err)

	var bars []Bar
	require.NoError(t, json.Unmarshal(rec.Data, &bars))
	require.Len(t, bars, 2, "malformed row must be skipped")

	assert.Equal(t, "2024-03-12", bars[0].Date)
	assert.InDelta(t, 12.00, bars[0].Open, 1e-9)
	assert.InDelta(t, 12.30, bars[0].Close, 1e-9)
	assert.Equal(t, int64(12345600), bars[0].Volume, "lot volume times 100")

	assert.Contains(t, doer.last.URL, "secid=1.600000")
	assert.Contains(t, doer.last.URL, "klt=101")
}

func TestKlinePeriodCodes(t *testing.T) {
	assert.Equal(t, "101", PeriodDaily.klt())
	assert.Equal(t, "102", PeriodWeekly.klt())
	assert.Equal(t, "103", PeriodMonthly.klt())
	assert.Equal(t, "kline-daily", PeriodDaily.Category())
}

func TestKlineBadSymbol(t *testing.T) {
	c := newTestClient(t, &fakeDoer{})

	rec, err := c.Kline(context.Background(), "??", PeriodDaily, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.Err)
}

func TestRankBuildsSortedQuery(t *testing.T) {
	doer := &fakeDoer{body: []byte(`{
		"data": {"total": 2, "diff": [
			{"f12": "600519", "f13": 1, "f14": "Moutai", "f2": 168800, "f3": 912},
			{"f12": "000858", "f13": 0, "f14": "Wuliangye", "f2": 15600, "f3": 855}
		]}
	}`)}
	c := newTestClient(t, doer)

	rec, err := c.Rank(context.Background(), RankByChangePct, 2)
	require.NoError(t, err)
	assert.Equal(t, string(RankByChangePct), rec.Symbol)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Data, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "SH600519", rows[0]["symbol"])
	assert.Equal(t, "SZ000858", rows[1]["symbol"])

	assert.Contains(t, doer.last.URL, "fid=f3")
	assert.Contains(t, doer.last.URL, "po=1")
	assert.Contains(t, doer.last.URL, "pz=2")
}

func TestRankUnknownDimension(t *testing.T) {
	c := newTestClient(t, &fakeDoer{})

	rec, err := c.Rank(context.Background(), RankDimension("bogus"), 5)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.Err)
}

func TestBoardLeaders(t *testing.T) {
	doer := &fakeDoer{body: []byte(`{
		"data": {"total": 1, "diff": [{"f12": "300750", "f13": 0, "f14": "CATL", "f2": 18900, "f3": 450}]}
	}`)}
	c := newTestClient(t, doer)

	rec, err := c.BoardLeaders(context.Background(), "BK0493", 10)
	require.NoError(t, err)
	assert.Equal(t, "BK0493", rec.Symbol)
	assert.Contains(t, doer.last.URL, "fs=b%3ABK0493")
}
