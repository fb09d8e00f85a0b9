package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"quotecache/pkg/fetch"
)

// fakeOracleServer is a Doer returning canned holiday payloads per date.
type fakeOracleServer struct {
	mu       sync.Mutex
	holidays map[string]bool // date -> holiday
	fail     bool
	code     int
	calls    int
}

func (f *fakeOracleServer) Do(_ context.Context, req fetch.Request) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.fail {
		return nil, errors.New("oracle unreachable")
	}
	if f.code != 0 {
		return []byte(fmt.Sprintf(`{"code":%d,"holiday":null}`, f.code)), nil
	}

	parts := strings.Split(req.URL, "/")
	date := parts[len(parts)-1]
	if f.holidays[date] {
		return []byte(`{"code":0,"holiday":{"holiday":true}}`), nil
	}
	return []byte(`{"code":0,"holiday":null}`), nil
}

func (f *fakeOracleServer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestCalendar(t *testing.T, server *fakeOracleServer) *Calendar {
	t.Helper()

	oracle := NewOracle(server, "http://oracle.test/api/holiday", zerolog.Nop())
	cal, err := New(oracle, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return cal
}

// civilTime builds an instant in the exchange timezone.
func civilTime(t *testing.T, year int, month time.Month, day, hour, min, sec int) time.Time {
	t.Helper()

	loc, err := time.LoadLocation(ZoneName)
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	return time.Date(year, month, day, hour, min, sec, 0, loc)
}

func TestIsTradingTimeWindows(t *testing.T) {
	cal := newTestCalendar(t, &fakeOracleServer{})
	ctx := context.Background()

	// 2024-03-13 is a Wednesday.
	tests := []struct {
		name string
		hour int
		min  int
		sec  int
		want bool
	}{
		{"before_preopen", 9, 14, 59, false},
		{"preopen_start", 9, 15, 0, true},
		{"preopen_end", 9, 25, 0, true},
		{"auction_gap", 9, 27, 0, false},
		{"morning_start", 9, 30, 0, true},
		{"mid_morning", 10, 30, 0, true},
		{"morning_end", 11, 30, 0, true},
		{"lunch_break", 12, 0, 0, false},
		{"afternoon_start", 13, 0, 0, true},
		{"mid_afternoon", 14, 15, 0, true},
		{"close", 15, 0, 0, true},
		{"after_close", 15, 0, 1, false},
		{"evening", 20, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instant := civilTime(t, 2024, time.March, 13, tt.hour, tt.min, tt.sec)
			if got := cal.IsTradingTime(ctx, instant); got != tt.want {
				t.Errorf("IsTradingTime(%02d:%02d:%02d) = %v, want %v",
					tt.hour, tt.min, tt.sec, got, tt.want)
			}
		})
	}
}

func TestIsTradingTimeWeekend(t *testing.T) {
	cal := newTestCalendar(t, &fakeOracleServer{})
	ctx := context.Background()

	// 2024-03-16 Saturday, 2024-03-17 Sunday, mid-session time of day.
	for day := 16; day <= 17; day++ {
		instant := civilTime(t, 2024, time.March, day, 10, 0, 0)
		if cal.IsTradingTime(ctx, instant) {
			t.Errorf("IsTradingTime on weekend day %d = true, want false", day)
		}
	}
}

func TestIsTradingTimeHoliday(t *testing.T) {
	server := &fakeOracleServer{holidays: map[string]bool{"2024-05-01": true}}
	cal := newTestCalendar(t, server)

	instant := civilTime(t, 2024, time.May, 1, 10, 0, 0) // Wednesday, Labor Day
	if cal.IsTradingTime(context.Background(), instant) {
		t.Error("IsTradingTime on oracle-confirmed holiday = true, want false")
	}
}

func TestIsTradingTimeOracleFailClosed(t *testing.T) {
	cal := newTestCalendar(t, &fakeOracleServer{fail: true})

	instant := civilTime(t, 2024, time.March, 13, 10, 0, 0)
	if cal.IsTradingTime(context.Background(), instant) {
		t.Error("Oracle failure should fail closed to holiday")
	}
}

func TestIsTradingTimeOracleErrorCode(t *testing.T) {
	cal := newTestCalendar(t, &fakeOracleServer{code: -1})

	instant := civilTime(t, 2024, time.March, 13, 10, 0, 0)
	if cal.IsTradingTime(context.Background(), instant) {
		t.Error("Oracle non-zero code should fail closed to holiday")
	}
}

func TestOracleMemoization(t *testing.T) {
	server := &fakeOracleServer{}
	cal := newTestCalendar(t, server)
	ctx := context.Background()

	instant := civilTime(t, 2024, time.March, 13, 10, 0, 0)
	for i := 0; i < 5; i++ {
		cal.IsTradingTime(ctx, instant)
	}

	if got := server.callCount(); got != 1 {
		t.Errorf("oracle calls = %d, want 1 (memoized)", got)
	}
}

func TestOracleMemoEviction(t *testing.T) {
	server := &fakeOracleServer{}
	oracle := NewOracle(server, "http://oracle.test/api/holiday", zerolog.Nop())
	ctx := context.Background()

	// A date far in the past is answered but falls outside the retention
	// window, so it never accumulates in the memo.
	old := time.Now().AddDate(0, 0, -10)
	oracle.IsHoliday(ctx, old)
	if got := oracle.MemoLen(); got != 0 {
		t.Errorf("memo length after stale insert = %d, want 0", got)
	}

	oracle.IsHoliday(ctx, time.Now())
	if got := oracle.MemoLen(); got != 1 {
		t.Errorf("memo length after current insert = %d, want 1", got)
	}
}

func TestNextSessionOpenSkipsWeekend(t *testing.T) {
	cal := newTestCalendar(t, &fakeOracleServer{})

	// Friday 2024-03-15 16:00, after close.
	friday := civilTime(t, 2024, time.March, 15, 16, 0, 0)
	open := cal.NextSessionOpen(context.Background(), friday)

	want := civilTime(t, 2024, time.March, 18, 9, 15, 0) // Monday 09:15
	if !open.Equal(want) {
		t.Errorf("NextSessionOpen = %v, want %v", open, want)
	}
}

func TestNextSessionOpenSameDayBeforeOpen(t *testing.T) {
	cal := newTestCalendar(t, &fakeOracleServer{})

	// Wednesday 08:00: the same day's 09:15 is next.
	morning := civilTime(t, 2024, time.March, 13, 8, 0, 0)
	open := cal.NextSessionOpen(context.Background(), morning)

	want := civilTime(t, 2024, time.March, 13, 9, 15, 0)
	if !open.Equal(want) {
		t.Errorf("NextSessionOpen = %v, want %v", open, want)
	}
}

func TestNextSessionOpenSkipsHoliday(t *testing.T) {
	server := &fakeOracleServer{holidays: map[string]bool{"2024-03-14": true}}
	cal := newTestCalendar(t, server)

	// Wednesday 16:00; Thursday is a holiday, Friday opens next.
	wednesday := civilTime(t, 2024, time.March, 13, 16, 0, 0)
	open := cal.NextSessionOpen(context.Background(), wednesday)

	want := civilTime(t, 2024, time.March, 15, 9, 15, 0)
	if !open.Equal(want) {
		t.Errorf("NextSessionOpen = %v, want %v", open, want)
	}
}

func TestNextSessionOpenHorizonFallback(t *testing.T) {
	// Every date reads as a holiday (fail-closed oracle).
	cal := newTestCalendar(t, &fakeOracleServer{fail: true})

	from := civilTime(t, 2024, time.March, 13, 10, 0, 0)
	open := cal.NextSessionOpen(context.Background(), from)

	if got := open.Sub(from); got != 12*time.Hour {
		t.Errorf("fallback duration = %v, want 12h", got)
	}
}

func TestAdaptiveTTLIntraday(t *testing.T) {
	cal := newTestCalendar(t, &fakeOracleServer{})
	ctx := context.Background()

	instant := civilTime(t, 2024, time.March, 13, 10, 0, 0)
	for i := 0; i < 20; i++ {
		ttl := cal.AdaptiveTTL(ctx, instant)
		if ttl < 5*time.Second || ttl >= 10*time.Second {
			t.Fatalf("intraday TTL = %v, want [5s, 10s)", ttl)
		}
	}
}

func TestAdaptiveTTLAfterClose(t *testing.T) {
	cal := newTestCalendar(t, &fakeOracleServer{})

	// Wednesday 16:00 -> Thursday 09:15.
	instant := civilTime(t, 2024, time.March, 13, 16, 0, 0)
	ttl := cal.AdaptiveTTL(context.Background(), instant)

	want := civilTime(t, 2024, time.March, 14, 9, 15, 0).Sub(instant)
	if ttl != want {
		t.Errorf("after-close TTL = %v, want %v", ttl, want)
	}
	if ttl <= 0 {
		t.Error("TTL must be positive")
	}
}

func TestAdaptiveTTLClosingRefreshMinute(t *testing.T) {
	cal := newTestCalendar(t, &fakeOracleServer{})

	// Exactly 15:00:00 is inside the afternoon window but must take the
	// long TTL path.
	instant := civilTime(t, 2024, time.March, 13, 15, 0, 0)
	ttl := cal.AdaptiveTTL(context.Background(), instant)

	if ttl < 10*time.Second {
		t.Errorf("closing-minute TTL = %v, want long TTL until next open", ttl)
	}
	want := civilTime(t, 2024, time.March, 14, 9, 15, 0).Sub(instant)
	if ttl != want {
		t.Errorf("closing-minute TTL = %v, want %v", ttl, want)
	}
}
