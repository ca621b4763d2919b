package clock_test

import (
	"sync"
	"testing"
	"time"

	"github.com/artpar/modgate/adapters/clock"
)

func TestReal(t *testing.T) {
	before := time.Now()
	got := clock.Real{}.Now()
	if got.Before(before) || got.After(time.Now()) {
		t.Errorf("Real.Now() = %v, outside call window", got)
	}
}

func TestFake(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		step func(*clock.Fake)
		want time.Time
	}{
		{"stopped", func(*clock.Fake) {}, start},
		{"advance", func(f *clock.Fake) { f.Advance(90 * time.Second) }, start.Add(90 * time.Second)},
		{"advance back", func(f *clock.Fake) { f.Advance(-time.Hour) }, start.Add(-time.Hour)},
		{"set", func(f *clock.Fake) { f.Set(start.AddDate(1, 0, 0)) }, start.AddDate(1, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := clock.NewFake(start)
			tt.step(f)
			if got := f.Now(); !got.Equal(tt.want) {
				t.Errorf("Now() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFake_ConcurrentAdvance(t *testing.T) {
	f := clock.NewFake(time.Unix(0, 0))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Advance(time.Second)
			_ = clock.InZone(f, time.UTC).Now()
		}()
	}
	wg.Wait()

	if got := f.Now().Unix(); got != 50 {
		t.Errorf("Now().Unix() = %d, want 50", got)
	}
}

func TestInZone(t *testing.T) {
	loc := time.FixedZone("JST", 9*60*60)
	base := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	z := clock.InZone(base, loc)

	got := z.Now()
	if got.Location() != loc {
		t.Errorf("Location = %v, want %v", got.Location(), loc)
	}
	if got.Hour() != 9 {
		t.Errorf("Hour = %d, want 9", got.Hour())
	}
	if !got.Equal(base.Now()) {
		t.Error("zoned time must be the same instant")
	}
	if z.Location() != loc {
		t.Error("Location() mismatch")
	}
}

func TestInZone_Defaults(t *testing.T) {
	z := clock.InZone(nil, nil)
	if z.Location() != time.UTC {
		t.Errorf("Location = %v, want UTC", z.Location())
	}
	if z.Now().Location() != time.UTC {
		t.Error("Now should be in UTC")
	}

	var zero clock.Zoned
	if zero.Now().Location() != time.UTC || zero.Location() != time.UTC {
		t.Error("zero Zoned should report UTC")
	}
}

func TestSince(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFake(start)
	c.Advance(250 * time.Millisecond)

	if got := clock.Since(c, start); got != 250*time.Millisecond {
		t.Errorf("Since = %v, want 250ms", got)
	}
}
