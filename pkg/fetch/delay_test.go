package fetch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRandomDelay_NextWithinRange(t *testing.T) {
	d := RandomDelay{Min: 10 * time.Millisecond, Max: 20 * time.Millisecond}
	for i := 0; i < 200; i++ {
		got := d.Next()
		if got < d.Min || got > d.Max {
			t.Fatalf("Next() = %v, want within [%v, %v]", got, d.Min, d.Max)
		}
	}
}

func TestRandomDelay_DegenerateRange(t *testing.T) {
	tests := []struct {
		name string
		d    RandomDelay
		want time.Duration
	}{
		{"equal bounds", RandomDelay{Min: 5 * time.Millisecond, Max: 5 * time.Millisecond}, 5 * time.Millisecond},
		{"inverted bounds", RandomDelay{Min: 5 * time.Millisecond, Max: time.Millisecond}, 5 * time.Millisecond},
		{"zero", RandomDelay{}, 0},
		{"negative min", RandomDelay{Min: -time.Second, Max: -2 * time.Second}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.Next(); got != tt.want {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRandomDelay_WaitSleeps(t *testing.T) {
	d := RandomDelay{Min: 20 * time.Millisecond, Max: 20 * time.Millisecond}
	start := time.Now()
	if err := d.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Wait() returned after %v, want at least 20ms", elapsed)
	}
}

func TestRandomDelay_WaitHonorsCancel(t *testing.T) {
	d := RandomDelay{Min: time.Minute, Max: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := d.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Wait() did not return promptly after cancel")
	}
}
