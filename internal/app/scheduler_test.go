package app

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewScheduler(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{"five fields", "30 2 * * *", false},
		{"descriptor", "@daily", false},
		{"every", "@every 1h", false},
		{"empty", "", true},
		{"garbage", "not a schedule", true},
		{"six fields", "0 30 2 * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScheduler(tt.spec, func(context.Context) {}, nil)
			if tt.wantErr {
				if !errors.Is(err, ErrConfig) {
					t.Fatalf("NewScheduler(%q) error = %v, want ErrConfig", tt.spec, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewScheduler(%q) error = %v", tt.spec, err)
			}
		})
	}
}

func TestScheduler_Next(t *testing.T) {
	s, err := NewScheduler("30 2 * * *", func(context.Context) {}, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	from := time.Date(2024, 6, 15, 12, 0, 0, 0, time.Local)
	want := time.Date(2024, 6, 16, 2, 30, 0, 0, time.Local)
	if got := s.Next(from); !got.Equal(want) {
		t.Errorf("Next() = %v, want %v", got, want)
	}
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	s, err := NewScheduler("@every 1h", func(context.Context) {}, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
