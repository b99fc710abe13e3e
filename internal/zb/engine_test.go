package zb_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"zbackup/internal/catalog"
	"zbackup/internal/zb"
)

const (
	dest = "/backups"
	gib  = int64(1 << 30)
)

var engineNow = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.Local)

// agedName returns the name of an archive created days before engineNow.
func agedName(days int) string {
	return zb.ArchiveName(engineNow.Add(-time.Duration(days)*24*time.Hour), "zstd")
}

// newVolume creates a volume holding one archive per age, each of size bytes.
func newVolume(free uint64, size int64, ages ...int) *catalog.MemoryVolume {
	vol := catalog.NewMemoryVolume(free)
	for _, days := range ages {
		vol.AddFile(dest, agedName(days), size)
	}
	return vol
}

func newEngine(vol *catalog.MemoryVolume, policy zb.RetentionPolicy) *zb.EvictionEngine {
	return zb.NewEvictionEngine(vol, vol, policy, zb.NewNopLogger(), engineNow, zb.WithReclaimDelay(0))
}

func remainingAges(t *testing.T, vol *catalog.MemoryVolume, ages []int) []int {
	t.Helper()
	names := vol.Names(dest)
	var out []int
	for _, days := range ages {
		if slices.Contains(names, agedName(days)) {
			out = append(out, days)
		}
	}
	return out
}

var scenarioAges = []int{1, 2, 5, 10, 20, 30, 31, 35, 40}

func TestEvictionEngine_Scenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("age expiry deletes archives older than retention", func(t *testing.T) {
		t.Parallel()
		vol := newVolume(100*uint64(gib), 1024, scenarioAges...)
		engine := newEngine(vol, zb.NewRetentionPolicy(30, 0, false, false))

		report, err := engine.Run(ctx, dest, zb.NewPendingWrite(1024))
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		want := []int{1, 2, 5, 10, 20, 30}
		if got := remainingAges(t, vol, scenarioAges); !slices.Equal(got, want) {
			t.Errorf("remaining ages = %v, want %v", got, want)
		}
		if got := len(report.Evicted(zb.PhaseExpire)); got != 3 {
			t.Errorf("expired %d archives, want 3", got)
		}
	})

	t.Run("keep 1 leaves only the newest", func(t *testing.T) {
		t.Parallel()
		vol := newVolume(100*uint64(gib), 1024, scenarioAges...)
		engine := newEngine(vol, zb.NewRetentionPolicy(0, 1, false, false))

		report, err := engine.Run(ctx, dest, zb.NewPendingWrite(1024))
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		if got := remainingAges(t, vol, scenarioAges); !slices.Equal(got, []int{1}) {
			t.Errorf("remaining ages = %v, want [1]", got)
		}
		capped := report.Evicted(zb.PhaseCap)
		if len(capped) != 8 {
			t.Fatalf("capped %d archives, want 8", len(capped))
		}
		if capped[0].Name != agedName(40) {
			t.Errorf("first capped = %s, want the oldest %s", capped[0].Name, agedName(40))
		}
	})

	t.Run("reclaim disabled fails without deleting", func(t *testing.T) {
		t.Parallel()
		vol := newVolume(uint64(gib), gib, 1, 2, 3)
		engine := newEngine(vol, zb.NewRetentionPolicy(0, 0, false, false))

		report, err := engine.Run(ctx, dest, zb.PendingWrite{EstimatedSize: 2 * gib})
		if !errors.Is(err, zb.ErrInsufficientSpace) {
			t.Fatalf("Run() error = %v, want ErrInsufficientSpace", err)
		}
		var spaceErr *zb.InsufficientSpaceError
		if !errors.As(err, &spaceErr) {
			t.Fatalf("Run() error type = %T", err)
		}
		if spaceErr.Missing() != gib {
			t.Errorf("Missing() = %d, want %d", spaceErr.Missing(), gib)
		}
		if len(report.Evictions) != 0 || len(vol.Removed()) != 0 {
			t.Errorf("deleted %v, want nothing", vol.Removed())
		}
	})

	t.Run("non-aggressive reclaim keeps the last archive", func(t *testing.T) {
		t.Parallel()
		vol := newVolume(uint64(gib), gib/2, 3)
		engine := newEngine(vol, zb.NewRetentionPolicy(0, 0, true, false))

		_, err := engine.Run(ctx, dest, zb.PendingWrite{EstimatedSize: 2 * gib})
		if !errors.Is(err, zb.ErrInsufficientSpace) {
			t.Fatalf("Run() error = %v, want ErrInsufficientSpace", err)
		}
		if got := vol.Names(dest); len(got) != 1 {
			t.Errorf("remaining = %v, want the single archive", got)
		}
	})

	t.Run("aggressive reclaim deletes the last archive", func(t *testing.T) {
		t.Parallel()
		vol := newVolume(uint64(gib), gib, 3)
		engine := newEngine(vol, zb.NewRetentionPolicy(0, 0, true, true))

		report, err := engine.Run(ctx, dest, zb.PendingWrite{EstimatedSize: 2 * gib})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if got := vol.Names(dest); len(got) != 0 {
			t.Errorf("remaining = %v, want none", got)
		}
		if got := report.Evicted(zb.PhaseReclaim); len(got) != 1 {
			t.Errorf("reclaimed %d archives, want 1", len(got))
		}
		if report.FreeBytes != 2*uint64(gib) {
			t.Errorf("FreeBytes = %d, want %d", report.FreeBytes, 2*gib)
		}
	})
}

func TestEvictionEngine_KeepCount(t *testing.T) {
	ctx := context.Background()
	for _, n := range []int{0, 1, 2, 5} {
		for _, k := range []int{1, 2, 3, 6} {
			t.Run(fmt.Sprintf("keep %d of %d", k, n), func(t *testing.T) {
				t.Parallel()
				ages := make([]int, n)
				for i := range ages {
					ages[i] = i + 1
				}
				vol := newVolume(100*uint64(gib), 1024, ages...)
				engine := newEngine(vol, zb.NewRetentionPolicy(0, k, false, false))

				if _, err := engine.Run(ctx, dest, zb.NewPendingWrite(0)); err != nil {
					t.Fatalf("Run() error = %v", err)
				}

				want := max(min(k-1, n), min(1, n))
				got := remainingAges(t, vol, ages)
				if len(got) != want {
					t.Fatalf("remaining = %v, want %d archives", got, want)
				}
				// Survivors are always the newest ones.
				for i, days := range got {
					if days != i+1 {
						t.Errorf("remaining = %v, want the %d newest", got, want)
						break
					}
				}
			})
		}
	}
}

func TestEvictionEngine_Reclaim(t *testing.T) {
	ctx := context.Background()

	t.Run("stops once the write fits", func(t *testing.T) {
		t.Parallel()
		vol := newVolume(0, gib, 1, 2, 3, 4, 5)
		engine := newEngine(vol, zb.NewRetentionPolicy(0, 0, true, false))

		report, err := engine.Run(ctx, dest, zb.PendingWrite{EstimatedSize: 2*gib + 1})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		want := []string{agedName(5), agedName(4), agedName(3)}
		if got := vol.Removed(); !slices.Equal(got, want) {
			t.Errorf("Removed() = %v, want %v", got, want)
		}
		if report.ReclaimedBytes() != 3*gib {
			t.Errorf("ReclaimedBytes() = %d, want %d", report.ReclaimedBytes(), 3*gib)
		}
	})

	t.Run("never goes below one archive when not aggressive", func(t *testing.T) {
		t.Parallel()
		vol := newVolume(0, gib, 1, 2, 3, 4)
		engine := newEngine(vol, zb.NewRetentionPolicy(0, 0, true, false))

		_, err := engine.Run(ctx, dest, zb.PendingWrite{EstimatedSize: 100 * gib})
		if !errors.Is(err, zb.ErrInsufficientSpace) {
			t.Fatalf("Run() error = %v, want ErrInsufficientSpace", err)
		}
		if got := vol.Names(dest); !slices.Equal(got, []string{agedName(1)}) {
			t.Errorf("remaining = %v, want only the newest", got)
		}
	})

	t.Run("empty destination fails", func(t *testing.T) {
		t.Parallel()
		vol := newVolume(10, gib)
		engine := newEngine(vol, zb.NewRetentionPolicy(0, 0, true, true))

		_, err := engine.Run(ctx, dest, zb.PendingWrite{EstimatedSize: gib})
		if !errors.Is(err, zb.ErrInsufficientSpace) {
			t.Fatalf("Run() error = %v, want ErrInsufficientSpace", err)
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		t.Parallel()
		vol := newVolume(0, gib, 1, 2, 3, 4, 5)
		policy := zb.NewRetentionPolicy(3, 4, true, false)
		pending := zb.PendingWrite{EstimatedSize: gib}

		if _, err := newEngine(vol, policy).Run(ctx, dest, pending); err != nil {
			t.Fatalf("first Run() error = %v", err)
		}
		first := vol.Names(dest)

		report, err := newEngine(vol, policy).Run(ctx, dest, pending)
		if err != nil {
			t.Fatalf("second Run() error = %v", err)
		}
		if len(report.Evictions) != 0 {
			t.Errorf("second Run() evicted %d archives, want 0", len(report.Evictions))
		}
		if got := vol.Names(dest); !slices.Equal(got, first) {
			t.Errorf("archives changed on second run: %v, want %v", got, first)
		}
	})

	t.Run("cancelled during delay deletes nothing", func(t *testing.T) {
		t.Parallel()
		vol := newVolume(0, gib, 1, 2)
		engine := zb.NewEvictionEngine(vol, vol, zb.NewRetentionPolicy(0, 0, true, true),
			zb.NewNopLogger(), engineNow, zb.WithReclaimDelay(time.Hour))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := engine.Run(ctx, dest, zb.PendingWrite{EstimatedSize: gib})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() error = %v, want context.Canceled", err)
		}
		if len(vol.Removed()) != 0 {
			t.Errorf("Removed() = %v, want nothing", vol.Removed())
		}
	})
}

func TestEvictionEngine_DeletionFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("age expiry skips failures", func(t *testing.T) {
		t.Parallel()
		vol := newVolume(100*uint64(gib), 1024, scenarioAges...)
		vol.FailRemove(agedName(35), errors.New("permission denied"))
		engine := newEngine(vol, zb.NewRetentionPolicy(30, 0, false, false))

		report, err := engine.Run(ctx, dest, zb.NewPendingWrite(0))
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(report.Failures) != 1 || report.Failures[0].Archive.Name != agedName(35) {
			t.Errorf("Failures = %+v, want the 35-day archive", report.Failures)
		}
		if got := len(report.Evicted(zb.PhaseExpire)); got != 2 {
			t.Errorf("expired %d archives, want 2", got)
		}
	})

	t.Run("count cap terminates when deletions fail", func(t *testing.T) {
		t.Parallel()
		vol := newVolume(100*uint64(gib), 1024, 1, 2, 3, 4)
		for _, days := range []int{2, 3, 4} {
			vol.FailRemove(agedName(days), errors.New("read-only"))
		}
		engine := newEngine(vol, zb.NewRetentionPolicy(0, 1, false, false))

		report, err := engine.Run(ctx, dest, zb.NewPendingWrite(0))
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(report.Failures) != 3 {
			t.Errorf("Failures = %d, want 3", len(report.Failures))
		}
		if len(vol.Names(dest)) != 4 {
			t.Errorf("remaining = %v, want all 4", vol.Names(dest))
		}
	})

	t.Run("reclaim moves past a stuck archive", func(t *testing.T) {
		t.Parallel()
		vol := newVolume(0, gib, 1, 2, 3)
		vol.FailRemove(agedName(3), errors.New("busy"))
		engine := newEngine(vol, zb.NewRetentionPolicy(0, 0, true, false))

		_, err := engine.Run(ctx, dest, zb.PendingWrite{EstimatedSize: gib})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if got := vol.Removed(); !slices.Equal(got, []string{agedName(2)}) {
			t.Errorf("Removed() = %v, want the 2-day archive", got)
		}
	})
}

type brokenCatalog struct {
	*catalog.MemoryVolume
}

func (brokenCatalog) List(context.Context, string) ([]*zb.Archive, error) {
	return nil, errors.New("input/output error")
}

type brokenSpace struct{}

func (brokenSpace) FreeBytes(string) (uint64, error) {
	return 0, errors.New("statfs failed")
}

func TestEvictionEngine_IOFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("catalog failure halts the run", func(t *testing.T) {
		vol := newVolume(0, gib, 1)
		engine := zb.NewEvictionEngine(brokenCatalog{vol}, vol, zb.NewRetentionPolicy(30, 0, false, false),
			zb.NewNopLogger(), engineNow, zb.WithReclaimDelay(0))

		if _, err := engine.Run(ctx, dest, zb.NewPendingWrite(0)); err == nil {
			t.Error("Run() expected error")
		}
	})

	t.Run("space oracle failure halts the run", func(t *testing.T) {
		vol := newVolume(0, gib, 1)
		engine := zb.NewEvictionEngine(vol, brokenSpace{}, zb.NewRetentionPolicy(0, 0, true, true),
			zb.NewNopLogger(), engineNow, zb.WithReclaimDelay(0))

		_, err := engine.Run(ctx, dest, zb.NewPendingWrite(0))
		if err == nil || errors.Is(err, zb.ErrInsufficientSpace) {
			t.Errorf("Run() error = %v, want an I/O error", err)
		}
	})
}

func TestEvictionEngine_UsesCapturedTime(t *testing.T) {
	vol := newVolume(100*uint64(gib), 1024, 29, 31)
	// The engine judges ages against its own timestamp, not the wall clock.
	engine := zb.NewEvictionEngine(vol, vol, zb.NewRetentionPolicy(30, 0, false, false),
		zb.NewNopLogger(), engineNow.Add(-2*24*time.Hour), zb.WithReclaimDelay(0))

	report, err := engine.Run(context.Background(), dest, zb.NewPendingWrite(0))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Evictions) != 0 {
		t.Errorf("evicted %d archives, want 0", len(report.Evictions))
	}
}
