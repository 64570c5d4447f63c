package asrun

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mltframework/melted/internal/models"
	"github.com/mltframework/melted/internal/mvcp"
)

type scripted struct {
	statuses []mvcp.Status
}

func (s *scripted) source() []mvcp.Status { return s.statuses }

func playing(unit, clip, pos int) mvcp.Status {
	return mvcp.Status{Unit: unit, State: mvcp.StatePlaying, Clip: "clip", ClipIndex: clip, Length: 250, Position: pos, FPS: 25}
}

type failingRecorder struct{ calls int }

func (f *failingRecorder) Record(context.Context, models.AsRunEntry) error {
	f.calls++
	return errors.New("disk full")
}

func TestMonitorLogsOncePerClip(t *testing.T) {
	src := &scripted{}
	mem := NewMemory(10)
	m := NewMonitor(src.source, zerolog.Nop(), mem)
	m.now = func() time.Time { return time.Unix(1700000000, 0) }
	ctx := context.Background()

	steps := []struct {
		name   string
		status mvcp.Status
		want   int
	}{
		{"before tail", playing(0, 0, 100), 0},
		{"at threshold", playing(0, 0, 190), 0},
		{"past threshold", playing(0, 0, 191), 1},
		{"still in tail", playing(0, 0, 240), 0},
		{"next clip tail", playing(0, 1, 245), 1},
		{"seek back", playing(0, 1, 10), 0},
		{"tail again", playing(0, 1, 200), 1},
		{"empty length", mvcp.Status{Unit: 0, State: mvcp.StatePlaying, ClipIndex: 1, Position: 5}, 0},
	}
	for _, step := range steps {
		src.statuses = []mvcp.Status{step.status}
		if got := len(m.Check(ctx)); got != step.want {
			t.Fatalf("%s: logged %d, want %d", step.name, got, step.want)
		}
	}

	recent, _ := mem.Recent(ctx, -1, 0)
	if len(recent) != 3 {
		t.Fatalf("memory holds %d entries, want 3", len(recent))
	}
	if recent[0].ClipIndex != 1 || recent[0].Position != 200 {
		t.Fatalf("newest entry = %+v", recent[0])
	}
}

func TestMonitorResetsOnNotLoaded(t *testing.T) {
	src := &scripted{}
	m := NewMonitor(src.source, zerolog.Nop())
	ctx := context.Background()

	src.statuses = []mvcp.Status{playing(0, 0, 230)}
	if len(m.Check(ctx)) != 1 {
		t.Fatal("expected first tail to be logged")
	}
	notLoaded := playing(0, 0, 230)
	notLoaded.State = mvcp.StateNotLoaded
	notLoaded.Length = 0
	src.statuses = []mvcp.Status{notLoaded}
	m.Check(ctx)

	src.statuses = []mvcp.Status{playing(0, 0, 230)}
	if len(m.Check(ctx)) != 1 {
		t.Fatal("expected reload of the same clip index to be logged again")
	}
}

func TestMonitorTracksUnitsIndependently(t *testing.T) {
	src := &scripted{statuses: []mvcp.Status{playing(0, 0, 240), playing(1, 0, 10), mvcp.Undefined(2)}}
	rec := &failingRecorder{}
	m := NewMonitor(src.source, zerolog.Nop(), rec)

	aired := m.Check(context.Background())
	if len(aired) != 1 || aired[0].Unit != 0 {
		t.Fatalf("aired = %+v", aired)
	}
	if rec.calls != 1 {
		t.Fatalf("recorder called %d times", rec.calls)
	}
}

func TestMonitorRunStopsWithContext(t *testing.T) {
	src := &scripted{statuses: []mvcp.Status{playing(0, 0, 240)}}
	mem := NewMemory(4)
	m := NewMonitor(src.source, zerolog.Nop(), mem)
	m.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for {
		if got, _ := mem.Recent(ctx, 0, 0); len(got) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("monitor never logged")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestMemoryRing(t *testing.T) {
	mem := NewMemory(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = mem.Record(ctx, models.AsRunEntry{Unit: i % 2, Position: i})
	}

	all, _ := mem.Recent(ctx, -1, 0)
	if len(all) != 3 || all[0].Position != 4 || all[2].Position != 2 {
		t.Fatalf("ring = %+v", all)
	}
	odd, _ := mem.Recent(ctx, 1, 0)
	if len(odd) != 1 || odd[0].Position != 3 {
		t.Fatalf("unit 1 = %+v", odd)
	}
	limited, _ := mem.Recent(ctx, -1, 2)
	if len(limited) != 2 {
		t.Fatalf("limit ignored: %d", len(limited))
	}
}
