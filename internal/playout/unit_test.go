/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/mltframework/melted/internal/mediaengine"
	"github.com/mltframework/melted/internal/mvcp"
)

func newTestUnit(t *testing.T) (*Unit, *Registry, *recorder) {
	t.Helper()
	reg, _, rec := newTestRegistry(4)
	u, err := reg.Add(context.Background(), "test-output")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return u, reg, rec
}

func mustAppend(t *testing.T, u *Unit, resources ...string) {
	t.Helper()
	for _, r := range resources {
		if err := u.Append(context.Background(), r, -1, -1); err != nil {
			t.Fatalf("Append(%s): %v", r, err)
		}
	}
}

func TestLoadReplacesPlaylist(t *testing.T) {
	ctx := context.Background()
	u, _, _ := newTestUnit(t)
	mustAppend(t, u, "/a.mp4", "/b.mp4")

	tests := []struct {
		name    string
		in, out int
		wantIn  int
		wantOut int
	}{
		{"defaults", -1, -1, 0, 99},
		{"trimmed", 10, 20, 10, 20},
		{"reversed", 20, 10, 10, 20},
		{"out past end", 5, 500, 5, 99},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := u.Load(ctx, "/c.mp4", tt.in, tt.out, true); err != nil {
				t.Fatalf("Load: %v", err)
			}
			entries := u.Entries()
			if len(entries) != 1 {
				t.Fatalf("got %d entries, want 1", len(entries))
			}
			if entries[0].In != tt.wantIn || entries[0].Out != tt.wantOut {
				t.Fatalf("in/out = %d/%d, want %d/%d", entries[0].In, entries[0].Out, tt.wantIn, tt.wantOut)
			}
			if pos := u.consumer.Position(); pos != 0 {
				t.Fatalf("position = %d after load, want 0", pos)
			}
		})
	}
}

func TestLoadReplacesWithoutPurge(t *testing.T) {
	tests := []struct {
		name       string
		purge      bool
		wantPurges int
	}{
		{"purge", true, 1},
		{"keep buffered frames", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, _, _ := newTestUnit(t)
			mustAppend(t, u, "/a.mp4", "/b.mp4")
			if err := u.Load(context.Background(), "/c.mp4", -1, -1, tt.purge); err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got := titles(u); !reflect.DeepEqual(got, []string{"/c.mp4"}) {
				t.Fatalf("entries = %v", got)
			}
			vc := u.consumer.(*mediaengine.VirtualConsumer)
			if vc.Purges() != tt.wantPurges {
				t.Fatalf("purges = %d, want %d", vc.Purges(), tt.wantPurges)
			}
		})
	}
}

func TestGenerationCountsSuccessfulMutations(t *testing.T) {
	ctx := context.Background()
	u, _, _ := newTestUnit(t)

	steps := []struct {
		name    string
		op      func() error
		wantErr bool
	}{
		{"load", func() error { return u.Load(ctx, "/a.mp4", -1, -1, true) }, false},
		{"bad load", func() error { return u.Load(ctx, "/missing.mp4", -1, -1, true) }, true},
		{"append", func() error { return u.Append(ctx, "/b.mp4", -1, -1) }, false},
		{"insert", func() error { return u.Insert(ctx, "/c.mp4", 1, -1, -1) }, false},
		{"move", func() error { u.Move(0, 2); return nil }, false},
		{"remove", func() error { u.Remove(0); return nil }, false},
		{"sin", func() error { return u.SetClipIn(0, 5) }, false},
		{"sin out of range", func() error { return u.SetClipIn(0, 500) }, true},
		{"clean", func() error { u.Clean(); return nil }, false},
		{"wipe", func() error { u.Wipe(); return nil }, false},
		{"clear", func() error { u.Clear(); return nil }, false},
	}

	want := 0
	for _, s := range steps {
		err := s.op()
		if (err != nil) != s.wantErr {
			t.Fatalf("%s: err = %v, wantErr %v", s.name, err, s.wantErr)
		}
		if err == nil {
			want++
		}
		if got := u.Generation(); got != want {
			t.Fatalf("after %s generation = %d, want %d", s.name, got, want)
		}
	}
}

func TestBadResourceLeavesPlaylist(t *testing.T) {
	u, _, _ := newTestUnit(t)
	mustAppend(t, u, "/a.mp4")
	err := u.Load(context.Background(), "/missing.mp4", -1, -1, true)
	if !errors.Is(err, mediaengine.ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
	if got := titles(u); !reflect.DeepEqual(got, []string{"/a.mp4"}) {
		t.Fatalf("entries = %v", got)
	}
}

func TestInsertRemoveRoundTrip(t *testing.T) {
	u, _, _ := newTestUnit(t)
	mustAppend(t, u, "/a.mp4", "/b.mp4", "/c.mp4")
	before := titles(u)

	for k := 0; k <= 3; k++ {
		if err := u.Insert(context.Background(), "/x.mp4", k, -1, -1); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if got := titles(u)[k]; got != "/x.mp4" {
			t.Fatalf("entry %d = %s, want /x.mp4", k, got)
		}
		u.Remove(k)
		if got := titles(u); !reflect.DeepEqual(got, before) {
			t.Fatalf("after insert/remove at %d entries = %v, want %v", k, got, before)
		}
	}
}

func TestRemoveClampsIndex(t *testing.T) {
	u, _, _ := newTestUnit(t)
	mustAppend(t, u, "/a.mp4", "/b.mp4")
	u.Remove(10)
	if got := titles(u); !reflect.DeepEqual(got, []string{"/a.mp4"}) {
		t.Fatalf("entries = %v", got)
	}
	u.Remove(-3)
	if u.Count() != 0 {
		t.Fatalf("count = %d, want 0", u.Count())
	}
	u.Remove(0)
	if u.Count() != 0 {
		t.Fatal("remove on empty playlist should be a no-op")
	}
}

func TestMoveReorders(t *testing.T) {
	u, _, _ := newTestUnit(t)
	mustAppend(t, u, "/a.mp4", "/b.mp4", "/c.mp4")
	u.Move(0, 2)
	if got := titles(u); !reflect.DeepEqual(got, []string{"/b.mp4", "/c.mp4", "/a.mp4"}) {
		t.Fatalf("entries = %v", got)
	}
}

func TestSeekClamps(t *testing.T) {
	u, _, _ := newTestUnit(t)
	mustAppend(t, u, "/a.mp4", "/b.mp4")
	if err := u.SetClipIn(1, 10); err != nil {
		t.Fatal(err)
	}
	if err := u.SetClipOut(1, 50); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		clip, pos int
		wantClip  int
		wantPos   int
	}{
		{"before first", -1, 40, 0, 0},
		{"inside", 0, 40, 0, 40},
		{"below in", 1, 0, 1, 10},
		{"above out", 1, 90, 1, 50},
		{"out point", 1, -1, 1, 50},
		{"past last", 7, 0, 1, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u.Seek(tt.clip, tt.pos)
			s := u.Status()
			if s.ClipIndex != tt.wantClip || s.Position != tt.wantPos {
				t.Fatalf("clip/pos = %d/%d, want %d/%d", s.ClipIndex, s.Position, tt.wantClip, tt.wantPos)
			}
		})
	}
}

func TestStepPausesAndMoves(t *testing.T) {
	u, _, _ := newTestUnit(t)
	mustAppend(t, u, "/a.mp4")
	u.Play(1000)
	u.Seek(0, 20)
	u.Step(5)
	s := u.Status()
	if s.Speed != 0 || s.Position != 25 {
		t.Fatalf("speed/pos = %d/%d, want 0/25", s.Speed, s.Position)
	}
	if s.State != mvcp.StatePaused {
		t.Fatalf("state = %s, want paused", s.State)
	}
}

func TestClipTrimErrors(t *testing.T) {
	u, _, _ := newTestUnit(t)
	mustAppend(t, u, "/a.mp4")

	tests := []struct {
		name string
		op   func() error
		want error
	}{
		{"missing clip", func() error { return u.SetClipIn(3, 0) }, ErrClipNotFound},
		{"past length", func() error { return u.SetClipOut(0, 100) }, ErrOutOfRange},
		{"negative", func() error { return u.SetClipIn(0, -2) }, ErrOutOfRange},
		{"in after out", func() error {
			if err := u.SetClipOut(0, 10); err != nil {
				return err
			}
			return u.SetClipIn(0, 20)
		}, ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if err := u.SetClipOut(0, -1); err != nil {
		t.Fatalf("reset out: %v", err)
	}
	if e := u.Entries()[0]; e.Out != 99 {
		t.Fatalf("out = %d after reset, want 99", e.Out)
	}
}

func TestSetClipOutSeeksToOut(t *testing.T) {
	u, _, _ := newTestUnit(t)
	mustAppend(t, u, "/a.mp4")
	u.Play(1000)
	if err := u.SetClipOut(0, 40); err != nil {
		t.Fatal(err)
	}
	s := u.Status()
	if s.Position != 40 || s.Speed != 0 {
		t.Fatalf("pos/speed = %d/%d, want 40/0", s.Position, s.Speed)
	}
}

func TestCleanPreservesPositionAndSpeed(t *testing.T) {
	u, _, _ := newTestUnit(t)
	mustAppend(t, u, "/a.mp4", "/b.mp4", "/c.mp4", "/d.mp4")
	u.Play(1000)
	u.Seek(2, 30)

	u.Clean()

	if got := titles(u); !reflect.DeepEqual(got, []string{"/c.mp4"}) {
		t.Fatalf("entries = %v", got)
	}
	s := u.Status()
	if s.ClipIndex != 0 || s.Position != 30 {
		t.Fatalf("clip/pos = %d/%d, want 0/30", s.ClipIndex, s.Position)
	}
	if s.Speed != 1000 || s.State != mvcp.StatePlaying {
		t.Fatalf("speed/state = %d/%s, want 1000/playing", s.Speed, s.State)
	}
}

func TestWipeKeepsPosition(t *testing.T) {
	u, _, _ := newTestUnit(t)
	mustAppend(t, u, "/a.mp4", "/b.mp4", "/c.mp4")
	u.Seek(1, 42)

	u.Wipe()

	if got := titles(u); !reflect.DeepEqual(got, []string{"/b.mp4", "/c.mp4"}) {
		t.Fatalf("entries = %v", got)
	}
	s := u.Status()
	if s.ClipIndex != 0 || s.Position != 42 {
		t.Fatalf("clip/pos = %d/%d, want 0/42", s.ClipIndex, s.Position)
	}
}

func TestClearPurges(t *testing.T) {
	u, _, _ := newTestUnit(t)
	mustAppend(t, u, "/a.mp4", "/b.mp4")
	u.Seek(1, 10)
	u.Clear()

	if u.Count() != 0 {
		t.Fatalf("count = %d", u.Count())
	}
	vc := u.consumer.(*mediaengine.VirtualConsumer)
	if vc.Purges() != 1 {
		t.Fatalf("purges = %d, want 1", vc.Purges())
	}
	if vc.Position() != 0 {
		t.Fatalf("position = %d", vc.Position())
	}
	if s := u.Status(); s.Clip != "" || s.SeekFlag != 0 {
		t.Fatalf("status after clear = %+v", s)
	}
}

func TestMutationKeepsPlayheadOnCurrentClip(t *testing.T) {
	u, _, _ := newTestUnit(t)
	mustAppend(t, u, "/a.mp4", "/b.mp4")
	u.Seek(1, 12)

	if err := u.Insert(context.Background(), "/x.mp4", 0, -1, -1); err != nil {
		t.Fatal(err)
	}
	s := u.Status()
	if s.ClipIndex != 2 || s.Position != 12 || s.Clip != "/b.mp4" {
		t.Fatalf("status = %d %q %d, want 2 \"/b.mp4\" 12", s.ClipIndex, s.Clip, s.Position)
	}

	u.Remove(2)
	s = u.Status()
	if s.ClipIndex != 1 || s.Position != 0 {
		t.Fatalf("after removing current clip: clip/pos = %d/%d, want 1/0", s.ClipIndex, s.Position)
	}
}

func TestStatusStates(t *testing.T) {
	u, _, _ := newTestUnit(t)
	if s := u.Status(); s.State != mvcp.StateStopped {
		t.Fatalf("fresh unit state = %s, want stopped", s.State)
	}
	u.Play(1000)
	if s := u.Status(); s.State != mvcp.StateNotLoaded {
		t.Fatalf("empty running unit state = %s, want not_loaded", s.State)
	}
	mustAppend(t, u, "/a.mp4")
	if s := u.Status(); s.State != mvcp.StatePlaying || s.Speed != 1000 {
		t.Fatalf("state = %s speed %d, want playing 1000", s.State, s.Speed)
	}
	u.Play(0)
	if s := u.Status(); s.State != mvcp.StatePaused {
		t.Fatalf("state = %s, want paused", s.State)
	}
	u.Terminate()
	if !u.HasTerminated() {
		t.Fatal("HasTerminated() = false after Terminate")
	}
	if s := u.Status(); s.State != mvcp.StateStopped || s.Speed != 0 {
		t.Fatalf("state = %s speed %d, want stopped 0", s.State, s.Speed)
	}
}

func TestStatusFields(t *testing.T) {
	u, reg, _ := newTestUnit(t)
	reg.SetRootDir("/media")
	mustAppend(t, u, "/media/a.mp4")
	if err := u.SetClipIn(0, 10); err != nil {
		t.Fatal(err)
	}
	u.Seek(0, 15)

	s := u.Status()
	want := mvcp.Status{
		Unit: 0, State: mvcp.StatePaused, Clip: "/a.mp4", Position: 15, FPS: 25,
		In: 10, Out: 99, Length: 100,
		TailClip: "/a.mp4", TailPosition: 15, TailIn: 10, TailOut: 99, TailLength: 100,
		SeekFlag: 1, Generation: 2, ClipIndex: 0,
	}
	if s != want {
		t.Fatalf("Status() =\n%+v\nwant\n%+v", s, want)
	}
}

func TestTitlePrefersProducerTitle(t *testing.T) {
	u, _, _ := newTestUnit(t)
	doc := []byte("title: Morning Show\nresource: show.mp4\nlength: 50\n")
	p, err := u.engine.Decode(context.Background(), doc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	u.AppendProducer(p, -1, -1)
	if s := u.Status(); s.Clip != "Morning Show" {
		t.Fatalf("clip = %q", s.Clip)
	}
}

func TestAppendProducerFromDocument(t *testing.T) {
	u, _, _ := newTestUnit(t)
	mustAppend(t, u, "/a.mp4")
	p, err := u.engine.Decode(context.Background(), []byte("resource: pushed\nlength: 10\n"))
	if err != nil {
		t.Fatal(err)
	}
	u.AppendProducer(p, -1, -1)
	if u.Count() != 2 {
		t.Fatalf("count = %d, want 2", u.Count())
	}
	if u.Generation() != 2 {
		t.Fatalf("generation = %d, want 2", u.Generation())
	}
}

func TestReportList(t *testing.T) {
	u, reg, _ := newTestUnit(t)
	reg.SetRootDir("/media/")
	mustAppend(t, u, "/media/a.mp4")
	if err := u.Append(context.Background(), "/media/b.mp4", 5, 24); err != nil {
		t.Fatal(err)
	}

	want := "2\n" +
		"0 \"/a.mp4\" 0 99 100 100 25.00\n" +
		"1 \"/b.mp4\" 5 24 20 100 25.00\n" +
		"\n"
	if got := u.ReportList(); got != want {
		t.Fatalf("ReportList() =\n%q\nwant\n%q", got, want)
	}
}

func TestPropertyScopes(t *testing.T) {
	u, _, _ := newTestUnit(t)

	for _, a := range []string{"eof=pause", "consumer.volume=0.5", "producer.meta.show=news"} {
		if err := u.Set(a); err != nil {
			t.Fatalf("Set(%q): %v", a, err)
		}
	}
	if err := u.Set("noequals"); !errors.Is(err, ErrInvalidProperty) {
		t.Fatalf("err = %v, want ErrInvalidProperty", err)
	}

	if v, _ := u.Get("eof"); v != "pause" {
		t.Fatalf("eof = %q", v)
	}
	if v, _ := u.ConsumerProperty("volume"); v != "0.5" {
		t.Fatalf("consumer volume = %q", v)
	}
	if _, ok := u.Get("volume"); ok {
		t.Fatal("consumer property leaked into playlist properties")
	}

	mustAppend(t, u, "/a.mp4")
	p := u.Entries()[0].Producer
	if v, _ := p.Properties().Get("meta.show"); v != "news" {
		t.Fatalf("producer default not applied, got %q", v)
	}
}

func TestPublishesAfterEveryChange(t *testing.T) {
	u, _, rec := newTestUnit(t)
	start := rec.count()
	mustAppend(t, u, "/a.mp4")
	if got := rec.last(); got.Generation != 1 || got.Clip != "/a.mp4" {
		t.Fatalf("last publish = %+v", got)
	}
	u.Play(1000)
	if got := rec.last(); got.State != mvcp.StatePlaying || got.Generation != 1 {
		t.Fatalf("last publish = %+v", got)
	}
	if rec.count()-start != 2 {
		t.Fatalf("published %d statuses, want 2", rec.count()-start)
	}
}

func TestConcurrentMutationsSameUnit(t *testing.T) {
	u, _, _ := newTestUnit(t)
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := u.Append(context.Background(), "/a.mp4", -1, -1); err != nil {
				t.Error(err)
			}
		}()
		go func() {
			defer wg.Done()
			u.Play(1000)
			_ = u.Status()
		}()
	}
	wg.Wait()

	if u.Count() != n {
		t.Fatalf("count = %d, want %d", u.Count(), n)
	}
	if u.Generation() != n {
		t.Fatalf("generation = %d, want %d", u.Generation(), n)
	}
	for i, c := range u.Entries() {
		if c.Start != i*100 {
			t.Fatalf("entry %d starts at %d, want %d", i, c.Start, i*100)
		}
	}
}

func TestConcurrentUnitsIndependent(t *testing.T) {
	reg, _, _ := newTestRegistry(4)
	ctx := context.Background()
	var units []*Unit
	for i := 0; i < 4; i++ {
		u, err := reg.Add(ctx, "virtual")
		if err != nil {
			t.Fatal(err)
		}
		units = append(units, u)
	}

	var wg sync.WaitGroup
	for _, u := range units {
		wg.Add(1)
		go func(u *Unit) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if err := u.Append(ctx, "/clip.mp4", -1, -1); err != nil {
					t.Error(err)
					return
				}
			}
			u.Clean()
		}(u)
	}
	wg.Wait()

	for _, u := range units {
		if u.Count() != 1 || u.Generation() != 21 {
			t.Fatalf("unit %d count/generation = %d/%d, want 1/21", u.Index(), u.Count(), u.Generation())
		}
	}
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(4)
	src, _ := reg.Add(ctx, "virtual")
	dest, _ := reg.Add(ctx, "virtual")
	mustAppend(t, src, "/a.mp4", "/b.mp4")
	if err := src.SetClipIn(1, 7); err != nil {
		t.Fatal(err)
	}
	mustAppend(t, dest, "/x.mp4")

	if err := reg.Transfer(src.Index(), dest.Index()); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if src.Count() != 0 {
		t.Fatalf("source has %d entries", src.Count())
	}
	if got := titles(dest); !reflect.DeepEqual(got, []string{"/x.mp4", "/a.mp4", "/b.mp4"}) {
		t.Fatalf("dest entries = %v", got)
	}
	if in := dest.Entries()[2].In; in != 7 {
		t.Fatalf("transferred in = %d, want 7", in)
	}

	if err := src.TransferTo(src); !errors.Is(err, ErrSameUnit) {
		t.Fatalf("err = %v, want ErrSameUnit", err)
	}
	if err := reg.Transfer(src.Index(), 3); !errors.Is(err, ErrUnitNotFound) {
		t.Fatalf("err = %v, want ErrUnitNotFound", err)
	}
}

func TestStripRoot(t *testing.T) {
	tests := []struct {
		root, file, want string
	}{
		{"", "/a.mp4", "/a.mp4"},
		{"/media/", "/media/a.mp4", "/a.mp4"},
		{"/media", "/media/sub/a.mp4", "/sub/a.mp4"},
		{"/media/", "/other/a.mp4", "/other/a.mp4"},
	}
	for _, tt := range tests {
		if got := stripRoot(tt.root, tt.file); got != tt.want {
			t.Errorf("stripRoot(%q, %q) = %q, want %q", tt.root, tt.file, got, tt.want)
		}
	}
}

func TestOnline(t *testing.T) {
	u, _, _ := newTestUnit(t)
	if !u.Online() {
		t.Fatal("local unit should be online")
	}
	u.consumer.Properties().Set("offline", "1")
	if u.Online() {
		t.Fatal("unit with offline consumer reported online")
	}
	if !strings.HasPrefix(u.Constructor(), "test-output") {
		t.Fatalf("constructor = %q", u.Constructor())
	}
}
