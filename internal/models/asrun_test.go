package models

import (
	"testing"
	"time"

	"github.com/mltframework/melted/internal/mvcp"
)

func TestNewAsRunEntry(t *testing.T) {
	at := time.Date(2026, 3, 1, 20, 0, 0, 0, time.FixedZone("CET", 3600))
	s := mvcp.Status{Unit: 2, Clip: "/news.mp4", ClipIndex: 1, Length: 750, Position: 700, FPS: 25, Generation: 4}

	e := NewAsRunEntry(s, at)
	if e.ID == "" {
		t.Fatal("expected an id")
	}
	if e.Unit != 2 || e.Clip != "/news.mp4" || e.Position != 700 || e.Generation != 4 {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.AiredAt.Location() != time.UTC || !e.AiredAt.Equal(at) {
		t.Fatalf("aired at = %v", e.AiredAt)
	}
	if e.Duration() != 30*time.Second {
		t.Fatalf("duration = %v", e.Duration())
	}
}

func TestBeforeCreateKeepsExistingID(t *testing.T) {
	e := AsRunEntry{ID: "fixed"}
	_ = e.BeforeCreate(nil)
	if e.ID != "fixed" {
		t.Fatalf("id replaced: %q", e.ID)
	}
	e.ID = ""
	_ = e.BeforeCreate(nil)
	if len(e.ID) != 36 {
		t.Fatalf("generated id = %q", e.ID)
	}
}
