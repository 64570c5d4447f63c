/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mltframework/melted/internal/mediaengine"
	"github.com/mltframework/melted/internal/mvcp"
)

// fakeEngine opens any resource to a 100 frame clip unless its name
// contains "missing". Consumers run on a frozen clock so positions only
// move on seeks.
type fakeEngine struct {
	mu      sync.Mutex
	lengths map[string]int
	opened  []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{lengths: map[string]int{}}
}

func (e *fakeEngine) Open(_ context.Context, resource string, defaults map[string]string) (mediaengine.Producer, error) {
	if strings.Contains(resource, "missing") {
		return nil, fmt.Errorf("%w: %s", mediaengine.ErrOpen, resource)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opened = append(e.opened, resource)
	length, ok := e.lengths[resource]
	if !ok {
		length = 100
	}
	clip := mediaengine.NewClip(resource, length, 25)
	clip.Properties().Inherit(defaults)
	return clip, nil
}

func (e *fakeEngine) Decode(_ context.Context, doc []byte) (mediaengine.Producer, error) {
	clip, err := mediaengine.DecodeDocument(doc, 25)
	if err != nil {
		return nil, err
	}
	return clip, nil
}

func (e *fakeEngine) NewConsumer(_ context.Context, service, arg string) (mediaengine.Consumer, error) {
	if service == "" {
		return nil, mediaengine.ErrOpen
	}
	frozen := time.Unix(1700000000, 0)
	return mediaengine.NewVirtualConsumer(service, arg, 25, func() time.Time { return frozen }), nil
}

func (e *fakeEngine) Services() []string { return []string{"virtual"} }

type recorder struct {
	mu       sync.Mutex
	statuses []mvcp.Status
}

func (r *recorder) Publish(s mvcp.Status) {
	r.mu.Lock()
	r.statuses = append(r.statuses, s)
	r.mu.Unlock()
}

func (r *recorder) last() mvcp.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return mvcp.Status{}
	}
	return r.statuses[len(r.statuses)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statuses)
}

func newTestRegistry(capacity int) (*Registry, *fakeEngine, *recorder) {
	engine := newFakeEngine()
	rec := &recorder{}
	return NewRegistry(capacity, engine, rec, zerolog.Nop()), engine, rec
}

func titles(u *Unit) []string {
	var out []string
	for _, c := range u.Entries() {
		out = append(out, c.Resource)
	}
	return out
}
