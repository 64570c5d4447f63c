/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mediaengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultFPS is the frame rate used when nothing better is known.
	DefaultFPS = 25.0
	// DefaultLength is the length in frames given to generators and to
	// files that could not be probed.
	DefaultLength = 15000
)

// generators are resource services that need no file on disk.
var generators = map[string]bool{
	"color":  true,
	"colour": true,
	"noise":  true,
	"count":  true,
	"blank":  true,
}

// Config controls the in-process engine.
type Config struct {
	FPS           float64
	DefaultLength int
	// FFprobeBin is the probe binary; empty disables probing.
	FFprobeBin   string
	ProbeTimeout time.Duration
}

// Local is an in-process engine. It resolves files and generator resources
// to clips and hands out virtual consumers.
type Local struct {
	cfg    Config
	probe  Prober
	now    func() time.Time
	logger zerolog.Logger
}

// NewLocal creates the in-process engine.
func NewLocal(cfg Config, logger zerolog.Logger) *Local {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.DefaultLength <= 0 {
		cfg.DefaultLength = DefaultLength
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	e := &Local{
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With().Str("component", "mediaengine").Logger(),
	}
	if cfg.FFprobeBin != "" {
		e.probe = FFprobe(cfg.FFprobeBin)
	}
	return e
}

// WithProber replaces the file prober.
func (e *Local) WithProber(p Prober) *Local {
	e.probe = p
	return e
}

// WithClock replaces the clock consumers use to advance their playheads.
func (e *Local) WithClock(now func() time.Time) *Local {
	e.now = now
	return e
}

// Services lists the consumer services. Any other name is accepted too and
// rendered virtually.
func (e *Local) Services() []string {
	return []string{"virtual", "null"}
}

// NewConsumer creates a virtual consumer named after service.
func (e *Local) NewConsumer(_ context.Context, service, arg string) (Consumer, error) {
	service = strings.TrimSpace(service)
	if service == "" {
		return nil, fmt.Errorf("%w: empty consumer service", ErrOpen)
	}
	e.logger.Debug().Str("service", service).Str("arg", arg).Msg("consumer created")
	return NewVirtualConsumer(service, arg, e.cfg.FPS, e.now), nil
}

// Decode builds a clip from a pushed XML or YAML document.
func (e *Local) Decode(_ context.Context, doc []byte) (Producer, error) {
	clip, err := DecodeDocument(doc, e.cfg.FPS)
	if err != nil {
		return nil, err
	}
	return clip, nil
}

// Open resolves resource, which is either "service:argument" for a
// generator or a path to a file.
func (e *Local) Open(ctx context.Context, resource string, defaults map[string]string) (Producer, error) {
	clip, err := e.open(ctx, resource)
	if err != nil {
		return nil, err
	}
	clip.props.Inherit(defaults)
	clip.props.Set("resource", resource)
	return clip, nil
}

func (e *Local) open(ctx context.Context, resource string) (*Clip, error) {
	path := resource
	if service, arg, ok := strings.Cut(resource, ":"); ok {
		if generators[service] {
			return NewClip(resource, e.cfg.DefaultLength, e.cfg.FPS), nil
		}
		if !filepath.IsAbs(resource) && arg != "" && !strings.Contains(service, "/") {
			path = arg
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, resource, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrOpen, resource)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json", ".mlt", ".xml":
		doc, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrOpen, resource, err)
		}
		clip, err := DecodeDocument(doc, e.cfg.FPS)
		if err != nil {
			return nil, err
		}
		if clip.resource == "yaml-string" || clip.resource == "xml-string" {
			clip.resource = resource
		}
		return clip, nil
	}

	return e.probeFile(ctx, resource, path), nil
}

func (e *Local) probeFile(ctx context.Context, resource, path string) *Clip {
	length, fps := e.cfg.DefaultLength, e.cfg.FPS
	var title string

	if e.probe != nil {
		probeCtx, cancel := context.WithTimeout(ctx, e.cfg.ProbeTimeout)
		res, err := e.probe(probeCtx, path)
		cancel()
		if err != nil {
			e.logger.Debug().Err(err).Str("file", path).Msg("probe failed, using default length")
		} else {
			if res.FPS > 0 {
				fps = res.FPS
			}
			if res.Duration > 0 {
				length = framesFor(res.Duration, fps)
			}
			title = res.Title
		}
	}

	clip := NewClip(resource, length, fps)
	if title != "" {
		clip.props.Set("meta.attr.title", title)
	}
	return clip
}
