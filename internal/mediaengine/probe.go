/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mediaengine

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ProbeResult is what a prober learns about a media file.
type ProbeResult struct {
	Duration time.Duration
	FPS      float64
	Title    string
}

// Prober inspects a media file.
type Prober func(ctx context.Context, path string) (ProbeResult, error)

type ffprobeOutput struct {
	Format struct {
		Duration string            `json:"duration"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

// FFprobe returns a prober that shells out to the ffprobe binary at bin.
func FFprobe(bin string) Prober {
	return func(ctx context.Context, path string) (ProbeResult, error) {
		cmd := exec.CommandContext(ctx, bin,
			"-v", "quiet",
			"-print_format", "json",
			"-show_format",
			"-show_streams",
			path,
		)
		output, err := cmd.Output()
		if err != nil {
			return ProbeResult{}, fmt.Errorf("ffprobe failed: %w", err)
		}
		return parseFFprobe(output)
	}
}

func parseFFprobe(output []byte) (ProbeResult, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(output, &out); err != nil {
		return ProbeResult{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var res ProbeResult
	if out.Format.Duration != "" {
		secs, err := strconv.ParseFloat(out.Format.Duration, 64)
		if err != nil {
			return ProbeResult{}, fmt.Errorf("parse duration %q: %w", out.Format.Duration, err)
		}
		res.Duration = time.Duration(secs * float64(time.Second))
	}
	for _, s := range out.Streams {
		if s.CodecType == "video" {
			res.FPS = parseRate(s.AvgFrameRate)
			break
		}
	}
	for _, key := range []string{"title", "TITLE"} {
		if t := out.Format.Tags[key]; t != "" {
			res.Title = t
			break
		}
	}
	return res, nil
}

// parseRate reads ffprobe's "num/den" frame rate notation.
func parseRate(rate string) float64 {
	n, d, ok := strings.Cut(rate, "/")
	if !ok {
		return 0
	}
	num, err1 := strconv.ParseFloat(n, 64)
	den, err2 := strconv.ParseFloat(d, 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}
