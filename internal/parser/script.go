/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package parser

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/mltframework/melted/internal/mvcp"
)

// maxScriptDepth bounds RUN nesting so a script cannot run itself forever.
const maxScriptDepth = 8

type scriptDepthKey struct{}

// LineFunc observes each executed script line and its reply.
type LineFunc func(line string, resp *mvcp.Response)

// RunFile executes the script at path through p.
func RunFile(ctx context.Context, p Parser, path string, each LineFunc) *mvcp.Response {
	f, err := os.Open(path)
	if err != nil {
		resp := mvcp.NewStatusResponse(mvcp.CodeBadFile)
		return resp
	}
	defer f.Close()
	return Run(ctx, p, f, each)
}

// Run executes every command read from r. Blank lines and lines starting
// with '#' are skipped. The reply echoes each command followed by its own
// reply lines and is 201 when every command succeeded, 500 otherwise.
func Run(ctx context.Context, p Parser, r io.Reader, each LineFunc) *mvcp.Response {
	depth, _ := ctx.Value(scriptDepthKey{}).(int)
	if depth >= maxScriptDepth {
		resp := mvcp.NewStatusResponse(mvcp.CodeServerError)
		resp.Write("scripts nested too deeply\n\n")
		return resp
	}
	ctx = context.WithValue(ctx, scriptDepthKey{}, depth+1)

	resp := mvcp.NewStatusResponse(mvcp.CodeOKMulti)
	failed := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			failed = true
			break
		}
		line := strings.TrimSpace(strings.ReplaceAll(scanner.Text(), "\r", ""))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		reply := p.Execute(ctx, line)
		reply.Finalize()
		if each != nil {
			each(line, reply)
		}

		resp.Printf("%s\n", line)
		for _, l := range reply.Lines() {
			if l == "" {
				continue
			}
			resp.Printf("%s\n", l)
		}
		if mvcp.IsError(reply.Code()) {
			failed = true
		}
	}
	if scanner.Err() != nil {
		failed = true
	}

	if failed {
		resp.SetCode(mvcp.CodeServerError)
	}
	resp.Write("\n")
	return resp
}
