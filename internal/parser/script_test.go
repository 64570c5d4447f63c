/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package parser

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mltframework/melted/internal/mvcp"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "startup.conf")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunFileReportsEachCommand(t *testing.T) {
	l := newTestLocal(t, 1)
	path := writeScript(t, "# units\r\nUADD virtual\n\n   \nAPND U0 colour:red\nLOAD U9 colour:red\n")

	var seen []string
	resp := RunFile(context.Background(), l, path, func(line string, r *mvcp.Response) {
		seen = append(seen, line+" -> "+r.Line(0))
	})

	want := []string{
		"500 Server Error",
		"UADD virtual", "201 OK", "U0",
		"APND U0 colour:red", "200 OK",
		"LOAD U9 colour:red", "403 Unit not found",
		"",
	}
	if got := resp.Lines(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("script reply = %q\nwant %q", got, want)
	}
	if len(seen) != 3 || seen[2] != "LOAD U9 colour:red -> 403 Unit not found" {
		t.Fatalf("callback saw %q", seen)
	}
}

func TestRunCommand(t *testing.T) {
	l := newTestLocal(t, 1)
	path := writeScript(t, "UADD virtual\nAPND U0 colour:red\n")

	resp := expectCode(t, l, "RUN "+path, mvcp.CodeOKMulti)
	if resp.Line(1) != "UADD virtual" {
		t.Fatalf("RUN payload = %q", resp.Payload())
	}
	u, err := l.Registry().Get(0)
	if err != nil || u.Count() != 1 {
		t.Fatalf("script did not build the unit: %v", err)
	}

	expectCode(t, l, "RUN "+filepath.Join(t.TempDir(), "missing.conf"), mvcp.CodeBadFile)
}

func TestRunStopsRecursion(t *testing.T) {
	l := newTestLocal(t, 1)
	dir := t.TempDir()
	path := filepath.Join(dir, "loop.conf")
	if err := os.WriteFile(path, []byte("RUN "+path+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp := RunFile(context.Background(), l, path, nil)
	if resp.Code() != mvcp.CodeServerError {
		t.Fatalf("recursive script = %d", resp.Code())
	}
	found := false
	for _, line := range resp.Lines() {
		if line == "scripts nested too deeply" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no nesting error in %q", resp.Lines())
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	l := newTestLocal(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := Run(ctx, l, strings.NewReader("UADD virtual\n"), nil)
	if resp.Code() != mvcp.CodeServerError {
		t.Fatalf("cancelled run = %d", resp.Code())
	}
	if len(l.Registry().Units()) != 0 {
		t.Fatal("cancelled run still executed commands")
	}
}
