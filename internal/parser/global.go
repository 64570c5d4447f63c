/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package parser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/mltframework/melted/internal/mvcp"
	"github.com/mltframework/melted/internal/playout"
)

func (l *Local) help(_ context.Context, cmd *Command) int {
	cmd.Response.Write(helpHeader)
	for _, v := range vocabulary {
		cmd.Response.Printf("%-10.10s%s\n", v.keyword, v.help)
	}
	cmd.Response.Write("\n")
	return mvcp.CodeOKMulti
}

func (l *Local) listServices(_ context.Context, cmd *Command) int {
	for _, s := range l.registry.Engine().Services() {
		cmd.Response.Printf("%s\n", s)
	}
	cmd.Response.Write("\n")
	return mvcp.CodeOKMulti
}

func (l *Local) addUnit(ctx context.Context, cmd *Command) int {
	u, err := l.registry.Add(ctx, cmd.Arg)
	if errors.Is(err, playout.ErrRegistryFull) {
		cmd.Response.Write("no more units can be created\n\n")
		return mvcp.CodeServerError
	}
	if err != nil {
		l.logger.Warn().Err(err).Str("consumer", cmd.Arg).Msg("unit creation failed")
		return mvcp.CodeServerError
	}
	cmd.Response.Printf("U%d\n\n", u.Index())
	return mvcp.CodeOKMulti
}

func (l *Local) listUnits(_ context.Context, cmd *Command) int {
	for _, u := range l.registry.Units() {
		online := 0
		if u.Online() {
			online = 1
		}
		cmd.Response.Printf("U%d %02d %s %d\n", u.Index(), 0, u.Constructor(), online)
	}
	cmd.Response.Write("\n")
	return mvcp.CodeOKMulti
}

// listClips lists a directory under the root: sub-directories first, then
// files with their sizes. Dot entries are hidden.
func (l *Local) listClips(_ context.Context, cmd *Command) int {
	dir := cmd.Root + cmd.Arg
	entries, err := os.ReadDir(dir)
	if err != nil {
		return mvcp.CodeBadFile
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		full := filepath.Join(dir, name)
		if info, err := os.Stat(full); err == nil && info.IsDir() {
			cmd.Response.Printf("\"%s/\"\n", name)
		}
		files = append(files, name)
	}
	for _, name := range files {
		info, err := os.Lstat(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if info.Mode().IsRegular() || info.Mode()&os.ModeSymlink != 0 {
			cmd.Response.Printf("\"%s\" %d\n", name, info.Size())
		}
	}
	cmd.Response.Write("\n")
	return mvcp.CodeOKMulti
}

func (l *Local) setGlobal(_ context.Context, cmd *Command) int {
	key, value, ok := strings.Cut(cmd.Arg, "=")
	if !ok {
		return mvcp.CodeOutOfRange
	}
	l.logger.Debug().Str("key", key).Str("value", value).Msg("SET")
	if !strings.EqualFold(key, "root") {
		return mvcp.CodeOutOfRange
	}
	l.registry.SetRootDir(value)
	return mvcp.CodeOK
}

func (l *Local) getGlobal(_ context.Context, cmd *Command) int {
	if !strings.EqualFold(cmd.Arg, "root") {
		return mvcp.CodeOutOfRange
	}
	cmd.Response.Write(l.registry.RootDir() + "\n")
	return mvcp.CodeOKSingle
}

func (l *Local) run(ctx context.Context, cmd *Command) int {
	result := RunFile(ctx, l, cmd.Arg, nil)
	for _, line := range result.Payload() {
		cmd.Response.Printf("%s\n", line)
	}
	return result.Code()
}

func (l *Local) shutdown(context.Context, *Command) int {
	l.mu.RLock()
	fn := l.onShutdown
	l.mu.RUnlock()
	if fn == nil {
		return mvcp.CodeServerError
	}
	l.logger.Info().Msg("shutdown requested")
	go fn()
	return mvcp.CodeOK
}
