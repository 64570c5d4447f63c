/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mltframework/melted/internal/mvcp"
)

var (
	consoleServer string
	consolePush   string
)

var consoleCmd = &cobra.Command{
	Use:   "console [command...]",
	Short: "Talk to a running server",
	Long: `Send MVCP commands to a server and print its replies.

With arguments, each argument is sent as one command. Without, commands are
read from stdin one per line. --push U<n> sends stdin as a PUSH document.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsole(cmd.Context(), consoleServer, consolePush, args, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	consoleCmd.Flags().StringVarP(&consoleServer, "server", "s", "localhost", "server host[:port]")
	consoleCmd.Flags().StringVar(&consolePush, "push", "", "push stdin to unit U<n>")
}

// consoleClient is one control connection.
type consoleClient struct {
	conn net.Conn
	br   *bufio.Reader
	out  io.Writer
}

func dialConsole(ctx context.Context, addr string, out io.Writer) (*consoleClient, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(mvcp.DefaultPort))
	}
	d := net.Dialer{Timeout: 10 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	c := &consoleClient{conn: conn, br: bufio.NewReader(conn), out: out}
	greeting, err := mvcp.ReadResponse(c.br)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read greeting: %w", err)
	}
	if greeting.Code() != mvcp.CodeGreeting {
		conn.Close()
		return nil, fmt.Errorf("unexpected greeting %q", greeting.Line(0))
	}
	return c, nil
}

func (c *consoleClient) Close() error {
	_, _ = io.WriteString(c.conn, "BYE\r\n")
	return c.conn.Close()
}

func (c *consoleClient) print(resp *mvcp.Response) {
	for _, line := range resp.Lines() {
		fmt.Fprintln(c.out, line)
	}
}

// command sends line and prints its reply. STATUS prints the stream until
// the server hangs up.
func (c *consoleClient) command(line string) error {
	if _, err := io.WriteString(c.conn, line+"\r\n"); err != nil {
		return err
	}
	if strings.EqualFold(strings.Fields(line)[0], "STATUS") {
		for {
			status, err := mvcp.ReadLine(c.br)
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
			fmt.Fprintln(c.out, status)
		}
	}
	resp, err := mvcp.ReadResponse(c.br)
	if err != nil {
		return err
	}
	c.print(resp)
	return nil
}

func (c *consoleClient) push(unit string, doc []byte) error {
	if _, err := fmt.Fprintf(c.conn, "PUSH %s\r\n%d\r\n", unit, len(doc)); err != nil {
		return err
	}
	if _, err := c.conn.Write(doc); err != nil {
		return err
	}
	resp, err := mvcp.ReadResponse(c.br)
	if err != nil {
		return err
	}
	c.print(resp)
	return nil
}

func runConsole(ctx context.Context, addr, pushUnit string, args []string, in io.Reader, out io.Writer) error {
	c, err := dialConsole(ctx, addr, out)
	if err != nil {
		return err
	}
	defer c.Close()

	if pushUnit != "" {
		doc, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("read document: %w", err)
		}
		return c.push(pushUnit, doc)
	}

	if len(args) > 0 {
		for _, line := range args {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := c.command(line); err != nil {
				return err
			}
		}
		return nil
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "BYE") || strings.EqualFold(line, "QUIT") {
			return nil
		}
		if err := c.command(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
