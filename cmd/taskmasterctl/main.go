// Command taskmasterctl is the thin one-shot control client (SPEC_FULL.md
// §10): each subcommand issues exactly one newline-delimited JSON round
// trip to the control socket and prints the reply. It is the one-shot
// sibling of the out-of-scope interactive shell, grounded in the
// teacher's cmd/provisr/main.go cobra subcommand layout.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskmasterd/taskmasterd/internal/control"
)

func main() {
	var socketPath string

	root := &cobra.Command{
		Use:   "taskmasterctl",
		Short: "Control client for taskmasterd",
	}
	root.PersistentFlags().StringVar(&socketPath, "socket", defaultSocketPath(), "path to the control socket")

	root.AddCommand(
		simpleCommand(&socketPath, "status", "status", nil),
		targetedCommand(&socketPath, "start", "start"),
		targetedCommand(&socketPath, "stop", "stop"),
		targetedCommand(&socketPath, "restart", "restart"),
		simpleCommand(&socketPath, "reload", "reload", nil),
		simpleCommand(&socketPath, "quit", "quit", nil),
		attachCommand(&socketPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultSocketPath() string {
	if v := os.Getenv("TASKMASTER_SOCKET"); v != "" {
		return v
	}
	return "/tmp/taskmaster.sock"
}

func simpleCommand(socketPath *string, use, verb string, _ []string) *cobra.Command {
	return &cobra.Command{
		Use: use,
		RunE: func(cmd *cobra.Command, args []string) error {
			return roundTrip(*socketPath, control.Request{Cmd: verb})
		},
	}
}

func targetedCommand(socketPath *string, use, verb string) *cobra.Command {
	return &cobra.Command{
		Use:  use + " <name>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			return roundTrip(*socketPath, control.Request{Cmd: verb, Target: &target})
		},
	}
}

func attachCommand(socketPath *string) *cobra.Command {
	return &cobra.Command{
		Use:  "attach <name>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return attach(*socketPath, args[0])
		},
	}
}

// dial connects to socketPath as a unix socket, falling back to a TCP
// loopback dial when the string parses as host:port (spec.md §6
// "fallback TCP loopback on platforms without local sockets").
func dial(socketPath string) (net.Conn, error) {
	if conn, err := net.DialTimeout("unix", socketPath, 3*time.Second); err == nil {
		return conn, nil
	}
	return net.DialTimeout("tcp", socketPath, 3*time.Second)
}

func roundTrip(socketPath string, req control.Request) error {
	conn, err := dial(socketPath)
	if err != nil {
		return fmt.Errorf("taskmasterctl: connecting to %s: %w", socketPath, err)
	}
	defer func() { _ = conn.Close() }()

	if err := writeRequest(conn, req); err != nil {
		return err
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("taskmasterctl: reading response: %w", err)
		}
		return fmt.Errorf("taskmasterctl: connection closed without a response")
	}

	var resp control.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("taskmasterctl: parsing response: %w", err)
	}
	printResponse(resp)
	if !resp.OK {
		return fmt.Errorf("taskmasterctl: %s", resp.Message)
	}
	return nil
}

func writeRequest(conn net.Conn, req control.Request) error {
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = conn.Write(b)
	return err
}

func printResponse(resp control.Response) {
	if resp.Data != nil {
		b, _ := json.MarshalIndent(resp.Data, "", "  ")
		fmt.Println(string(b))
		return
	}
	if resp.Message != "" {
		fmt.Println(resp.Message)
		return
	}
	if resp.OK {
		fmt.Println("ok")
	}
}

// attach implements spec.md §4.6's attach verb client side: after the
// reply, the connection becomes a byte bridge between this process's
// own stdin/stdout and the daemon, until EOF or Ctrl-].
func attach(socketPath, name string) error {
	conn, err := dial(socketPath)
	if err != nil {
		return fmt.Errorf("taskmasterctl: connecting to %s: %w", socketPath, err)
	}
	defer func() { _ = conn.Close() }()

	if err := writeRequest(conn, control.Request{Cmd: "attach", Target: &name}); err != nil {
		return err
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("taskmasterctl: reading attach reply: %w", err)
	}
	var resp control.Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return fmt.Errorf("taskmasterctl: parsing attach reply: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("taskmasterctl: %s", resp.Message)
	}
	fmt.Fprintf(os.Stderr, "attached to %s (Ctrl-] to detach)\n", name)

	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(os.Stdout, reader)
		close(done)
	}()
	_, _ = io.Copy(conn, os.Stdin)
	<-done
	return nil
}
