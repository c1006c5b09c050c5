// Package main provides axonctl, a debug CLI client for axond: put, get,
// has, and metrics over the RPC surface, plus an interactive REPL mode.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/axonhq/axon/internal/config"
	"github.com/axonhq/axon/internal/rpc"
)

var errUsage = errors.New("axonctl: usage: axonctl [--addr=ws://host:port/] [--token=TOKEN] <put|get|has|metrics|repl|init-config PATH> [args]")

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := flag.NewFlagSet("axonctl", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	addr := flagSet.String("addr", "ws://127.0.0.1:4470/", "axond websocket address")
	token := flagSet.String("token", "", "bearer token to authenticate with")

	if err := flagSet.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		return errUsage
	}

	if rest[0] == "init-config" {
		return cmdInitConfig(rest[1:])
	}

	client, err := rpc.Dial(*addr, *token)
	if err != nil {
		return fmt.Errorf("axonctl: %w", err)
	}
	defer func() { _ = client.Close() }()

	switch rest[0] {
	case "put":
		return cmdPut(client)
	case "get":
		return cmdGet(client, rest[1:])
	case "has":
		return cmdHas(client, rest[1:])
	case "metrics":
		return cmdMetrics(client)
	case "repl":
		return runREPL(client)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, rest[0])
	}
}

func cmdInitConfig(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: init-config <path>", errUsage)
	}

	if err := config.Save(args[0], config.DefaultConfig()); err != nil {
		return fmt.Errorf("axonctl: init-config: %w", err)
	}

	fmt.Printf("wrote default config to %s\n", args[0])

	return nil
}

func cmdPut(client *rpc.Client) error {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("axonctl: read stdin: %w", err)
	}

	size, digestHex, err := client.Put(data)
	if err != nil {
		return fmt.Errorf("axonctl: put: %w", err)
	}

	fmt.Printf("%s %d\n", digestHex, size)

	return nil
}

func cmdGet(client *rpc.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: get <digest>", errUsage)
	}

	data, err := client.Get(args[0])
	if err != nil {
		return fmt.Errorf("axonctl: get: %w", err)
	}

	_, err = os.Stdout.Write(data)
	if err != nil {
		return fmt.Errorf("axonctl: write stdout: %w", err)
	}

	return nil
}

func cmdHas(client *rpc.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: has <digest>", errUsage)
	}

	has, err := client.Has(args[0])
	if err != nil {
		return fmt.Errorf("axonctl: has: %w", err)
	}

	fmt.Println(has)

	return nil
}

func cmdMetrics(client *rpc.Client) error {
	counters, err := client.Metrics()
	if err != nil {
		return fmt.Errorf("axonctl: metrics: %w", err)
	}

	for name, value := range counters {
		fmt.Printf("%s %d\n", name, value)
	}

	return nil
}

// REPL is the interactive command loop for axonctl, issuing put/get/has/
// metrics calls over a single long-lived rpc.Client connection.
type REPL struct {
	client *rpc.Client
	liner  *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".axonctl_history")
}

func runREPL(client *rpc.Client) error {
	r := &REPL{client: client}

	return r.Run()
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Println("axonctl - axon blob store CLI")
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("axonctl> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "put":
			r.cmdPut(args)

		case "get":
			r.cmdGet(args)

		case "has":
			r.cmdHas(args)

		case "metrics":
			r.cmdMetrics()

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	if f, err := os.Create(path); err == nil {
		_, _ = r.liner.WriteHistory(f)
		f.Close()
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{"put", "get", "has", "metrics", "help", "exit", "quit", "q"}

	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  put <path>     Upload the file at path, print its digest and size")
	fmt.Println("  get <digest>   Print the blob for digest to stdout")
	fmt.Println("  has <digest>   Report whether digest is stored")
	fmt.Println("  metrics        Show the persistent counters")
	fmt.Println("  help           Show this help")
	fmt.Println("  exit / quit / q   Exit")
}

func (r *REPL) cmdPut(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: put <path>")

		return
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("error: %v\n", err)

		return
	}

	size, digestHex, err := r.client.Put(data)
	if err != nil {
		fmt.Printf("error: %v\n", err)

		return
	}

	fmt.Printf("%s %d\n", digestHex, size)
}

func (r *REPL) cmdGet(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: get <digest>")

		return
	}

	data, err := r.client.Get(args[0])
	if err != nil {
		fmt.Printf("error: %v\n", err)

		return
	}

	fmt.Printf("%d bytes: %q\n", len(data), truncate(data, 120))
}

func (r *REPL) cmdHas(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: has <digest>")

		return
	}

	has, err := r.client.Has(args[0])
	if err != nil {
		fmt.Printf("error: %v\n", err)

		return
	}

	fmt.Println(has)
}

func (r *REPL) cmdMetrics() {
	counters, err := r.client.Metrics()
	if err != nil {
		fmt.Printf("error: %v\n", err)

		return
	}

	for name, value := range counters {
		fmt.Printf("%s %d\n", name, value)
	}
}

func truncate(data []byte, n int) []byte {
	if len(data) <= n {
		return data
	}

	return data[:n]
}
