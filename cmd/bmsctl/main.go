// Command bmsctl is an interactive console for a running bms-controller.
// It toggles the charge and discharge enable switches and follows state
// changes over MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"

	"github.com/sweeney/bms-controller/internal/config"
	"github.com/sweeney/bms-controller/internal/mqtt"
)

func main() {
	cfgPath := flag.String("config", "/etc/bms-controller/bms.yaml", "YAML config file")
	envFile := flag.String("env", ".env", "env file with MQTT credentials")
	name := flag.String("name", "", "BMS name (overrides config)")

	flag.Parse()

	if err := run(*cfgPath, *envFile, *name); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfgPath, envFile, name string) error {
	cfg, err := config.Load(cfgPath, envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if name != "" {
		cfg.Name = name
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:      fmt.Sprintf("bms/%s> ", cfg.Name),
		HistoryFile: historyFilePath(),
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	// Redirect log output through readline-aware writer
	out := &readlineWriter{rl: rl}
	log.SetOutput(out)

	con := newConsole(out)
	client, err := mqtt.NewConsole(mqtt.Options{
		Broker:   cfg.MQTT.Broker,
		ClientID: fmt.Sprintf("bmsctl-%s-%d", cfg.Name, os.Getpid()),
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		Topics:   mqtt.NewTopics(cfg.Name),
	}, con.handleMessage)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer client.Close()
	con.send = client.Send

	log.Printf("connected to %s (type 'help' for commands)", cfg.MQTT.Broker)

	lines := make(chan string)
	go readLines(ctx, cancel, rl, lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-lines:
			if con.exec(line) {
				return nil
			}
		}
	}
}

func readLines(ctx context.Context, cancel context.CancelFunc, rl *readline.Instance, lines chan<- string) {
	defer cancel()
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			return // Ctrl+C
		}
		if err != nil {
			return // EOF or other error
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		select {
		case lines <- line:
		case <-ctx.Done():
			return
		}
	}
}

type readlineWriter struct {
	rl *readline.Instance
}

func (w *readlineWriter) Write(p []byte) (n int, err error) {
	if w.rl != nil {
		w.rl.Clean()
	}
	n, err = os.Stderr.Write(p)
	if w.rl != nil {
		w.rl.Refresh()
	}
	return n, err
}

// historyFilePath returns the path for the console history file.
func historyFilePath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "" // No history if we can't find home
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(cacheDir, "bmsctl")
	_ = os.MkdirAll(dir, 0750)
	return filepath.Join(dir, "history")
}
