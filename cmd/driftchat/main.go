// driftchat - a terminal client for the driftchat conversation service.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/driftapp/driftchat/internal/api"
	"github.com/driftapp/driftchat/internal/config"
	"github.com/driftapp/driftchat/internal/render"
	"github.com/driftapp/driftchat/internal/session"
	"github.com/driftapp/driftchat/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.driftchat/config.toml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("driftchat %s (%s, %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "driftchat: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// TUI owns the terminal; route log output to a file instead.
	closeLog := redirectLogs()
	defer closeLog()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	client := api.NewClient(cfg.Server.BaseURL, nil).WithMaxRetries(cfg.Server.MaxRetries)

	controller := session.New(client, store, session.WithPageSize(cfg.Chat.DirectoryPageSize))
	defer controller.Close()

	if cfg.Chat.ReasoningEnabled {
		controller.Apply(session.ToggleReasoning{})
	}
	if cfg.Chat.SearchEnabled {
		controller.Apply(session.ToggleSearch{})
	}
	controller.Apply(session.LoadConversations{})

	renderer := render.New(cfg.UI.Theme)

	program := tea.NewProgram(
		newTUI(controller, renderer, cfg),
		tea.WithAltScreen(),
	)

	stopWatch := watchConfig(configPath, program)
	defer stopWatch()

	_, err = program.Run()
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// openStore builds the local conversation store for the configured driver.
func openStore(cfg *config.Config) (*storage.ConversationStore, error) {
	path, err := cfg.DataPath()
	if err != nil {
		return nil, err
	}

	var kv storage.KV
	switch cfg.Storage.Driver {
	case "sqlite":
		kv, err = storage.NewSQLiteKV(path)
	default:
		kv, err = storage.NewFileKV(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	return storage.NewConversationStore(kv), nil
}

// watchConfig forwards live config edits into the running program.
func watchConfig(explicitPath string, program *tea.Program) func() {
	path := explicitPath
	if path == "" {
		p, err := config.ConfigPathTOML()
		if err != nil {
			return func() {}
		}
		path = p
	}
	if _, err := os.Stat(path); err != nil {
		return func() {}
	}

	watcher, err := config.Watch(path)
	if err != nil {
		log.Printf("config watch unavailable: %v", err)
		return func() {}
	}

	go func() {
		for cfg := range watcher.Updates() {
			program.Send(configReloadedMsg{cfg: cfg})
		}
	}()
	return func() { watcher.Close() }
}

func redirectLogs() func() {
	dir, err := config.ConfigDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}
	os.MkdirAll(dir, 0755)

	f, err := os.OpenFile(dir+"/driftchat.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}
	log.SetOutput(f)
	log.Printf("driftchat %s started at %s", Version, time.Now().Format(time.RFC3339))
	return func() { f.Close() }
}
