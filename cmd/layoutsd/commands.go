package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pjbroadbent/layouts-service/internal/engine"
	"github.com/pjbroadbent/layouts-service/internal/ipc"
	"github.com/pjbroadbent/layouts-service/internal/mcp"
	"github.com/pjbroadbent/layouts-service/internal/store"
	"github.com/pjbroadbent/layouts-service/internal/x11"
)

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	jsonOut := fs.Bool("json", false, "print status as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	client := ipc.NewClient()
	status, err := client.GetStatus()
	if err != nil {
		return fatalf("status: %v", err)
	}

	if *jsonOut {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fatalf("status: %v", err)
		}
		fmt.Println(string(data))
		return 0
	}
	fmt.Printf("windows:      %d\n", status.WindowCount)
	fmt.Printf("snap groups:  %d\n", status.SnapGroupCount)
	fmt.Printf("tab groups:   %d\n", status.TabGroupCount)
	fmt.Printf("uptime:       %ds\n", status.UptimeSeconds)
	return 0
}

func runUndo(args []string) int {
	if err := ipc.NewClient().Undo(); err != nil {
		return fatalf("undo: %v", err)
	}
	fmt.Println("Last snap commit reverted.")
	return 0
}

func runTabs(args []string) int {
	tabs, err := ipc.NewClient().GetTabs()
	if err != nil {
		return fatalf("tabs: %v", err)
	}
	if len(tabs) == 0 {
		fmt.Println("No tab groups.")
		return 0
	}
	for _, group := range tabs {
		fmt.Printf("group %d (active %s):\n", group.Group, group.Active)
		for _, tab := range group.Tabs {
			marker := " "
			if tab == group.Active {
				marker = "*"
			}
			fmt.Printf("  %s %s\n", marker, tab)
		}
	}
	return 0
}

func runSave(args []string) int {
	info, err := ipc.NewClient().GetSaveInfo()
	if err != nil {
		return fatalf("save: %v", err)
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fatalf("save: %v", err)
	}
	fmt.Println(string(data))
	return 0
}

func runRestore(args []string) int {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fatalf("restore: read stdin: %v", err)
	}
	var groups []engine.TabGroupSave
	if err := json.Unmarshal(data, &groups); err != nil {
		return fatalf("restore: malformed blob: %v", err)
	}
	restored, err := ipc.NewClient().Restore(groups)
	if err != nil {
		return fatalf("restore: %v", err)
	}
	fmt.Printf("Restored %d tab group(s).\n", restored)
	return 0
}

func runReload(args []string) int {
	if err := ipc.NewClient().Reload(); err != nil {
		return fatalf("reload: %v", err)
	}
	fmt.Println("Configuration reloaded.")
	return 0
}

func runMCP(args []string) int {
	if len(args) == 0 || args[0] != "serve" {
		fmt.Fprintln(os.Stderr, "Usage: layoutsd mcp serve")
		return 2
	}

	initLogger("warn")

	adapter, err := x11.New(slog.Default())
	if err != nil {
		log.Fatalf("Failed to connect to X: %v", err)
	}
	defer adapter.Close()

	eng := engine.New(engine.Config{
		Runtime: adapter,
		Store:   store.New(),
		Logger:  slog.Default(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	go func() {
		if err := adapter.Serve(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("X event loop error: %v", err)
		}
	}()
	go func() {
		if err := eng.Serve(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("Engine error: %v", err)
		}
	}()

	server := mcp.NewServer(eng)
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("MCP server error: %v", err)
	}
	return 0
}
