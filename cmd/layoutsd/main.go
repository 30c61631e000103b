package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runDaemon(os.Args[2:]))
	case "status":
		os.Exit(runStatus(os.Args[2:]))
	case "undo":
		os.Exit(runUndo(os.Args[2:]))
	case "tabs":
		os.Exit(runTabs(os.Args[2:]))
	case "save":
		os.Exit(runSave(os.Args[2:]))
	case "restore":
		os.Exit(runRestore(os.Args[2:]))
	case "reload":
		os.Exit(runReload(os.Args[2:]))
	case "mcp":
		os.Exit(runMCP(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: layoutsd <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run                 Start the layout daemon (foreground)")
	fmt.Fprintln(w, "  status              Show daemon status")
	fmt.Fprintln(w, "  undo                Undo the last snap commit")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  tabs                List tab groups")
	fmt.Fprintln(w, "  save                Print the tab-group save blob")
	fmt.Fprintln(w, "  restore             Restore tab groups from a save blob on stdin")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  reload              Re-read configuration manifests")
	fmt.Fprintln(w, "  mcp serve           Start MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'layoutsd <command> --help' for command-specific options.")
}
