// Package mcp exposes the layout service's client API as MCP tools so
// agent frontends can drive window grouping over stdio.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pjbroadbent/layouts-service/internal/engine"
)

const (
	ServerName    = "layouts-service"
	ServerVersion = "0.1.0"
)

// Server is the MCP server over one layout engine.
type Server struct {
	mcpServer *mcpsdk.Server
	engine    *engine.Engine
}

// NewServer creates an MCP server bound to eng.
func NewServer(eng *engine.Engine) *Server {
	s := &Server{engine: eng}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "undock_window",
		Description: "Remove a window from its snap group. The window keeps its position; the remaining members stay snapped, split into separate groups where they no longer touch.",
	}, s.handleUndock)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "explode_group",
		Description: "Dissolve the snap group containing a window into standalone windows.",
	}, s.handleExplodeGroup)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_tabs",
		Description: "List every tab group with its ordered tabs and active tab.",
	}, s.handleGetTabs)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "create_tab_group",
		Description: "Tab two or more windows together. The first window's bounds become the shared body region and it becomes the active tab.",
	}, s.handleCreateTabGroup)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "add_tab",
		Description: "Append a window to an existing tab group.",
	}, s.handleAddTab)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "remove_tab",
		Description: "Detach a window from its tab group, restoring its pre-tab bounds. A group left with one tab collapses.",
	}, s.handleRemoveTab)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "switch_tab",
		Description: "Activate a tab within its tab group; only the active tab's body is visible.",
	}, s.handleSwitchTab)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_save_info",
		Description: "Serialize every tab group into a restorable save blob.",
	}, s.handleGetSaveInfo)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "restore",
		Description: "Reconstruct tab groups from a save blob. Windows that no longer exist are skipped; groups with fewer than 2 surviving tabs are not created.",
	}, s.handleRestore)
}
