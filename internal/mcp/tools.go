package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pjbroadbent/layouts-service/internal/engine"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
)

// WindowRef addresses one window in tool inputs.
type WindowRef struct {
	UUID string `json:"uuid" jsonschema:"application uuid of the window"`
	Name string `json:"name" jsonschema:"window name within the application"`
}

func (r WindowRef) id() runtime.ID { return runtime.ID{UUID: r.UUID, Name: r.Name} }

// WindowInput is the input for tools addressing a single window.
type WindowInput struct {
	Window WindowRef `json:"window"`
}

// OKOutput is the generic success output.
type OKOutput struct {
	OK bool `json:"ok"`
}

// GetTabsOutput lists tab groups.
type GetTabsOutput struct {
	Groups []engine.TabInfo `json:"groups"`
}

// CreateTabGroupInput lists the windows to tab together.
type CreateTabGroupInput struct {
	Windows []WindowRef `json:"windows" jsonschema:"windows to tab together, in tab order"`
}

// CreateTabGroupOutput reports the new group.
type CreateTabGroupOutput struct {
	Group int `json:"group"`
}

// AddTabInput addresses a group and a window.
type AddTabInput struct {
	Group  int       `json:"group"`
	Window WindowRef `json:"window"`
}

// SwitchTabInput addresses a group and the tab to activate.
type SwitchTabInput struct {
	Group  int       `json:"group"`
	Window WindowRef `json:"window"`
}

// SaveInfoOutput carries the save blob.
type SaveInfoOutput struct {
	Groups []engine.TabGroupSave `json:"groups"`
}

// RestoreInput carries a save blob to restore.
type RestoreInput struct {
	Groups []engine.TabGroupSave `json:"groups"`
}

// RestoreOutput reports how many groups were reconstructed.
type RestoreOutput struct {
	Restored int `json:"restored"`
}

func (s *Server) handleUndock(ctx context.Context, _ *mcpsdk.CallToolRequest, args WindowInput) (*mcpsdk.CallToolResult, OKOutput, error) {
	err := s.engine.Do(ctx, func(ctx context.Context) error {
		return s.engine.Undock(ctx, args.Window.id())
	})
	if err != nil {
		return nil, OKOutput{}, err
	}
	return nil, OKOutput{OK: true}, nil
}

func (s *Server) handleExplodeGroup(ctx context.Context, _ *mcpsdk.CallToolRequest, args WindowInput) (*mcpsdk.CallToolResult, OKOutput, error) {
	err := s.engine.Do(ctx, func(ctx context.Context) error {
		return s.engine.ExplodeGroup(ctx, args.Window.id())
	})
	if err != nil {
		return nil, OKOutput{}, err
	}
	return nil, OKOutput{OK: true}, nil
}

func (s *Server) handleGetTabs(ctx context.Context, _ *mcpsdk.CallToolRequest, _ struct{}) (*mcpsdk.CallToolResult, GetTabsOutput, error) {
	var out GetTabsOutput
	err := s.engine.Do(ctx, func(context.Context) error {
		out.Groups = s.engine.GetTabs()
		return nil
	})
	return nil, out, err
}

func (s *Server) handleCreateTabGroup(ctx context.Context, _ *mcpsdk.CallToolRequest, args CreateTabGroupInput) (*mcpsdk.CallToolResult, CreateTabGroupOutput, error) {
	if len(args.Windows) < 2 {
		return nil, CreateTabGroupOutput{}, fmt.Errorf("create_tab_group needs at least 2 windows, got %d", len(args.Windows))
	}
	ids := make([]runtime.ID, len(args.Windows))
	for i, ref := range args.Windows {
		ids[i] = ref.id()
	}
	var group int
	err := s.engine.Do(ctx, func(ctx context.Context) error {
		tg, err := s.engine.CreateTabGroup(ctx, ids)
		if err != nil {
			return err
		}
		group = tg.ID()
		return nil
	})
	if err != nil {
		return nil, CreateTabGroupOutput{}, err
	}
	return nil, CreateTabGroupOutput{Group: group}, nil
}

func (s *Server) handleAddTab(ctx context.Context, _ *mcpsdk.CallToolRequest, args AddTabInput) (*mcpsdk.CallToolResult, OKOutput, error) {
	err := s.engine.Do(ctx, func(ctx context.Context) error {
		return s.engine.AddTab(ctx, args.Group, args.Window.id())
	})
	if err != nil {
		return nil, OKOutput{}, err
	}
	return nil, OKOutput{OK: true}, nil
}

func (s *Server) handleRemoveTab(ctx context.Context, _ *mcpsdk.CallToolRequest, args WindowInput) (*mcpsdk.CallToolResult, OKOutput, error) {
	err := s.engine.Do(ctx, func(ctx context.Context) error {
		return s.engine.RemoveTab(ctx, args.Window.id())
	})
	if err != nil {
		return nil, OKOutput{}, err
	}
	return nil, OKOutput{OK: true}, nil
}

func (s *Server) handleSwitchTab(ctx context.Context, _ *mcpsdk.CallToolRequest, args SwitchTabInput) (*mcpsdk.CallToolResult, OKOutput, error) {
	err := s.engine.Do(ctx, func(ctx context.Context) error {
		return s.engine.SwitchTab(ctx, args.Group, args.Window.id())
	})
	if err != nil {
		return nil, OKOutput{}, err
	}
	return nil, OKOutput{OK: true}, nil
}

func (s *Server) handleGetSaveInfo(ctx context.Context, _ *mcpsdk.CallToolRequest, _ struct{}) (*mcpsdk.CallToolResult, SaveInfoOutput, error) {
	var out SaveInfoOutput
	err := s.engine.Do(ctx, func(context.Context) error {
		out.Groups = s.engine.SaveInfo()
		return nil
	})
	return nil, out, err
}

func (s *Server) handleRestore(ctx context.Context, _ *mcpsdk.CallToolRequest, args RestoreInput) (*mcpsdk.CallToolResult, RestoreOutput, error) {
	var restored int
	err := s.engine.Do(ctx, func(ctx context.Context) error {
		var restoreErr error
		restored, restoreErr = s.engine.Restore(ctx, args.Groups)
		return restoreErr
	})
	if err != nil {
		return nil, RestoreOutput{}, err
	}
	return nil, RestoreOutput{Restored: restored}, nil
}
