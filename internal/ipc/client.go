package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/pjbroadbent/layouts-service/internal/engine"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
	"github.com/pjbroadbent/layouts-service/internal/runtimepath"
)

// Client handles IPC communication with the daemon.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new IPC client.
func NewClient() *Client {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		// Keep constructor non-failing; sendRequest surfaces connection errors.
		socketPath = ""
	}
	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// sendRequest sends a request and waits for a response.
func (c *Client) sendRequest(req *Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w (is the daemon running?)", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	reqData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	reqData = append(reqData, '\n')
	if _, err := conn.Write(reqData); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	reader := bufio.NewReader(conn)
	respData, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Status == "ERROR" {
		return nil, fmt.Errorf("daemon error [%s]: %s", resp.Code, resp.Error)
	}
	return &resp, nil
}

func (c *Client) sendWindowRequest(cmd CommandType, id runtime.ID) error {
	payload, err := json.Marshal(WindowPayload{Window: id})
	if err != nil {
		return err
	}
	_, err = c.sendRequest(&Request{Command: cmd, Payload: payload})
	return err
}

// GetStatus retrieves daemon status.
func (c *Client) GetStatus() (*StatusData, error) {
	resp, err := c.sendRequest(&Request{Command: CommandGetStatus})
	if err != nil {
		return nil, err
	}
	var status StatusData
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status data: %w", err)
	}
	return &status, nil
}

// Reload asks the daemon to re-read its configuration manifests.
func (c *Client) Reload() error {
	_, err := c.sendRequest(&Request{Command: CommandReload})
	return err
}

// Undo reverts the daemon's last snap commit.
func (c *Client) Undo() error {
	_, err := c.sendRequest(&Request{Command: CommandUndo})
	return err
}

// Undock removes a window from its snap group.
func (c *Client) Undock(id runtime.ID) error {
	return c.sendWindowRequest(CommandUndock, id)
}

// ExplodeGroup dissolves the snap group containing the window.
func (c *Client) ExplodeGroup(id runtime.ID) error {
	return c.sendWindowRequest(CommandExplodeGroup, id)
}

// GetTabs lists every tab group.
func (c *Client) GetTabs() ([]engine.TabInfo, error) {
	resp, err := c.sendRequest(&Request{Command: CommandGetTabs})
	if err != nil {
		return nil, err
	}
	var tabs []engine.TabInfo
	if err := json.Unmarshal(resp.Data, &tabs); err != nil {
		return nil, fmt.Errorf("failed to parse tab data: %w", err)
	}
	return tabs, nil
}

// CreateTabGroup tabs the listed windows together.
func (c *Client) CreateTabGroup(ids []runtime.ID) error {
	payload, err := json.Marshal(CreateTabGroupPayload{Windows: ids})
	if err != nil {
		return err
	}
	_, err = c.sendRequest(&Request{Command: CommandCreateTabGroup, Payload: payload})
	return err
}

// AddTab appends a window to a tab group.
func (c *Client) AddTab(group int, id runtime.ID) error {
	payload, err := json.Marshal(AddTabPayload{Group: group, Window: id})
	if err != nil {
		return err
	}
	_, err = c.sendRequest(&Request{Command: CommandAddTab, Payload: payload})
	return err
}

// RemoveTab detaches a window from its tab group.
func (c *Client) RemoveTab(id runtime.ID) error {
	return c.sendWindowRequest(CommandRemoveTab, id)
}

// SwitchTab activates a tab within a group.
func (c *Client) SwitchTab(group int, id runtime.ID) error {
	payload, err := json.Marshal(SwitchTabPayload{Group: group, Window: id})
	if err != nil {
		return err
	}
	_, err = c.sendRequest(&Request{Command: CommandSwitchTab, Payload: payload})
	return err
}

// SetActiveTab activates a window in whatever tab group holds it.
func (c *Client) SetActiveTab(id runtime.ID) error {
	return c.sendWindowRequest(CommandSetActiveTab, id)
}

// GetSaveInfo fetches the tab-group save blob.
func (c *Client) GetSaveInfo() ([]engine.TabGroupSave, error) {
	resp, err := c.sendRequest(&Request{Command: CommandGetSaveInfo})
	if err != nil {
		return nil, err
	}
	var info []engine.TabGroupSave
	if err := json.Unmarshal(resp.Data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse save info: %w", err)
	}
	return info, nil
}

// Restore reconstructs tab groups from a save blob.
func (c *Client) Restore(groups []engine.TabGroupSave) (int, error) {
	payload, err := json.Marshal(RestorePayload{Groups: groups})
	if err != nil {
		return 0, err
	}
	resp, err := c.sendRequest(&Request{Command: CommandRestore, Payload: payload})
	if err != nil {
		return 0, err
	}
	var data RestoreData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return 0, fmt.Errorf("failed to parse restore data: %w", err)
	}
	return data.Restored, nil
}
