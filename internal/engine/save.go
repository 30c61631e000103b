package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pjbroadbent/layouts-service/internal/geometry"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
	"github.com/pjbroadbent/layouts-service/internal/store"
)

// Dimensions is the saved placement of one tab group, integer pixels.
type Dimensions struct {
	X              int `json:"x"`
	Y              int `json:"y"`
	Width          int `json:"width"`
	TabGroupHeight int `json:"tabGroupHeight"`
	AppHeight      int `json:"appHeight"`
}

// GroupInfo is the saved identity and placement of one tab group.
type GroupInfo struct {
	URL        string     `json:"url"`
	Active     runtime.ID `json:"active"`
	Dimensions Dimensions `json:"dimensions"`
}

// TabGroupSave is one element of the save blob.
type TabGroupSave struct {
	Tabs      []runtime.ID `json:"tabs"`
	GroupInfo GroupInfo    `json:"groupInfo"`
}

// SaveInfo serializes every tab group.
func (e *Engine) SaveInfo() []TabGroupSave {
	groups := e.desktop.TabGroups()
	out := make([]TabGroupSave, 0, len(groups))
	for _, tg := range groups {
		body := tg.Body()
		strip := tg.Strip().Rect()
		entry := TabGroupSave{
			Tabs: tg.TabIDs(),
			GroupInfo: GroupInfo{
				URL: tg.URL(),
				Dimensions: Dimensions{
					X:              int(strip.Min().X),
					Y:              int(strip.Min().Y),
					Width:          int(body.Width()),
					TabGroupHeight: int(strip.Height()),
					AppHeight:      int(body.Height()),
				},
			},
		}
		if a := tg.Active(); a != nil {
			entry.GroupInfo.Active = a.ID()
		}
		out = append(out, entry)
	}
	return out
}

// SaveBlob marshals SaveInfo to JSON.
func (e *Engine) SaveBlob() ([]byte, error) {
	return json.Marshal(e.SaveInfo())
}

// Restore reconstructs tab groups from a save blob. Listed windows that
// no longer exist are skipped; a group with fewer than 2 surviving tabs
// is not created. It returns the number of groups restored.
func (e *Engine) Restore(ctx context.Context, saves []TabGroupSave) (int, error) {
	restored := 0
	for _, entry := range saves {
		if err := e.restoreOne(ctx, entry); err != nil {
			e.log.Warn("tab group restore skipped", "error", err)
			continue
		}
		restored++
	}
	return restored, nil
}

// RestoreBlob unmarshals and restores a JSON save blob.
func (e *Engine) RestoreBlob(ctx context.Context, blob []byte) (int, error) {
	var saves []TabGroupSave
	if err := json.Unmarshal(blob, &saves); err != nil {
		return 0, fmt.Errorf("malformed save blob: %w", err)
	}
	return e.Restore(ctx, saves)
}

func (e *Engine) restoreOne(ctx context.Context, entry TabGroupSave) error {
	var survivors []runtime.ID
	for _, id := range entry.Tabs {
		if _, err := e.desktop.Window(id); err == nil {
			survivors = append(survivors, id)
		}
	}
	if len(survivors) < 2 {
		return fmt.Errorf("only %d of %d saved tabs present", len(survivors), len(entry.Tabs))
	}

	dims := entry.GroupInfo.Dimensions
	body := geometry.RectFromBounds(
		float64(dims.X),
		float64(dims.Y+dims.TabGroupHeight),
		float64(dims.Width),
		float64(dims.AppHeight),
	)

	resolved := e.store.Resolve(store.ServiceScope())
	if entry.GroupInfo.URL != "" {
		resolved.TabstripURL = entry.GroupInfo.URL
	}
	resolved.TabstripHeight = dims.TabGroupHeight

	tg, err := e.newTabGroup(ctx, body, resolved)
	if err != nil {
		return err
	}
	for _, id := range survivors {
		w, err := e.desktop.Window(id)
		if err != nil {
			continue
		}
		if err := w.SetBounds(ctx, body); err != nil {
			return err
		}
		if err := tg.AddTab(ctx, w, -1); err != nil {
			return err
		}
	}
	if active, err := e.desktop.Window(entry.GroupInfo.Active); err == nil && tg.HasTab(active) {
		if err := tg.SwitchTab(ctx, active); err != nil {
			return err
		}
	}
	return nil
}
