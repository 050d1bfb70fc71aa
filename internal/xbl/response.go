package xbl

import (
	"strings"

	"tools.zach/dev/presencewatch/internal/presence"
)

// presenceResponse is the userpresence document at level=all.
type presenceResponse struct {
	XUID     string   `json:"xuid"`
	State    string   `json:"state"`
	Devices  []device `json:"devices"`
	LastSeen lastSeen `json:"lastSeen"`
}

type device struct {
	Type   string  `json:"type"`
	Titles []title `json:"titles"`
}

type title struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Placement string `json:"placement"`
	State     string `json:"state"`
}

type lastSeen struct {
	DeviceType string `json:"deviceType"`
	TitleName  string `json:"titleName"`
	Timestamp  string `json:"timestamp"`
}

type profileResponse struct {
	ProfileUsers []struct {
		ID string `json:"id"`
	} `json:"profileUsers"`
}

// snapshot extracts the presence code and foreground title. A title running
// full screen wins over other active titles; background titles are never
// reported.
func (r presenceResponse) snapshot() presence.RawSnapshot {
	snap := presence.RawSnapshot{State: r.State}

	var fallback string
	for _, d := range r.Devices {
		for _, t := range d.Titles {
			if !strings.EqualFold(t.State, "active") || t.Name == "" {
				continue
			}
			switch {
			case strings.EqualFold(t.Placement, "full"):
				snap.Title = t.Name
				return snap
			case fallback == "" && !strings.EqualFold(t.Placement, "background"):
				fallback = t.Name
			}
		}
	}
	snap.Title = fallback
	return snap
}
