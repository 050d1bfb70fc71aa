package state

import (
	"encoding/json"
	"fmt"
	"time"

	"tools.zach/dev/presencewatch/internal/migrate"
	"tools.zach/dev/presencewatch/internal/presence"
)

func init() {
	migrate.State.Register(migrate.Migration{
		Version:     2,
		Description: "convert [timestamp, status] array to object record",
		Upgrade:     upgradeLegacyArray,
	})
}

// upgradeLegacyArray converts the two-element [unix_ts, "status"] array into
// a version 2 record. An active status opens a session at the recorded
// timestamp, matching how the old monitor resumed its online counter.
func upgradeLegacyArray(data []byte) ([]byte, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("parsing legacy array: %w", err)
	}
	if len(arr) != 2 {
		return nil, fmt.Errorf("legacy array has %d elements, want 2", len(arr))
	}

	var ts float64
	if err := json.Unmarshal(arr[0], &ts); err != nil {
		return nil, fmt.Errorf("legacy timestamp: %w", err)
	}
	var name string
	if err := json.Unmarshal(arr[1], &name); err != nil {
		return nil, fmt.Errorf("legacy status: %w", err)
	}

	var k presence.Known
	if ts > 0 {
		t := time.Unix(int64(ts), 0).UTC()
		k.Record = presence.StatusRecord{
			State: presence.ParseState(name),
			Time:  t,
		}
		k.Since = t
		if k.Record.State.Active() {
			k.Session.Start(t)
		}
	}

	return json.Marshal(File{Version: 2, Known: k})
}
