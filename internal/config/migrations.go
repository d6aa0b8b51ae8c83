package config

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/podmpd/internal/migrate"
)

func init() {
	migrate.Config.Register(migrate.Migration{
		Version:     2,
		Description: "daemon.reply_timeout_seconds -> daemon.reply_timeout_ms",
		Upgrade:     replyTimeoutToMillis,
	})
}

// replyTimeoutToMillis rewrites the v1 whole-second reply timeout as
// milliseconds. Files without the key only get their version bumped.
func replyTimeoutToMillis(data []byte) ([]byte, error) {
	raw := map[string]any{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode v1 config: %w", err)
	}

	if daemon, ok := raw["daemon"].(map[string]any); ok {
		if v, ok := daemon["reply_timeout_seconds"]; ok {
			secs, ok := v.(int64)
			if !ok {
				return nil, fmt.Errorf("daemon.reply_timeout_seconds: want integer, got %T", v)
			}
			delete(daemon, "reply_timeout_seconds")
			if _, exists := daemon["reply_timeout_ms"]; !exists {
				daemon["reply_timeout_ms"] = secs * 1000
			}
		}
	}
	raw["version"] = int64(2)

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(raw); err != nil {
		return nil, fmt.Errorf("encode v2 config: %w", err)
	}
	return buf.Bytes(), nil
}
