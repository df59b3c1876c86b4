package logschema

import (
	"fmt"
	"sort"
	"strings"
)

// Schema 定义每个日志事件所需的关键字段，便于集中校验。
type Schema struct {
	Event    string
	Required []string
}

var schemas = map[string]Schema{
	"order_recorded": {
		Event:    "order_recorded",
		Required: []string{"order_id", "symbol", "action", "quantity", "pricetype"},
	},
	"order_status": {
		Event:    "order_status",
		Required: []string{"order_id", "from", "to"},
	},
	"order_cancelled": {
		Event:    "order_cancelled",
		Required: []string{"order_id", "records"},
	},
	"order_stale": {
		Event:    "order_stale",
		Required: []string{"order_id", "symbol", "age_sec"},
	},
	"smart_order": {
		Event:    "smart_order",
		Required: []string{"symbol", "target_position", "pricetype", "status"},
	},
	"ledger_rollover": {
		Event:    "ledger_rollover",
		Required: []string{"discarded", "oldest_date"},
	},
	"settings_changed": {
		Event:    "settings_changed",
		Required: []string{"source"},
	},
}

// Known 返回所有事件名，便于外部生成文档。
func Known() []string {
	names := make([]string, 0, len(schemas))
	for k := range schemas {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate 检查日志字段是否包含 schema 中要求的 key。
func Validate(event string, fields map[string]interface{}) error {
	s, ok := schemas[event]
	if !ok {
		return nil
	}
	var missing []string
	for _, key := range s.Required {
		if _, exists := fields[key]; !exists {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing fields: %s", event, strings.Join(missing, ","))
	}
	return nil
}
