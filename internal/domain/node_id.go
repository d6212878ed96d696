package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// BroadcastNodeID is the destination used for channel-wide messages.
const BroadcastNodeID = "^all"

const broadcastNodeNum = 0xffffffff

// NormalizeNodeID trims and rejects placeholder/unknown node ids.
func NormalizeNodeID(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" || strings.EqualFold(v, "unknown") || v == "!ffffffff" || v == BroadcastNodeID {
		return ""
	}

	return v
}

// FormatNodeNum renders a numeric node address in the canonical "!1234abcd" form.
func FormatNodeNum(num uint32) string {
	return fmt.Sprintf("!%08x", num)
}

// ParseNodeNum parses canonical "!1234abcd" ids back to the numeric address.
func ParseNodeNum(nodeID string) (uint32, bool) {
	v := strings.TrimSpace(nodeID)
	if len(v) != 9 || v[0] != '!' {
		return 0, false
	}
	num, err := strconv.ParseUint(v[1:], 16, 32)
	if err != nil {
		return 0, false
	}

	return uint32(num), true
}

// NormalizeDestination maps empty and broadcast-like destinations to BroadcastNodeID.
func NormalizeDestination(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" || v == BroadcastNodeID {
		return BroadcastNodeID
	}
	if num, ok := ParseNodeNum(v); ok && num == broadcastNodeNum {
		return BroadcastNodeID
	}

	return v
}
