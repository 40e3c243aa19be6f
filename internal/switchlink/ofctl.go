// Package switchlink implements model.SwitchLink against real controllers:
// the Ryu ofctl_rest API over HTTP and a NATS request/reply bridge.
package switchlink

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"Go2FlowLabel/internal/model"
)

// flowStat is one entry of an ofctl flow-stats reply.
type flowStat struct {
	Priority     uint16         `json:"priority"`
	IdleTimeout  uint16         `json:"idle_timeout"`
	HardTimeout  uint16         `json:"hard_timeout"`
	DurationSec  uint32         `json:"duration_sec"`
	DurationNsec uint32         `json:"duration_nsec"`
	PacketCount  uint64         `json:"packet_count"`
	ByteCount    uint64         `json:"byte_count"`
	Match        map[string]any `json:"match"`
}

// decodeFlowStats parses a {"<dpid>": [...]} reply into observations stamped with at.
func decodeFlowStats(dpid uint64, body []byte, at time.Time) ([]model.FlowObservation, error) {
	var reply map[string][]flowStat
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("failed to decode flow stats: %w", err)
	}
	stats, ok := reply[strconv.FormatUint(dpid, 10)]
	if !ok && len(reply) > 0 {
		return nil, fmt.Errorf("flow stats reply has no entry for switch %d", dpid)
	}

	obs := make([]model.FlowObservation, 0, len(stats))
	for _, st := range stats {
		obs = append(obs, model.FlowObservation{
			Identity: matchIdentity(dpid, st.Match),
			Snapshot: model.FlowSnapshot{
				Timestamp:    at,
				DurationSec:  st.DurationSec,
				DurationNsec: st.DurationNsec,
				IdleTimeout:  st.IdleTimeout,
				HardTimeout:  st.HardTimeout,
				Priority:     st.Priority,
				PacketCount:  st.PacketCount,
				ByteCount:    st.ByteCount,
			},
		})
	}
	return obs, nil
}

// matchIdentity reads the match fields of OpenFlow 1.3 (ipv4_src, tcp_src...) and
// falls back to the OpenFlow 1.0 names (nw_src, tp_src...). Missing addresses
// render as 0.0.0.0 and missing ports as 0.
func matchIdentity(dpid uint64, m map[string]any) model.FlowIdentity {
	return model.FlowIdentity{
		DatapathID: dpid,
		SrcIP:      matchIP(m, "ipv4_src", "nw_src"),
		DstIP:      matchIP(m, "ipv4_dst", "nw_dst"),
		SrcPort:    uint16(matchNumber(m, "tcp_src", "udp_src", "tp_src")),
		DstPort:    uint16(matchNumber(m, "tcp_dst", "udp_dst", "tp_dst")),
		Protocol:   uint8(matchNumber(m, "ip_proto", "nw_proto")),
	}
}

func matchIP(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			// Masked matches arrive as "10.0.0.1/255.255.255.255".
			if i := strings.IndexByte(s, '/'); i >= 0 {
				s = s[:i]
			}
			return s
		}
	}
	return "0.0.0.0"
}

func matchNumber(m map[string]any, keys ...string) uint64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return uint64(v)
		case string:
			if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}
