package natspub

import (
	"fmt"
	"time"

	"Go2FlowLabel/internal/model"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ToStruct converts a record to the protobuf Struct carried on the wire.
func ToStruct(r *model.LabeledRecord) (*structpb.Struct, error) {
	id, s, f := r.Identity, r.Snapshot, r.Features
	return structpb.NewStruct(map[string]any{
		"topology":           r.Topology,
		"timestamp":          s.Timestamp.UTC().Format(time.RFC3339Nano),
		"datapath_id":        id.DatapathID,
		"flow_id":            id.Key(),
		"src_ip":             id.SrcIP,
		"dst_ip":             id.DstIP,
		"src_port":           uint32(id.SrcPort),
		"dst_port":           uint32(id.DstPort),
		"protocol":           uint32(id.Protocol),
		"duration_sec":       s.DurationSec,
		"duration_nsec":      s.DurationNsec,
		"idle_timeout":       uint32(s.IdleTimeout),
		"hard_timeout":       uint32(s.HardTimeout),
		"priority":           uint32(s.Priority),
		"packet_count":       s.PacketCount,
		"byte_count":         s.ByteCount,
		"packet_rate":        f.PacketRate,
		"byte_rate":          f.ByteRate,
		"bytes_per_packet":   f.BytesPerPacket,
		"flow_duration":      f.FlowDuration,
		"flow_iat":           f.FlowIAT,
		"is_tcp":             f.IsTCP,
		"is_udp":             f.IsUDP,
		"is_icmp":            f.IsICMP,
		"is_well_known_port": f.IsWellKnownPort,
		"label":              uint32(r.Label),
		"rule":               r.Rule,
		"terminal":           r.Terminal,
	})
}

// FromStruct converts a wire Struct back into a record.
func FromStruct(st *structpb.Struct) (model.LabeledRecord, error) {
	fields := st.GetFields()
	num := func(key string) float64 { return fields[key].GetNumberValue() }
	str := func(key string) string { return fields[key].GetStringValue() }
	flag := func(key string) bool { return fields[key].GetBoolValue() }

	ts, err := time.Parse(time.RFC3339Nano, str("timestamp"))
	if err != nil {
		return model.LabeledRecord{}, fmt.Errorf("invalid record timestamp: %w", err)
	}
	return model.LabeledRecord{
		Topology: str("topology"),
		Identity: model.FlowIdentity{
			DatapathID: uint64(num("datapath_id")),
			SrcIP:      str("src_ip"),
			DstIP:      str("dst_ip"),
			SrcPort:    uint16(num("src_port")),
			DstPort:    uint16(num("dst_port")),
			Protocol:   uint8(num("protocol")),
		},
		Snapshot: model.FlowSnapshot{
			Timestamp:    ts,
			DurationSec:  uint32(num("duration_sec")),
			DurationNsec: uint32(num("duration_nsec")),
			IdleTimeout:  uint16(num("idle_timeout")),
			HardTimeout:  uint16(num("hard_timeout")),
			Priority:     uint16(num("priority")),
			PacketCount:  uint64(num("packet_count")),
			ByteCount:    uint64(num("byte_count")),
		},
		Features: model.FeatureVector{
			PacketRate:      num("packet_rate"),
			ByteRate:        num("byte_rate"),
			BytesPerPacket:  num("bytes_per_packet"),
			FlowDuration:    num("flow_duration"),
			FlowIAT:         num("flow_iat"),
			IsTCP:           flag("is_tcp"),
			IsUDP:           flag("is_udp"),
			IsICMP:          flag("is_icmp"),
			IsWellKnownPort: flag("is_well_known_port"),
		},
		Label:    uint8(num("label")),
		Rule:     int(num("rule")),
		Terminal: flag("terminal"),
	}, nil
}

// Marshal serializes a record to protobuf binary format.
func Marshal(r *model.LabeledRecord) ([]byte, error) {
	st, err := ToStruct(r)
	if err != nil {
		return nil, fmt.Errorf("failed to convert record: %w", err)
	}
	return proto.Marshal(st)
}

// Unmarshal decodes a message produced by Marshal.
func Unmarshal(data []byte) (model.LabeledRecord, *structpb.Struct, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return model.LabeledRecord{}, nil, fmt.Errorf("error unmarshalling protobuf: %w", err)
	}
	r, err := FromStruct(&st)
	return r, &st, err
}
