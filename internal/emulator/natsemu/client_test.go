package natsemu

import (
	"encoding/json"
	"strings"
	"testing"

	"Go2FlowLabel/internal/model"
)

func TestDecodeReply(t *testing.T) {
	reply, err := decodeReply(SubjectHosts, []byte(`{"hosts":[{"name":"h1","ip":"10.0.0.1","switch":"s1"}]}`))
	if err != nil {
		t.Fatalf("decodeReply failed: %v", err)
	}
	if len(reply.Hosts) != 1 || reply.Hosts[0].Switch != "s1" {
		t.Errorf("Unexpected hosts: %+v", reply.Hosts)
	}

	_, err = decodeReply(SubjectCreate, []byte(`{"error":"RTNETLINK answers: File exists"}`))
	if err == nil || !strings.Contains(err.Error(), "File exists") {
		t.Errorf("Expected the agent error, got %v", err)
	}

	if _, err := decodeReply(SubjectDestroy, []byte(`not json`)); err == nil {
		t.Error("Expected a decode error")
	}
}

func TestCreateRequestCarriesDatapathIDs(t *testing.T) {
	data, err := json.Marshal(CreateRequest{Topology: model.TopologyDesc{
		Name:     "linear",
		Switches: []model.Switch{{Name: "s1", DatapathID: 1}},
		Links:    []model.Link{{A: "h1", B: "s1", Bandwidth: 50, Delay: "2ms"}},
	}})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, want := range []string{`"dpid":1`, `"bw":50`, `"delay":"2ms"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("Request %s lacks %s", data, want)
		}
	}
}
