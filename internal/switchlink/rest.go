package switchlink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/model"
)

// RESTProvider hands out ofctl_rest links for every switch of a topology.
// It implements model.LinkProvider.
type RESTProvider struct {
	baseURL string
	client  *http.Client
}

// NewRESTProvider creates a provider for the controller at cfg.BaseURL.
func NewRESTProvider(cfg config.RESTConfig) (*RESTProvider, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("switch_link.rest.base_url is required")
	}
	return &RESTProvider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Transport: http.DefaultTransport},
	}, nil
}

// Links returns one link per switch; no request is made until FetchFlows.
func (p *RESTProvider) Links(handle *model.TopologyHandle) ([]model.SwitchLink, error) {
	links := make([]model.SwitchLink, 0, len(handle.Desc.Switches))
	for _, dpid := range handle.Desc.DatapathIDs() {
		links = append(links, &RESTLink{dpid: dpid, url: fmt.Sprintf("%s/stats/flow/%d", p.baseURL, dpid), client: p.client})
	}
	return links, nil
}

// RESTLink reads one switch's flow table through GET /stats/flow/{dpid}.
type RESTLink struct {
	dpid   uint64
	url    string
	client *http.Client
}

// DatapathID returns the switch datapath id.
func (l *RESTLink) DatapathID() uint64 { return l.dpid }

// FetchFlows requests the flow table. The per-request deadline comes from ctx.
func (l *RESTLink) FetchFlows(ctx context.Context) ([]model.FlowObservation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build flow stats request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, classify(l.dpid, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(l.dpid, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("switch %d: controller answered %s: %w", l.dpid, resp.Status, model.ErrLinkDown)
	}
	obs, err := decodeFlowStats(l.dpid, body, time.Now())
	if err != nil {
		return nil, fmt.Errorf("switch %d: %v: %w", l.dpid, err, model.ErrLinkDown)
	}
	return obs, nil
}

// classify maps transport errors onto the link sentinels.
func classify(dpid uint64, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("switch %d: %v: %w", dpid, err, model.ErrLinkTimeout)
	}
	return fmt.Errorf("switch %d: %v: %w", dpid, err, model.ErrLinkDown)
}
