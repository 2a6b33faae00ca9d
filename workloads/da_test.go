package workloads_test

import (
	"context"
	"testing"
	"time"

	"chainharness/blockfeed"
	"chainharness/nodeapi"
	"chainharness/scenario"
	"chainharness/topology"
	"chainharness/workloads"
)

type daNoopSource struct{}

func (daNoopSource) ConsensusInfo(ctx context.Context) (*nodeapi.ConsensusInfo, error) {
	return &nodeapi.ConsensusInfo{}, nil
}
func (daNoopSource) StorageBlock(ctx context.Context, headerID string) (*nodeapi.Block, error) {
	return nil, nodeapi.ErrNotFound
}

func TestDAInitRequiresDANode(t *testing.T) {
	gen := &topology.GeneratedTopology{Nodes: []topology.NodeDescriptor{{Index: 0, Role: topology.RoleValidator}}}
	rm := scenario.DeriveRunMetrics(2*time.Second, 0.9, 60*time.Second)

	da := workloads.NewDA(workloads.DAConfig{ChannelRatePerBlock: 1, BlobRatePerBlock: 1})
	if err := da.Init(gen, rm); err == nil {
		t.Fatalf("expected error: no DA-dispersal node present")
	}
}

func TestDAInitDefaultsHeadroom(t *testing.T) {
	gen := &topology.GeneratedTopology{Nodes: []topology.NodeDescriptor{{Index: 0, Role: topology.RoleDA}}}
	rm := scenario.DeriveRunMetrics(2*time.Second, 0.9, 60*time.Second)

	da := workloads.NewDA(workloads.DAConfig{ChannelRatePerBlock: 2, BlobRatePerBlock: 2})
	if err := da.Init(gen, rm); err != nil {
		t.Fatalf("Init: %v", err)
	}
}

func TestDAStartFailsWithoutDAClientAtRunTime(t *testing.T) {
	gen := &topology.GeneratedTopology{Nodes: []topology.NodeDescriptor{{Index: 0, Role: topology.RoleValidator}}}
	feed := blockfeed.New(blockfeed.Config{Sources: []blockfeed.Source{daNoopSource{}}, Tick: time.Hour})
	feed.Start(t.Context())
	defer feed.Close()

	rm := scenario.DeriveRunMetrics(2*time.Second, 0.9, 60*time.Second)
	rc := scenario.NewRunContext(gen, nil, nil, feed, nil, rm, nil)

	da := workloads.NewDA(workloads.DAConfig{ChannelRatePerBlock: 1, BlobRatePerBlock: 1})
	if err := da.Start(t.Context(), rc); err == nil {
		t.Fatalf("expected error: no DA client available at run time")
	}
}
