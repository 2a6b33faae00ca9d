package workloads

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"chainharness/chainlog"
	"chainharness/expectations"
	"chainharness/nodeapi"
	"chainharness/scenario"
	"chainharness/topology"
)

const defaultHeadroomPercent = 20

// DAConfig configures a DA workload (spec.md §4.5.b).
type DAConfig struct {
	ChannelRatePerBlock int
	BlobRatePerBlock    int
	// HeadroomPercent defaults to 20 when zero, per spec.md §4.5.b.
	HeadroomPercent int
	Logger          *logrus.Logger
}

// DA opens ChannelRatePerBlock channels per observed block and publishes
// BlobRatePerBlock blobs per channel to a dispersal-capable node, honouring
// a headroom margin so it never saturates channel capacity.
type DA struct {
	cfg       DAConfig
	log       *logrus.Logger
	submitted *expectations.SubmittedDASet
	name      string
}

// NewDA constructs a DA workload.
func NewDA(cfg DAConfig) *DA {
	if cfg.HeadroomPercent <= 0 {
		cfg.HeadroomPercent = defaultHeadroomPercent
	}
	return &DA{
		cfg:       cfg,
		log:       chainlog.OrDefault(cfg.Logger),
		submitted: expectations.NewSubmittedDASet(),
		name:      "da",
	}
}

func (d *DA) Name() string { return d.name }

func (d *DA) BundledExpectations() []scenario.Expectation {
	return []scenario.Expectation{expectations.NewDAInclusion(d.submitted, 0)}
}

func (d *DA) Init(generated *topology.GeneratedTopology, rm scenario.RunMetrics) error {
	if d.cfg.ChannelRatePerBlock < 1 {
		return fmt.Errorf("da workload: channel_rate_per_block must be >= 1")
	}
	if d.cfg.BlobRatePerBlock < 1 {
		return fmt.Errorf("da workload: blob_rate_per_block must be >= 1")
	}
	if d.cfg.HeadroomPercent < 0 || d.cfg.HeadroomPercent > 100 {
		return fmt.Errorf("da workload: headroom_percent must be in [0,100]")
	}
	if len(generated.NodesWithRole(topology.RoleDA)) == 0 {
		return fmt.Errorf("da workload: requires at least one node with role %q", topology.RoleDA)
	}
	return nil
}

func (d *DA) Start(ctx context.Context, rc *scenario.RunContext) error {
	clients := rc.ClientsByRole(topology.RoleDA)
	if len(clients) == 0 {
		return fmt.Errorf("da workload: no DA-dispersal capable clients available at run time")
	}
	client := clients[0]

	sub := rc.Feed.Subscribe()
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case rec, ok := <-sub.C():
			if !ok || rec.Closed {
				return nil
			}
			if rec.Block == nil {
				continue
			}
			d.driveBlock(ctx, client)
		}
	}
}

// driveBlock opens ChannelRatePerBlock channels and, for each, checks
// da_membership once per blob it wants dispersed (spec.md §4.1's da_membership
// operation is the only node-facing surface a DA session has; there is no
// separate publish call). The node confirms each check with a fresh blob id
// in DAMembership.Members, which this workload records as submitted —
// mirroring how the transaction workload records the id SubmitTransaction
// hands back, so DAInclusion reconciles against identifiers the node itself
// produced rather than ones invented locally that it could never observe.
func (d *DA) driveBlock(ctx context.Context, client *nodeapi.Client) {
	// effectiveBlobRate honours the headroom margin: leave
	// HeadroomPercent of declared capacity unused so the workload does
	// not saturate channel capacity (spec.md §4.5.b).
	effectiveBlobRate := d.cfg.BlobRatePerBlock * (100 - d.cfg.HeadroomPercent) / 100
	if effectiveBlobRate < 1 {
		effectiveBlobRate = 1
	}

	for c := 0; c < d.cfg.ChannelRatePerBlock; c++ {
		channelID := uuid.NewString()
		for b := 0; b < effectiveBlobRate; b++ {
			membership, err := client.DAMembership(ctx, channelID)
			if err != nil || len(membership.Members) == 0 {
				d.log.WithError(err).WithField("channel", channelID).Debug("da: membership check did not confirm a blob, not counted as submitted")
				continue
			}
			d.submitted.Add(channelID, membership.Members[0])
		}
	}
}
