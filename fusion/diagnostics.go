package fusion

import (
	"errors"
	"log/slog"
	"time"

	"github.com/Galaxy-Crusader/KalmanLocationManager/provider"
	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/metrics"
)

// Diagnostics is a snapshot of the manager's counters since it was created.
// FeedDrops counts values a slow feed subscriber never saw.
type Diagnostics struct {
	AcceptedSat       int64 `json:"accepted_sat"`
	AcceptedNet       int64 `json:"accepted_net"`
	RejectedInvalid   int64 `json:"rejected_invalid"`
	RejectedStale     int64 `json:"rejected_stale"`
	RejectedPaused    int64 `json:"rejected_paused"`
	RejectedDuplicate int64 `json:"rejected_duplicate"`
	Ticks             int64 `json:"ticks"`
	ListenerFailures  int64 `json:"listener_failures"`
	FeedDrops         int64 `json:"feed_drops"`
}

func (d Diagnostics) Accepted() int64 {
	return d.AcceptedSat + d.AcceptedNet
}

func (d Diagnostics) Rejected() int64 {
	return d.RejectedInvalid + d.RejectedStale + d.RejectedPaused + d.RejectedDuplicate
}

type counters struct {
	reg metrics.Registry

	acceptedSat       metrics.Counter
	acceptedNet       metrics.Counter
	rejectedInvalid   metrics.Counter
	rejectedStale     metrics.Counter
	rejectedPaused    metrics.Counter
	rejectedDuplicate metrics.Counter
	ticks             metrics.Counter
	listenerFailures  metrics.Counter
	feedDrops         metrics.Counter
}

func newCounters() *counters {
	// Won't count without this global setting.
	metrics.Enabled = true

	reg := metrics.NewRegistry()
	c := &counters{
		reg:               reg,
		acceptedSat:       metrics.NewRegisteredCounter("accepted.sat", reg),
		acceptedNet:       metrics.NewRegisteredCounter("accepted.net", reg),
		rejectedInvalid:   metrics.NewRegisteredCounter("rejected.invalid", reg),
		rejectedStale:     metrics.NewRegisteredCounter("rejected.stale", reg),
		rejectedPaused:    metrics.NewRegisteredCounter("rejected.paused", reg),
		rejectedDuplicate: metrics.NewRegisteredCounter("rejected.duplicate", reg),
		ticks:             metrics.NewRegisteredCounter("ticks", reg),
		listenerFailures:  metrics.NewRegisteredCounter("listener.failures", reg),
		feedDrops:         metrics.NewRegisteredCounter("feed.drops", reg),
	}
	return c
}

func (c *counters) accepted(source fix.Source) {
	switch source {
	case fix.SourceSat:
		c.acceptedSat.Inc(1)
	case fix.SourceNet:
		c.acceptedNet.Inc(1)
	}
}

// rejected counts err under its reason.
func (c *counters) rejected(err error) {
	switch {
	case errors.Is(err, provider.ErrInvalid):
		c.rejectedInvalid.Inc(1)
	case errors.Is(err, provider.ErrStale):
		c.rejectedStale.Inc(1)
	case errors.Is(err, provider.ErrPaused):
		c.rejectedPaused.Inc(1)
	case errors.Is(err, provider.ErrDuplicate):
		c.rejectedDuplicate.Inc(1)
	}
}

func (c *counters) snapshot() Diagnostics {
	return Diagnostics{
		AcceptedSat:       c.acceptedSat.Snapshot().Count(),
		AcceptedNet:       c.acceptedNet.Snapshot().Count(),
		RejectedInvalid:   c.rejectedInvalid.Snapshot().Count(),
		RejectedStale:     c.rejectedStale.Snapshot().Count(),
		RejectedPaused:    c.rejectedPaused.Snapshot().Count(),
		RejectedDuplicate: c.rejectedDuplicate.Snapshot().Count(),
		Ticks:             c.ticks.Snapshot().Count(),
		ListenerFailures:  c.listenerFailures.Snapshot().Count(),
		FeedDrops:         c.feedDrops.Snapshot().Count(),
	}
}

// logEvery logs the counters on a wall-clock interval until quit closes.
// meter rates accepted measurements.
func (c *counters) logEvery(log *slog.Logger, interval time.Duration, meter metrics.Meter, quit <-chan struct{}) {
	started := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			c.log(log, meter, started)
		}
	}
}

func (c *counters) log(log *slog.Logger, meter metrics.Meter, started time.Time) {
	d := c.snapshot()
	rate := meter.Snapshot()
	log.Info("Fusion diagnostics",
		"accepted.sat", humanize.Comma(d.AcceptedSat),
		"accepted.net", humanize.Comma(d.AcceptedNet),
		"rejected", humanize.Comma(d.Rejected()),
		"stale", humanize.Comma(d.RejectedStale),
		"ticks", humanize.Comma(d.Ticks),
		"listener.failures", d.ListenerFailures,
		"feed.drops", d.FeedDrops,
		"mps", humanize.FtoaWithDigits(rate.Rate1(), 2),
		"running", time.Since(started).Round(time.Second))
}
