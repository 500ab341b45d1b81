package bus

import "sync/atomic"

// Stats is a point-in-time copy of the router counters.
type Stats struct {
	Ingested         int64
	Rejected         int64
	LoopDropped      int64
	FilterDropped    int64
	Dispatched       int64
	Delivered        int64
	Ignored          int64
	DeliveryFailures int64
	SourceFailures   int64
}

type counters struct {
	ingested         atomic.Int64
	rejected         atomic.Int64
	loopDropped      atomic.Int64
	filterDropped    atomic.Int64
	dispatched       atomic.Int64
	delivered        atomic.Int64
	ignored          atomic.Int64
	deliveryFailures atomic.Int64
	sourceFailures   atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Ingested:         c.ingested.Load(),
		Rejected:         c.rejected.Load(),
		LoopDropped:      c.loopDropped.Load(),
		FilterDropped:    c.filterDropped.Load(),
		Dispatched:       c.dispatched.Load(),
		Delivered:        c.delivered.Load(),
		Ignored:          c.ignored.Load(),
		DeliveryFailures: c.deliveryFailures.Load(),
		SourceFailures:   c.sourceFailures.Load(),
	}
}
