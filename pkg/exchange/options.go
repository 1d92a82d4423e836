package exchange

import (
	"time"

	"lintas/pkg/core"
)

type Option func(*Options)

type Options struct {
	Limit      int
	Depth      int
	Timeframe  core.Timeframe
	StartTime  time.Time
	EndTime    time.Time
	MarketType core.MarketType
}

// WithTimeframe sets the candle interval for streaming candle subscriptions.
func WithTimeframe(tf core.Timeframe) Option {
	return func(o *Options) {
		o.Timeframe = tf
	}
}

// WithLimit caps the number of rows returned by list operations.
func WithLimit(limit int) Option {
	return func(o *Options) {
		o.Limit = limit
	}
}

// WithDepth sets the number of order book levels per side.
func WithDepth(depth int) Option {
	return func(o *Options) {
		o.Depth = depth
	}
}

// WithTimeRange bounds history operations to the given window.
func WithTimeRange(start, end time.Time) Option {
	return func(o *Options) {
		o.StartTime = start
		o.EndTime = end
	}
}

// WithMarketType selects the market segment for venues that split spot and margin.
func WithMarketType(mt core.MarketType) Option {
	return func(o *Options) {
		o.MarketType = mt
	}
}

func ApplyOptions(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
