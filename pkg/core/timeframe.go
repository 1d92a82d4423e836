package core

import (
	"fmt"
	"time"
)

// Timeframe represents a canonical candlestick interval.
type Timeframe int

// Timeframe constants define the canonical interval vocabulary.
// Venue-native interval strings are translated to and from these values by
// each venue's normalizer.
const (
	// Timeframe1m is a one-minute candle.
	Timeframe1m Timeframe = iota
	// Timeframe5m is a five-minute candle.
	Timeframe5m
	// Timeframe15m is a fifteen-minute candle.
	Timeframe15m
	// Timeframe30m is a thirty-minute candle.
	Timeframe30m
	// Timeframe1h is a one-hour candle.
	Timeframe1h
	// Timeframe4h is a four-hour candle.
	Timeframe4h
	// Timeframe6h is a six-hour candle.
	Timeframe6h
	// Timeframe12h is a twelve-hour candle.
	Timeframe12h
	// Timeframe1d is a one-day candle.
	Timeframe1d
	// Timeframe1w is a one-week candle.
	Timeframe1w
	// Timeframe1M is a one-month candle.
	Timeframe1M
)

// String returns the canonical string representation of the timeframe.
func (t Timeframe) String() string {
	return [...]string{"1m", "5m", "15m", "30m", "1h", "4h", "6h", "12h", "1d", "1w", "1M"}[t]
}

// Duration returns the nominal length of one candle.
// A month is approximated as 30 days.
func (t Timeframe) Duration() time.Duration {
	return [...]time.Duration{
		time.Minute,
		5 * time.Minute,
		15 * time.Minute,
		30 * time.Minute,
		time.Hour,
		4 * time.Hour,
		6 * time.Hour,
		12 * time.Hour,
		24 * time.Hour,
		7 * 24 * time.Hour,
		30 * 24 * time.Hour,
	}[t]
}

// MarshalJSON implements json.Marshaler for Timeframe.
func (t Timeframe) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for Timeframe.
// Tokens outside the canonical vocabulary are rejected.
func (t *Timeframe) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid timeframe: %s", s)
	}
	tf, ok := ParseTimeframe(s[1 : len(s)-1])
	if !ok {
		return fmt.Errorf("invalid timeframe: %s", s)
	}
	*t = tf
	return nil
}

// ParseTimeframe converts a canonical timeframe string back to its enum value.
// The second return value is false when the string is not part of the vocabulary.
func ParseTimeframe(s string) (Timeframe, bool) {
	for tf := Timeframe1m; tf <= Timeframe1M; tf++ {
		if tf.String() == s {
			return tf, true
		}
	}
	return Timeframe1m, false
}
