package core

// MarketType represents the type of trading market on a venue.
type MarketType int

// Market type constants define the available trading market categories.
const (
	// MarketTypeSpot indicates spot trading where assets are exchanged immediately.
	MarketTypeSpot MarketType = iota
	// MarketTypeMargin indicates leveraged trading against borrowed funds.
	MarketTypeMargin
)

// String returns the string representation of the market type ("spot" or "margin").
func (m MarketType) String() string {
	return [...]string{
		"spot",
		"margin",
	}[m]
}
