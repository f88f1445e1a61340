package domain

// Symbol describes one trading pair: SELL orders deliver the base asset,
// BUY orders pay in the quote asset.
type Symbol struct {
	Name       string
	BaseAsset  string
	QuoteAsset string
}
