// internal/models/product.go
package models

// Price is a monetary amount in a specific currency.
type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// MarketOverride carries market-specific pricing and availability for a product.
type MarketOverride struct {
	MarketID  string  `json:"market_id"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Available bool    `json:"available"`
}

// Product is a cached, non-authoritative copy of a catalog record.
// The catalog source of truth owns the canonical data; cached copies are
// TTL-bound.
type Product struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Price       Price   `json:"price"`
	Category    string  `json:"category"`
	Available   bool    `json:"available"`
	Popularity  float64 `json:"popularity,omitempty"`

	// Overrides holds market-specific representations keyed by market id.
	Overrides map[string]MarketOverride `json:"overrides,omitempty"`

	// MarketAdapted is true when the record reflects market-specific data
	// rather than the base/default market representation.
	MarketAdapted bool `json:"market_adapted"`

	// Incomplete is true when every lookup tier failed and only the id is
	// known. Callers render a placeholder instead of erroring.
	Incomplete bool `json:"incomplete,omitempty"`
}

// AdaptToMarket returns a copy of the product adjusted for the given market.
// If no override exists for the market, the base representation is returned
// with MarketAdapted=false; an optional conversion rate is applied so the
// caller still sees a price in the market's currency.
func (p Product) AdaptToMarket(marketID, currency string, rate float64) Product {
	out := p
	if ov, ok := p.Overrides[marketID]; ok {
		out.Price = Price{Amount: ov.Amount, Currency: ov.Currency}
		out.Available = ov.Available
		out.MarketAdapted = true
		return out
	}
	out.MarketAdapted = false
	if rate > 0 && currency != "" && currency != p.Price.Currency {
		out.Price = Price{Amount: round2(p.Price.Amount * rate), Currency: currency}
	}
	return out
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
