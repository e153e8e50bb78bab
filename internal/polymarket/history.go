package polymarket

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"

	"shadow-index-lab/internal/domain"
	"shadow-index-lab/internal/quotes"
)

// Compile-time interface check.
var _ quotes.HistoryFetcher = (*Client)(nil)

// PriceHistory returns daily prices for an outcome token from the CLOB
// prices-history endpoint. When several samples fall on one day the last wins.
func (c *Client) PriceHistory(ctx context.Context, tokenID string) ([]quotes.Point, error) {
	q := url.Values{}
	q.Set("market", tokenID)
	q.Set("interval", "max")
	q.Set("fidelity", "1440")

	body, err := c.get(ctx, c.clobURL+"/prices-history?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetch price history %s: %w", tokenID, err)
	}
	return parseHistory(body), nil
}

func parseHistory(body []byte) []quotes.Point {
	var out []quotes.Point
	gjson.GetBytes(body, "history").ForEach(func(_, sample gjson.Result) bool {
		ts := sample.Get("t").Int()
		p := sample.Get("p")
		if ts <= 0 || !p.Exists() {
			return true
		}
		pt := quotes.Point{Date: quotes.DateOf(ts), Price: domain.ClampUnit(p.Float())}
		if n := len(out); n > 0 && out[n-1].Date == pt.Date {
			out[n-1] = pt
		} else {
			out = append(out, pt)
		}
		return true
	})
	return out
}
