package polymarket

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"
)

// FetchActivity pages through a wallet's activity until a short page or max
// rows. max <= 0 uses DefaultMaxActivity. Rows are returned as the API sent
// them for the normalizer to interpret.
func (c *Client) FetchActivity(ctx context.Context, wallet string, max int) ([]gjson.Result, error) {
	if max <= 0 {
		max = DefaultMaxActivity
	}

	var rows []gjson.Result
	for offset := 0; offset < max; offset += c.pageSize {
		q := url.Values{}
		q.Set("user", wallet)
		q.Set("limit", strconv.Itoa(c.pageSize))
		q.Set("offset", strconv.Itoa(offset))

		body, err := c.get(ctx, c.dataURL+"/activity?"+q.Encode())
		if err != nil {
			return rows, fmt.Errorf("fetch activity %s offset %d: %w", wallet, offset, err)
		}

		parsed := gjson.ParseBytes(body)
		if !parsed.IsArray() {
			return rows, fmt.Errorf("fetch activity %s offset %d: response is not an array", wallet, offset)
		}
		page := parsed.Array()
		rows = append(rows, page...)

		c.log.Debug().Str("wallet", wallet).Int("offset", offset).Int("rows", len(page)).Msg("activity page")
		if len(page) < c.pageSize {
			break
		}
	}

	if len(rows) > max {
		rows = rows[:max]
	}
	return rows, nil
}
