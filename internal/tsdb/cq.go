package tsdb

import "fmt"
import "context"

func (c *httpClient) CreateCQ(ctx context.Context, db, name, renderedStatement string) error {
	return c.execQuery(ctx, db, renderedStatement)
}

func (c *httpClient) DropCQ(ctx context.Context, db, name string) error {
	return c.execQuery(ctx, db, fmt.Sprintf("DROP CONTINUOUS QUERY %s ON %s", name, db))
}

// ListCQs returns every continuous query belonging to db, keyed by name,
// with its exact rendered statement text as last declared to the TSDB.
// The schema reconciler compares these values against its rendered CQs
// with whitespace-insensitive text equality.
func (c *httpClient) ListCQs(ctx context.Context, db string) (map[string]string, error) {
	var decoded struct {
		Results []struct {
			Series []Series `json:"series"`
		} `json:"results"`
	}
	if err := c.queryJSON(ctx, "", "SHOW CONTINUOUS QUERIES", &decoded); err != nil {
		return nil, err
	}
	out := map[string]string{}
	if len(decoded.Results) == 0 {
		return out, nil
	}
	for _, series := range decoded.Results[0].Series {
		if series.Name != db {
			continue
		}
		idx := make(map[string]int, len(series.Columns))
		for i, col := range series.Columns {
			idx[col] = i
		}
		for _, row := range series.Values {
			name := stringAt(row, idx, "name")
			q := stringAt(row, idx, "query")
			if name != "" {
				out[name] = q
			}
		}
	}
	return out, nil
}
