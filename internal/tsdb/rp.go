package tsdb

import (
	"context"
	"fmt"
	"strings"
)

func rpStatement(action, db string, rp RPSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s RETENTION POLICY %s ON %s DURATION %s REPLICATION %d", action, rp.Name, db, rp.Duration, rp.Replication)
	if rp.ShardDuration != "" {
		fmt.Fprintf(&b, " SHARD DURATION %s", rp.ShardDuration)
	}
	if rp.Default {
		b.WriteString(" DEFAULT")
	}
	return b.String()
}

func (c *httpClient) CreateRP(ctx context.Context, db string, rp RPSpec) error {
	return c.execQuery(ctx, db, rpStatement("CREATE", db, rp))
}

func (c *httpClient) AlterRP(ctx context.Context, db string, rp RPSpec) error {
	return c.execQuery(ctx, db, rpStatement("ALTER", db, rp))
}

func (c *httpClient) DropRP(ctx context.Context, db, name string) error {
	return c.execQuery(ctx, db, fmt.Sprintf("DROP RETENTION POLICY %s ON %s", name, db))
}

func (c *httpClient) ListRPs(ctx context.Context, db string) ([]RPSpec, error) {
	var decoded struct {
		Results []struct {
			Series []Series `json:"series"`
		} `json:"results"`
	}
	if err := c.queryJSON(ctx, db, fmt.Sprintf("SHOW RETENTION POLICIES ON %s", db), &decoded); err != nil {
		return nil, err
	}
	if len(decoded.Results) == 0 || len(decoded.Results[0].Series) == 0 {
		return nil, nil
	}

	cols := decoded.Results[0].Series[0].Columns
	idx := make(map[string]int, len(cols))
	for i, col := range cols {
		idx[col] = i
	}

	var out []RPSpec
	for _, row := range decoded.Results[0].Series[0].Values {
		out = append(out, RPSpec{
			Name:          stringAt(row, idx, "name"),
			Duration:      stringAt(row, idx, "duration"),
			ShardDuration: stringAt(row, idx, "shardGroupDuration"),
			Replication:   intAt(row, idx, "replicaN"),
			Default:       boolAt(row, idx, "default"),
		})
	}
	return out, nil
}

func stringAt(row []interface{}, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) || row[i] == nil {
		return ""
	}
	s, _ := row[i].(string)
	return s
}

func intAt(row []interface{}, idx map[string]int, col string) int {
	i, ok := idx[col]
	if !ok || i >= len(row) || row[i] == nil {
		return 0
	}
	switch v := row[i].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func boolAt(row []interface{}, idx map[string]int, col string) bool {
	i, ok := idx[col]
	if !ok || i >= len(row) || row[i] == nil {
		return false
	}
	b, _ := row[i].(bool)
	return b
}
