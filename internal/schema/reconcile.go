package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/sppmon/sppmon/internal/obslog"
	"github.com/sppmon/sppmon/internal/tsdb"
)

// sameStatement compares two rendered CQ statements ignoring whitespace
// differences, so formatting drift in what the TSDB echoes back doesn't
// trigger a spurious drop-and-recreate cycle.
func sameStatement(a, b string) bool {
	return strings.Join(strings.Fields(a), " ") == strings.Join(strings.Fields(b), " ")
}

// PendingCQ is a continuous query awaiting creation, carrying its already
// rendered statement text so apply doesn't need to re-render it.
type PendingCQ struct {
	Name      string
	Statement string
}

// Plan is the set of changes Reconcile computed but has not yet applied.
// Tests exercise Plan directly to check reconciliation converges without
// needing a live TSDB.
type Plan struct {
	CreateRPs []*RetentionPolicy
	AlterRPs  []*RetentionPolicy
	DropCQs   []string
	CreateCQs []*PendingCQ
}

// Reconcile computes and applies the difference between the catalog's
// declared measurements/RPs/CQs and what the TSDB already holds for
// Database. It never drops an RP or CQ the catalog doesn't know about:
// reconciliation is purely additive/corrective, matching §4.C's
// non-destructive contract.
func (c *Catalog) Reconcile(ctx context.Context, client tsdb.Client) (*Plan, error) {
	c.mu.Lock()
	rps := make([]*RetentionPolicy, 0, len(c.rps))
	for _, rp := range c.rps {
		rps = append(rps, rp)
	}
	cqs := make(map[string]string, len(c.cqs))
	for name, cq := range c.cqs {
		cqs[name] = cq.Render()
	}
	c.mu.Unlock()

	if err := client.SetupDatabase(ctx, c.Database); err != nil {
		return nil, err
	}

	liveRPs, err := client.ListRPs(ctx, c.Database)
	if err != nil {
		return nil, fmt.Errorf("schema: reconcile: listing retention policies: %w", err)
	}
	liveByName := make(map[string]tsdb.RPSpec, len(liveRPs))
	for _, rp := range liveRPs {
		liveByName[rp.Name] = rp
	}

	plan := &Plan{}
	for _, rp := range rps {
		want := rp.spec()
		live, ok := liveByName[rp.Name]
		switch {
		case !ok:
			plan.CreateRPs = append(plan.CreateRPs, rp)
		case !live.Equal(want):
			plan.AlterRPs = append(plan.AlterRPs, rp)
		}
	}

	liveCQs, err := client.ListCQs(ctx, c.Database)
	if err != nil {
		return nil, fmt.Errorf("schema: reconcile: listing continuous queries: %w", err)
	}
	for name, rendered := range cqs {
		liveText, ok := liveCQs[name]
		if !ok {
			plan.CreateCQs = append(plan.CreateCQs, &PendingCQ{Name: name, Statement: rendered})
			continue
		}
		if !sameStatement(rendered, liveText) {
			plan.DropCQs = append(plan.DropCQs, name)
			plan.CreateCQs = append(plan.CreateCQs, &PendingCQ{Name: name, Statement: rendered})
		}
	}

	if err := c.apply(ctx, client, plan); err != nil {
		return plan, err
	}
	return plan, nil
}

func (c *Catalog) apply(ctx context.Context, client tsdb.Client, plan *Plan) error {
	for _, rp := range plan.CreateRPs {
		if err := client.CreateRP(ctx, c.Database, rp.spec()); err != nil {
			return fmt.Errorf("schema: create retention policy %q: %w", rp.Name, err)
		}
		obslog.Log.Infof("schema: created retention policy %q on %q", rp.Name, c.Database)
	}
	for _, rp := range plan.AlterRPs {
		if err := client.AlterRP(ctx, c.Database, rp.spec()); err != nil {
			return fmt.Errorf("schema: alter retention policy %q: %w", rp.Name, err)
		}
		obslog.Log.Infof("schema: altered retention policy %q on %q", rp.Name, c.Database)
	}
	for _, name := range plan.DropCQs {
		if err := client.DropCQ(ctx, c.Database, name); err != nil {
			return fmt.Errorf("schema: drop continuous query %q: %w", name, err)
		}
	}
	for _, cq := range plan.CreateCQs {
		if err := client.CreateCQ(ctx, c.Database, cq.Name, cq.Statement); err != nil {
			return fmt.Errorf("schema: create continuous query %q: %w", cq.Name, err)
		}
		obslog.Log.Infof("schema: created continuous query %q on %q", cq.Name, c.Database)
	}
	return nil
}
