// Package schema is the declarative measurement/retention-policy/
// continuous-query catalog and its reconciler against live TSDB state.
// It is grounded on the teacher's db/repository registry pattern
// (interfaces.go's map-of-named-constructors): a Catalog is built up by
// repeated DeclareMeasurement calls at program start, then Reconcile
// diffs the declared catalog against what the TSDB actually has and
// applies the difference additively, never dropping anything the
// catalog doesn't know about.
package schema

import (
	"context"
	"fmt"
	"sync"

	"github.com/sppmon/sppmon/internal/query"
	"github.com/sppmon/sppmon/internal/tsdb"
	"github.com/sppmon/sppmon/internal/unitparse"
)

// RetentionPolicy is a catalog-declared retention policy, independent of
// the wire RPSpec the tsdb package speaks in.
type RetentionPolicy struct {
	Name          string
	Database      string
	Duration      unitparse.Duration
	ShardDuration unitparse.Duration
	Replication   int
	Default       bool
}

func (rp *RetentionPolicy) spec() tsdb.RPSpec {
	shard := ""
	if rp.ShardDuration.Value != 0 || rp.ShardDuration.Infinite {
		shard = rp.ShardDuration.String()
	}
	replication := rp.Replication
	if replication == 0 {
		replication = 1
	}
	return tsdb.RPSpec{
		Name:          rp.Name,
		Duration:      rp.Duration.String(),
		ShardDuration: shard,
		Replication:   replication,
		Default:       rp.Default,
	}
}

// NewRP builds a retention policy from a literal duration string (e.g.
// "90d", "INF"), matching the same literal grammar unitparse.ParseDuration
// accepts everywhere else in the system.
func NewRP(name, database, durationLiteral string, replication int, isDefault bool) (*RetentionPolicy, error) {
	d, err := unitparse.ParseDuration(durationLiteral)
	if err != nil {
		return nil, fmt.Errorf("schema: retention policy %q: %w", name, err)
	}
	return &RetentionPolicy{Name: name, Database: database, Duration: d, Replication: replication, Default: isDefault}, nil
}

// The five standard retention tiers the catalog ships: a 14-day
// high-resolution buffer, a 90-day medium buffer, one-year and
// half-year non-downsampled tiers, and an infinite tier for heavily
// downsampled long-term rollups.
func RP14Day(database string) *RetentionPolicy   { return mustRP("rp_14d", database, "14d", 1, false) }
func RP90Day(database string) *RetentionPolicy   { return mustRP("rp_90d", database, "90d", 1, false) }
func RPOneYear(database string) *RetentionPolicy { return mustRP("rp_1y", database, "365d", 1, false) }
func RPHalfYear(database string) *RetentionPolicy {
	return mustRP("rp_half_year", database, "182d", 1, false)
}
func RPInfinite(database string) *RetentionPolicy { return mustRP("autogen", database, "INF", 1, true) }

func mustRP(name, database, literal string, replication int, isDefault bool) *RetentionPolicy {
	rp, err := NewRP(name, database, literal, replication, isDefault)
	if err != nil {
		panic(err) // the five literals above are constants, never user input
	}
	return rp
}

// FieldDef names one field a measurement carries and its scalar type.
type FieldDef struct {
	Name string
	Type query.FieldType
}

// CQTemplate builds a continuous query once its owning measurement has
// been declared. Templates are expressed as functions of the not-yet-
// existing Measurement because a CQ's generated name and INTO target
// both depend on the measurement's name, which isn't known until
// DeclareMeasurement assigns it.
type CQTemplate func(m *Measurement, generatedName string) (*query.ContinuousQuery, error)

// Measurement is one declared time series shape.
type Measurement struct {
	Name    string
	Fields  []FieldDef
	Tags    []string
	TimeKey string
	RP      *RetentionPolicy
	CQs     []*query.ContinuousQuery
}

// SchemaViolationError reports a catalog-level invariant breach, the §7
// "schema violation" error category.
type SchemaViolationError struct {
	Reason string
}

func (e *SchemaViolationError) Error() string { return "schema: " + e.Reason }

// Catalog is the declared set of measurements, retention policies, and
// continuous queries for one database. It carries no package-level
// global state; callers construct and pass it explicitly.
type Catalog struct {
	mu           sync.Mutex
	Database     string
	measurements map[string]*Measurement
	rps          map[string]*RetentionPolicy
	cqs          map[string]*query.ContinuousQuery
	defaultRP    string
}

// NewCatalog seeds the catalog with an implicit "autogen" infinite
// retention policy so every database has exactly one default RP even if
// the caller never declares one explicitly.
func NewCatalog(database string) *Catalog {
	autogen := RPInfinite(database)
	return &Catalog{
		Database:     database,
		measurements: map[string]*Measurement{},
		rps:          map[string]*RetentionPolicy{autogen.Name: autogen},
		cqs:          map[string]*query.ContinuousQuery{},
		defaultRP:    autogen.Name,
	}
}

// DeclareMeasurement registers a measurement shape, its retention policy
// (falling back to the catalog's default RP when rp is nil), and
// instantiates any continuous query templates against the measurement
// now that it exists. A template naming the measurement's own RP or a
// foreign RP is free to do so; DeclareMeasurement does not constrain a
// CQ's INTO target.
func (c *Catalog) DeclareMeasurement(name string, fields []FieldDef, tags []string, timeKey string, rp *RetentionPolicy, cqTemplates []CQTemplate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.measurements[name]; exists {
		return &SchemaViolationError{Reason: fmt.Sprintf("measurement %q already declared", name)}
	}

	if rp == nil {
		rp = c.rps[c.defaultRP]
	} else if err := c.registerRP(rp); err != nil {
		return err
	}

	m := &Measurement{Name: name, Fields: fields, Tags: tags, TimeKey: timeKey, RP: rp}
	c.measurements[name] = m

	for i, tmpl := range cqTemplates {
		generatedName := fmt.Sprintf("cq_%s_%d", name, i)
		cq, err := tmpl(m, generatedName)
		if err != nil {
			delete(c.measurements, name)
			return fmt.Errorf("schema: measurement %q continuous query %d: %w", name, i, err)
		}
		m.CQs = append(m.CQs, cq)
		c.cqs[cq.Name] = cq
	}
	return nil
}

// registerRP adds rp to the catalog's RP set, enforcing the at-most-one-
// default invariant. Re-declaring an RP with the same name and identical
// fields is a no-op; re-declaring one with the same name and different
// fields is a schema violation (ambiguous which definition wins).
func (c *Catalog) registerRP(rp *RetentionPolicy) error {
	if existing, ok := c.rps[rp.Name]; ok {
		if existing.spec().Equal(rp.spec()) {
			return nil
		}
		return &SchemaViolationError{Reason: fmt.Sprintf("retention policy %q redeclared with conflicting definition", rp.Name)}
	}
	if rp.Default && c.defaultRP != "" {
		current := c.rps[c.defaultRP]
		if current != nil && current.Name != rp.Name {
			if current.Name != "autogen" {
				return &SchemaViolationError{Reason: fmt.Sprintf("retention policy %q cannot be default: %q is already the database default", rp.Name, c.defaultRP)}
			}
			// The seeded autogen default gives way to the first other RP
			// declared default; autogen stays in the catalog, non-default.
			demoted := *current
			demoted.Default = false
			c.rps[current.Name] = &demoted
		}
	}
	c.rps[rp.Name] = rp
	if rp.Default {
		c.defaultRP = rp.Name
	}
	return nil
}

// Measurement returns the declared measurement by name, if any.
func (c *Catalog) Measurement(name string) (*Measurement, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.measurements[name]
	return m, ok
}

// Measurements returns every declared measurement, for callers (the
// write buffer, the harvester) that need to enumerate the whole catalog.
func (c *Catalog) Measurements() []*Measurement {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Measurement, 0, len(c.measurements))
	for _, m := range c.measurements {
		out = append(out, m)
	}
	return out
}
