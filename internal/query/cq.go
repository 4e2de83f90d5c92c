package query

import (
	"fmt"
	"hash/fnv"
)

// ContinuousQuery is a named downsampling rule owned by a database. Its
// identity for reconciliation purposes is the exact rendered statement
// string (§4.B): the TSDB offers no ALTER CONTINUOUS QUERY, so any
// textual drift between the declared and live CQ forces a drop-and-
// recreate rather than an update.
type ContinuousQuery struct {
	Name          string
	Database      string
	ResampleEvery string
	ResampleFor   string
	Inner         *Select
}

// NewContinuousQuery validates that the inner SELECT carries an INTO
// clause — a CQ with nowhere to write its aggregated rows is a schema
// violation, not a deferred error.
func NewContinuousQuery(cq ContinuousQuery) (*ContinuousQuery, error) {
	if cq.Inner == nil || cq.Inner.Into == "" {
		return nil, &ConstructionError{Reason: "continuous query requires an INTO-bearing inner SELECT"}
	}
	if cq.Inner.Keyword != KeywordSelect {
		return nil, &ConstructionError{Reason: "continuous query's inner statement must be SELECT"}
	}
	return &cq, nil
}

// Render produces:
//
//	CREATE CONTINUOUS QUERY <name> ON <db> [RESAMPLE EVERY <e> FOR <f>] BEGIN <select> END
func (cq *ContinuousQuery) Render() string {
	s := fmt.Sprintf("CREATE CONTINUOUS QUERY %s ON %s ", cq.Name, cq.Database)
	if cq.ResampleEvery != "" || cq.ResampleFor != "" {
		s += "RESAMPLE "
		if cq.ResampleEvery != "" {
			s += "EVERY " + cq.ResampleEvery + " "
		}
		if cq.ResampleFor != "" {
			s += "FOR " + cq.ResampleFor + " "
		}
	}
	s += "BEGIN " + cq.Inner.Render() + " END"
	return collapseWhitespace(s)
}

// Equal compares two continuous queries by their rendered text, the
// contract §4.B establishes for CQ identity.
func (cq *ContinuousQuery) Equal(other *ContinuousQuery) bool {
	if other == nil {
		return false
	}
	return cq.Render() == other.Render()
}

// Hash returns an FNV-1a hash of the rendered statement, mirroring the
// __hash__ contract the source defines on the rendered string.
func (cq *ContinuousQuery) Hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(cq.Render()))
	return h.Sum64()
}

// EqualText compares a continuous query against a raw statement string
// already on file in the TSDB (e.g. from SHOW CONTINUOUS QUERIES),
// collapsing the candidate's whitespace the same way Render() does so
// formatting differences don't cause spurious drop-and-recreate cycles.
func (cq *ContinuousQuery) EqualText(rendered string) bool {
	return cq.Render() == collapseWhitespace(rendered)
}
