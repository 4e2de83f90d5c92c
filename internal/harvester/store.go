package harvester

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sppmon/sppmon/internal/query"
	"github.com/sppmon/sppmon/internal/tsdb"
)

const sessionsMeasurement = "sessions"

// SessionStore reads and deletes rows in the sessions measurement on
// behalf of the harvester's enumeration, discovery, and atomic-swap
// phases. Writes go through the harvester's own write buffer instead
// (they need to land in the same bulk insert as derived rows and
// jobLogs), so SessionStore only ever issues SELECT and DELETE.
type SessionStore struct {
	client   tsdb.Client
	database string
}

// NewSessionStore builds a SessionStore bound to one database.
func NewSessionStore(client tsdb.Client, database string) *SessionStore {
	return &SessionStore{client: client, database: database}
}

// KnownSessionIDs returns the set of session IDs the sessions
// measurement already has for jobID within the retention window, used
// by EnumerateSessions to compute API-set minus DB-set.
func (s *SessionStore) KnownSessionIDs(ctx context.Context, jobID string, since time.Time) (map[string]bool, error) {
	sel, err := query.NewSelect(query.Select{
		Keyword: query.KeywordSelect,
		Fields:  []string{"id"},
		From:    sessionsMeasurement,
		Where:   fmt.Sprintf("jobId='%s' AND time > %ds", escapeLiteral(jobID), since.Unix()),
	})
	if err != nil {
		return nil, err
	}

	rs, err := s.client.Query(ctx, s.database, sel)
	if err != nil {
		return nil, fmt.Errorf("harvester: querying known sessions: %w", err)
	}

	out := map[string]bool{}
	for _, series := range rs.Series {
		idx := columnIndex(series.Columns, "id")
		if idx < 0 {
			continue
		}
		for _, row := range series.Values {
			if id, ok := stringValue(row, idx); ok {
				out[id] = true
			}
		}
	}
	return out, nil
}

// unharvestedWhere is the predicate shared by Unharvested and
// DeleteUnharvested: §4.G's "Atomic swap" step re-evaluates the exact
// same predicate the discovery query used, so the delete matches every
// unharvested row in the window at the time it runs, including one
// written between discovery and swap.
func unharvestedWhere(since time.Time) string {
	return fmt.Sprintf("jobsLogsStored != 'True' AND time > %ds", since.Unix())
}

// Unharvested returns every session row still missing its logs within
// the retention window.
func (s *SessionStore) Unharvested(ctx context.Context, since time.Time) ([]Session, error) {
	sel, err := query.NewSelect(query.Select{
		Keyword: query.KeywordSelect,
		From:    sessionsMeasurement,
		Where:   unharvestedWhere(since),
	})
	if err != nil {
		return nil, err
	}

	rs, err := s.client.Query(ctx, s.database, sel)
	if err != nil {
		return nil, fmt.Errorf("harvester: querying unharvested sessions: %w", err)
	}

	var out []Session
	for _, series := range rs.Series {
		for _, row := range series.Values {
			out = append(out, sessionFromRow(series.Columns, row))
		}
	}
	return out, nil
}

// DeleteUnharvested removes every session row still missing its logs
// within the retention window; AtomicSwap follows this with a bulk
// insert of the full (updated-or-unchanged) set.
func (s *SessionStore) DeleteUnharvested(ctx context.Context, since time.Time) error {
	sel, err := query.NewSelect(query.Select{
		Keyword: query.KeywordDelete,
		From:    sessionsMeasurement,
		Where:   unharvestedWhere(since),
	})
	if err != nil {
		return err
	}
	_, err = s.client.Query(ctx, s.database, sel)
	return err
}

func sessionFromRow(cols []string, row []interface{}) Session {
	var s Session
	if id, ok := stringValue(row, columnIndex(cols, "id")); ok {
		s.ID = id
	}
	if jobID, ok := stringValue(row, columnIndex(cols, "jobId")); ok {
		s.JobID = jobID
	}
	if jobName, ok := stringValue(row, columnIndex(cols, "jobName")); ok {
		s.JobName = jobName
	}
	if status, ok := stringValue(row, columnIndex(cols, "status")); ok {
		s.Status = status
	}
	if count, ok := numberValue(row, columnIndex(cols, "jobLogsCount")); ok {
		s.JobLogsCount = int(count)
	}
	if stored, ok := stringValue(row, columnIndex(cols, "jobsLogsStored")); ok {
		s.JobsLogsStored = stored == "True"
	}
	if ts, ok := numberValue(row, columnIndex(cols, "time")); ok {
		s.Start = time.Unix(int64(ts), 0).UTC()
	}
	return s
}

func columnIndex(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}

func stringValue(row []interface{}, idx int) (string, bool) {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return "", false
	}
	str, ok := row[idx].(string)
	return str, ok
}

func numberValue(row []interface{}, idx int) (float64, bool) {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return 0, false
	}
	n, ok := row[idx].(float64)
	return n, ok
}

// escapeLiteral escapes a single-quoted InfluxQL string literal embedded
// in a WHERE clause.
func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}
