package harvester

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sppmon/sppmon/internal/restpaginate"
)

// RESTAPI implements API over the backup server's paginated job,
// session, and log endpoints, using restpaginate.Paginator for the walk.
type RESTAPI struct {
	baseURL    string
	authHeader http.Header
	paginator  *restpaginate.Paginator
}

// NewRESTAPI builds a production API bound to one backup server endpoint.
func NewRESTAPI(baseURL string, authHeader http.Header, httpClient *http.Client, profile restpaginate.Profile) *RESTAPI {
	return &RESTAPI{
		baseURL:    baseURL,
		authHeader: authHeader,
		paginator:  restpaginate.New(httpClient, profile),
	}
}

type jobWire struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListJobs fetches every job with the minimal {id, name} allow_list
// (§4.G "Session enumeration").
func (r *RESTAPI) ListJobs(ctx context.Context) ([]Job, error) {
	items, _, err := r.paginator.GetObjects(ctx, func(offset, pageSize int) string {
		return fmt.Sprintf("%s/api/endeavour/job?offset=%d&pageSize=%d", r.baseURL, offset, pageSize)
	}, r.authHeader)
	if err != nil {
		return nil, fmt.Errorf("harvester: listing jobs: %w", err)
	}

	out := make([]Job, 0, len(items))
	for _, raw := range items {
		var j jobWire
		if err := json.Unmarshal(raw, &j); err != nil {
			return nil, fmt.Errorf("harvester: decoding job: %w", err)
		}
		out = append(out, Job{ID: j.ID, Name: j.Name})
	}
	return out, nil
}

type sessionWire struct {
	ID      string `json:"id"`
	JobID   string `json:"jobId"`
	JobName string `json:"jobName"`
	Start   int64  `json:"start"` // epoch milliseconds
	Status  string `json:"status"`

	Properties struct {
		Statistics []map[string]interface{} `json:"statistics"`
	} `json:"properties"`
}

// ListSessionsForJob fetches sessions for one job with the allow_list
// named in §4.G, including the nested properties.statistics list each
// session carries.
func (r *RESTAPI) ListSessionsForJob(ctx context.Context, jobID string) ([]Session, error) {
	items, _, err := r.paginator.GetObjects(ctx, func(offset, pageSize int) string {
		return fmt.Sprintf("%s/api/endeavour/job/%s/session?offset=%d&pageSize=%d", r.baseURL, jobID, offset, pageSize)
	}, r.authHeader)
	if err != nil {
		return nil, fmt.Errorf("harvester: listing sessions for job %s: %w", jobID, err)
	}

	out := make([]Session, 0, len(items))
	for _, raw := range items {
		var w sessionWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("harvester: decoding session: %w", err)
		}
		out = append(out, Session{
			ID:         w.ID,
			JobID:      w.JobID,
			JobName:    w.JobName,
			Start:      time.UnixMilli(w.Start).UTC(),
			Status:     w.Status,
			Statistics: decodeStatistics(w.Properties.Statistics),
		})
	}
	return out, nil
}

func decodeStatistics(raw []map[string]interface{}) []Statistic {
	stats := make([]Statistic, 0, len(raw))
	for _, entry := range raw {
		stat := Statistic{Fields: map[string]float64{}}
		for k, v := range entry {
			if k == "resourceType" {
				if s, ok := v.(string); ok {
					stat.ResourceType = s
				}
				continue
			}
			if n, ok := v.(float64); ok {
				stat.Fields[k] = n
			}
		}
		stats = append(stats, stat)
	}
	return stats
}

type logLineWire struct {
	ID            string   `json:"id"`
	JobSessionID  string   `json:"jobsessionId"`
	MessageID     string   `json:"messageId"`
	MessageParams []string `json:"messageParams"`
	Message       string   `json:"message"`
	Type          string   `json:"type"`
	LogTime       int64    `json:"logTime"` // epoch milliseconds
}

// FetchLog fetches sessionID's log lines filtered to types, mirroring
// §4.G step 1's "type IN <selected-log-types>" filter.
func (r *RESTAPI) FetchLog(ctx context.Context, sessionID string, types []string) ([]LogLine, error) {
	typeFilter := strings.Join(types, ",")
	items, _, err := r.paginator.GetObjects(ctx, func(offset, pageSize int) string {
		return fmt.Sprintf("%s/api/endeavour/session/%s/log?type=%s&offset=%d&pageSize=%d",
			r.baseURL, sessionID, typeFilter, offset, pageSize)
	}, r.authHeader)
	if err != nil {
		return nil, fmt.Errorf("harvester: fetching log for session %s: %w", sessionID, err)
	}

	out := make([]LogLine, 0, len(items))
	for _, raw := range items {
		var w logLineWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("harvester: decoding log line: %w", err)
		}
		out = append(out, LogLine{
			ID:            w.ID,
			JobSessionID:  w.JobSessionID,
			MessageID:     w.MessageID,
			MessageParams: w.MessageParams,
			Message:       w.Message,
			Type:          w.Type,
			LogTime:       time.UnixMilli(w.LogTime).UTC(),
		})
	}
	return out, nil
}

var _ API = (*RESTAPI)(nil)
