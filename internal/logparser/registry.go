// Package logparser maps backup-server job-log message IDs onto the
// measurement and fields they should be written to, mirroring the
// teacher's forge package's registry of named webhook handlers (a map
// from a string key to a handler function, looked up once per event).
// Here the key is the server's numeric/alphanumeric messageId and the
// handler turns a message's positional parameters into TSDB fields.
//
// The table below is ported from the original sppmon's
// JobMethods.__supported_ids (sppmonMethods/jobs.py): each messageId,
// destination measurement, and positional param mapping matches that
// source.
package logparser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sppmon/sppmon/internal/query"
	"github.com/sppmon/sppmon/internal/unitparse"
)

// Entry is one parsed log line, ready to be handed to the write buffer.
type Entry struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]query.Field
}

// Mapper turns a message's ordered text parameters into an Entry. It
// receives the parameters already split on the server's delimiter; it
// does not see the raw line.
type Mapper func(params []string, sessionTags map[string]string) (Entry, error)

// Registry is messageId -> Mapper. It carries no mutex: the default
// registry is built once at startup and never mutated afterward.
type Registry struct {
	mappers map[string]Mapper
}

// NewRegistry builds an empty registry; callers normally start from
// DefaultRegistry instead.
func NewRegistry() *Registry {
	return &Registry{mappers: map[string]Mapper{}}
}

// Register adds or replaces the mapper for messageId.
func (r *Registry) Register(messageID string, m Mapper) {
	r.mappers[messageID] = m
}

// Parse dispatches params to the mapper registered for messageID. An
// unregistered message ID is not an error: the harvester counts it and
// moves on, since the job log format grows new message types across
// server versions.
func (r *Registry) Parse(messageID string, params []string, sessionTags map[string]string) (Entry, bool, error) {
	m, ok := r.mappers[messageID]
	if !ok {
		return Entry{}, false, nil
	}
	e, err := m(params, sessionTags)
	if err != nil {
		return Entry{}, true, fmt.Errorf("logparser: messageId %s: %w", messageID, err)
	}
	return e, true, nil
}

func param(params []string, i int) string {
	if i < 0 || i >= len(params) {
		return ""
	}
	return params[i]
}

func atoi(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// hmsSeconds parses a colon-separated HH:MM:SS duration into seconds.
func hmsSeconds(s string) (int64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%q is not an HH:MM:SS duration", s)
	}
	var total int64
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an HH:MM:SS duration", s)
		}
		total = total*60 + n
	}
	return total, nil
}

// DefaultRegistry seeds the 7 documented message IDs: VM-backup-summary-A
// (CTGGA2384) and -B (CTGGA0071) both feed vmBackupSummary,
// Replicate-summary (CTGGA0072) feeds vmReplicateSummary,
// Replicate-stats (CTGGA0398) feeds vmReplicateStats, O365-users
// (CTGGR0003) and O365-items (CTGGA2444) both feed office365Stats, and
// O365-bytes (CTGGA2402) feeds office365TransfBytes.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	// VM-backup-summary-A: name, proxy, vsnaps, type, transportType,
	// transferredBytes, throughputBytes/s, queueTimeSec, protectedVMDKs,
	// totalVMDKs, status.
	r.Register("CTGGA2384", func(params []string, tags map[string]string) (Entry, error) {
		transferred, err := unitparse.ParseSize(param(params, 5))
		if err != nil {
			return Entry{}, fmt.Errorf("transferredBytes: %w", err)
		}
		throughput, err := unitparse.ParseSize(param(params, 6))
		if err != nil {
			return Entry{}, fmt.Errorf("throughputBytes/s: %w", err)
		}
		queue, err := unitparse.ParseDuration(param(params, 7))
		if err != nil {
			return Entry{}, fmt.Errorf("queueTimeSec: %w", err)
		}
		merged := mergeTags(tags, map[string]string{"proxy": param(params, 1), "vm_name": param(params, 0)})
		return Entry{
			Measurement: "vmBackupSummary",
			Tags:        merged,
			Fields: map[string]query.Field{
				"vsnaps":             query.StringField(param(params, 2)),
				"type":               query.StringField(param(params, 3)),
				"transportType":      query.StringField(param(params, 4)),
				"transferredBytes":   query.IntField(transferred.Bytes),
				"throughputBytesSec": query.IntField(throughput.Bytes),
				"queueTimeSec":       query.IntField(queue.Seconds()),
				"protectedVMDKs":     query.StringField(param(params, 8)),
				"totalVMDKs":         query.StringField(param(params, 9)),
				"status":             query.StringField(param(params, 10)),
				"messageId":          query.StringField("CTGGA2384"),
			},
		}, nil
	})

	// VM-backup-summary-B: protectedVMDKs, <amount to add for
	// totalVMDKs>, transferredBytes, throughputBytes/s, queueTimeSec.
	r.Register("CTGGA0071", func(params []string, tags map[string]string) (Entry, error) {
		transferred, err := unitparse.ParseSize(param(params, 2))
		if err != nil {
			return Entry{}, fmt.Errorf("transferredBytes: %w", err)
		}
		throughput, err := unitparse.ParseSize(param(params, 3))
		if err != nil {
			return Entry{}, fmt.Errorf("throughputBytes/s: %w", err)
		}
		queue, err := unitparse.ParseDuration(param(params, 4))
		if err != nil {
			return Entry{}, fmt.Errorf("queueTimeSec: %w", err)
		}
		protected := atoi(param(params, 0))
		total := protected + atoi(param(params, 1))
		return Entry{
			Measurement: "vmBackupSummary",
			Tags:        mergeTags(tags, nil),
			Fields: map[string]query.Field{
				"protectedVMDKs":     query.IntField(protected),
				"totalVMDKs":         query.IntField(total),
				"transferredBytes":   query.IntField(transferred.Bytes),
				"throughputBytesSec": query.IntField(throughput.Bytes),
				"queueTimeSec":       query.IntField(queue.Seconds()),
				"messageId":          query.StringField("CTGGA0071"),
			},
		}, nil
	})

	// Replicate-summary: total, failed, duration (colon-separated
	// HH:MM:SS).
	r.Register("CTGGA0072", func(params []string, tags map[string]string) (Entry, error) {
		dur, err := hmsSeconds(param(params, 2))
		if err != nil {
			return Entry{}, fmt.Errorf("duration: %w", err)
		}
		return Entry{
			Measurement: "vmReplicateSummary",
			Tags:        mergeTags(tags, nil),
			Fields: map[string]query.Field{
				"total":    query.StringField(param(params, 0)),
				"failed":   query.StringField(param(params, 1)),
				"duration": query.IntField(dur),
			},
		}, nil
	})

	// Replicate-stats: replicatedBytes, throughputBytes/sec, duration
	// (colon-separated HH:MM:SS).
	r.Register("CTGGA0398", func(params []string, tags map[string]string) (Entry, error) {
		replicated, err := unitparse.ParseSize(param(params, 0))
		if err != nil {
			return Entry{}, fmt.Errorf("replicatedBytes: %w", err)
		}
		throughput, err := unitparse.ParseSize(param(params, 1))
		if err != nil {
			return Entry{}, fmt.Errorf("throughputBytes/sec: %w", err)
		}
		dur, err := hmsSeconds(param(params, 2))
		if err != nil {
			return Entry{}, fmt.Errorf("duration: %w", err)
		}
		return Entry{
			Measurement: "vmReplicateStats",
			Tags:        mergeTags(tags, nil),
			Fields: map[string]query.Field{
				"replicatedBytes":    query.IntField(replicated.Bytes),
				"throughputBytesSec": query.IntField(throughput.Bytes),
				"duration":           query.IntField(dur),
			},
		}, nil
	})

	// O365-users: imported365Users.
	r.Register("CTGGR0003", func(params []string, tags map[string]string) (Entry, error) {
		return Entry{
			Measurement: "office365Stats",
			Tags:        mergeTags(tags, nil),
			Fields: map[string]query.Field{
				"imported365Users": query.IntField(atoi(param(params, 0))),
			},
		}, nil
	})

	// O365-items: protectedItems, selectedItems = arg0.
	r.Register("CTGGA2444", func(params []string, tags map[string]string) (Entry, error) {
		count := atoi(param(params, 0))
		return Entry{
			Measurement: "office365Stats",
			Tags:        mergeTags(tags, nil),
			Fields: map[string]query.Field{
				"protectedItems": query.IntField(count),
				"selectedItems":  query.IntField(count),
			},
		}, nil
	})

	// O365-bytes: itemName = arg0; regex-extract (itemType, serverName,
	// transferredBytes) from arg1, e.g. "Folder (Server: mail01,
	// Transfer Size: 12.5 MB)", using the O365 family's base-2 byte
	// convention for the size literal. itemType and serverName are tags
	// in the catalog (definitions.py's office365TransfBytes table), not
	// fields.
	r.Register("CTGGA2402", func(params []string, tags map[string]string) (Entry, error) {
		match, err := parseO365Transfer(param(params, 1))
		if err != nil {
			return Entry{}, fmt.Errorf("office365TransfBytes: %w", err)
		}
		transferred, err := o365Bytes(match.transferSize)
		if err != nil {
			return Entry{}, fmt.Errorf("transferredBytes: %w", err)
		}
		merged := mergeTags(tags, map[string]string{"itemType": match.itemType, "serverName": match.serverName})
		return Entry{
			Measurement: "office365TransfBytes",
			Tags:        merged,
			Fields: map[string]query.Field{
				"itemName":         query.StringField(param(params, 0)),
				"transferredBytes": query.IntField(transferred),
			},
		}, nil
	})

	return r
}

func mergeTags(session, extra map[string]string) map[string]string {
	out := make(map[string]string, len(session)+len(extra))
	for k, v := range session {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
