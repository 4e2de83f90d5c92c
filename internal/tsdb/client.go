// Package tsdb is a thin HTTP client over the backing time-series
// database's line-protocol write endpoint and InfluxQL-style query
// endpoint. It is grounded on the teacher's db/couchdb.go split between a
// long-lived *kivik.Client bootstrap connection and per-call HTTP
// requests: SetupDatabase uses a kivik-compatible probe-then-create
// sequence (mirroring CouchDBAnimals/CouchDBDocNew in the teacher), while
// point writes and queries go over a raw net/http client because line
// protocol is not a kivik/CouchDB document format.
package tsdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/sppmon/sppmon/internal/obslog"
	"github.com/sppmon/sppmon/internal/query"
)

// ResultSet is the decoded response of a Query call: one set of columns
// and rows per statement, matching the common "series" shape of
// InfluxQL-style query responses.
type ResultSet struct {
	Series []Series `json:"series"`
}

// Series is one named, tagged table of rows within a ResultSet.
type Series struct {
	Name    string            `json:"name"`
	Tags    map[string]string `json:"tags,omitempty"`
	Columns []string          `json:"columns"`
	Values  [][]interface{}   `json:"values"`
}

// Client is the storage client surface the schema catalog, write buffer,
// and harvester depend on.
type Client interface {
	Ping(ctx context.Context) error
	SetupDatabase(ctx context.Context, name string) error

	CreateRP(ctx context.Context, db string, rp RPSpec) error
	AlterRP(ctx context.Context, db string, rp RPSpec) error
	DropRP(ctx context.Context, db, name string) error
	ListRPs(ctx context.Context, db string) ([]RPSpec, error)

	CreateCQ(ctx context.Context, db, name, renderedStatement string) error
	DropCQ(ctx context.Context, db, name string) error
	ListCQs(ctx context.Context, db string) (map[string]string, error)

	Write(ctx context.Context, db, rp string, points []string, batchSize int) error
	Query(ctx context.Context, db string, stmt query.Renderer) (ResultSet, error)

	CopyDatabase(ctx context.Context, src, dst string, plan CopyPlan) (CopyReport, error)

	// WithTimeout returns a client configured with a different request
	// timeout, used by CopyDatabase's long-running statements (§4.D step 4)
	// without mutating the shared client.
	WithTimeout(d time.Duration) Client
}

// Query takes a query.Renderer (implemented by query.Select, query.Insert
// and query.ContinuousQuery), so tsdb relies on the AST node types only
// through their Render() contract.

// RPSpec is the wire/structural form of a retention policy as the TSDB
// reports or accepts it.
type RPSpec struct {
	Name           string
	Duration       string // canonical literal, e.g. "90d" or "INF"
	ShardDuration  string
	Replication    int
	Default        bool
}

// Equal is structural equality across every field, the contract §3 uses
// for reconciliation ("Equality for reconciliation is structural").
func (r RPSpec) Equal(other RPSpec) bool {
	return r.Name == other.Name &&
		r.Duration == other.Duration &&
		r.ShardDuration == other.ShardDuration &&
		r.Replication == other.Replication &&
		r.Default == other.Default
}

// httpClient is the concrete Client implementation.
type httpClient struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	kivik    *kivik.Client
	readOnly string // username of a designated read-only role granted read on new databases
}

// Config configures a new storage client from the JSON config file's
// influxDB section (§6).
type Config struct {
	Username       string
	Password       string
	SSL            bool
	VerifySSL      bool
	ServerAddress  string
	ServerPort     int
	Timeout        time.Duration
	ReadOnlyUser   string
}

// New builds a storage client. It eagerly opens (but does not validate)
// a kivik client against the same endpoint for SetupDatabase's
// probe-then-create bootstrap.
func New(cfg Config) (Client, error) {
	scheme := "http"
	if cfg.SSL {
		scheme = "https"
	}
	base := fmt.Sprintf("%s://%s:%d", scheme, cfg.ServerAddress, cfg.ServerPort)

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	kivikURL := base
	if cfg.Username != "" {
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("tsdb: invalid server address: %w", err)
		}
		u.User = url.UserPassword(cfg.Username, cfg.Password)
		kivikURL = u.String()
	}
	kv, err := kivik.New("couch", kivikURL)
	if err != nil {
		return nil, fmt.Errorf("tsdb: failed to initialize bootstrap client: %w", err)
	}

	return &httpClient{
		baseURL:  base,
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout},
		kivik:    kv,
		readOnly: cfg.ReadOnlyUser,
	}, nil
}

func (c *httpClient) WithTimeout(d time.Duration) Client {
	clone := *c
	clone.http = &http.Client{Timeout: d}
	return &clone
}

func (c *httpClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ping", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tsdb: ping failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("tsdb: ping returned status %d", resp.StatusCode)
	}
	return nil
}

// SetupDatabase idempotently creates the database and, when a designated
// read-only user is configured, grants it read access. A missing
// read-only user is a warning, not an error, per §4.D.
func (c *httpClient) SetupDatabase(ctx context.Context, name string) error {
	exists, err := c.kivik.DBExists(ctx, name)
	if err != nil {
		obslog.Log.WithError(err).Warn("tsdb: database existence probe failed, attempting create anyway")
	}
	if !exists {
		if err := c.kivik.CreateDB(ctx, name); err != nil {
			return fmt.Errorf("tsdb: create database %q: %w", name, err)
		}
	}

	if c.readOnly == "" {
		return nil
	}
	if err := c.execQuery(ctx, name, fmt.Sprintf("GRANT READ ON %s TO %s", name, c.readOnly)); err != nil {
		obslog.Log.WithError(err).Warnf("tsdb: could not grant read on %q to %q (missing user is non-fatal)", name, c.readOnly)
	}
	return nil
}

func (c *httpClient) execQuery(ctx context.Context, db, stmt string) error {
	form := url.Values{"q": {stmt}}
	if db != "" {
		form.Set("db", db)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("tsdb: query %q failed with status %d: %s", stmt, resp.StatusCode, string(body))
	}
	return nil
}

func (c *httpClient) queryJSON(ctx context.Context, db, stmt string, out interface{}) error {
	form := url.Values{"q": {stmt}}
	if db != "" {
		form.Set("db", db)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/query?"+form.Encode(), nil)
	if err != nil {
		return err
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		if strings.Contains(string(body), "partial write") {
			return ClassifyWriteError(string(body), 1)
		}
		return fmt.Errorf("tsdb: query %q failed with status %d: %s", stmt, resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

// Query executes a rendered SELECT/DELETE statement and decodes the
// first statement's result into a ResultSet.
func (c *httpClient) Query(ctx context.Context, db string, stmt query.Renderer) (ResultSet, error) {
	var decoded struct {
		Results []struct {
			Series []Series `json:"series"`
			Error  string   `json:"error"`
		} `json:"results"`
	}
	if err := c.queryJSON(ctx, db, stmt.Render(), &decoded); err != nil {
		return ResultSet{}, err
	}
	if len(decoded.Results) == 0 {
		return ResultSet{}, nil
	}
	if decoded.Results[0].Error != "" {
		return ResultSet{}, fmt.Errorf("tsdb: query error: %s", decoded.Results[0].Error)
	}
	return ResultSet{Series: decoded.Results[0].Series}, nil
}

// Write sends rendered line-protocol points to the TSDB's write endpoint
// in batches of batchSize, classifying any partial-write error per §4.D.
func (c *httpClient) Write(ctx context.Context, db, rp string, points []string, batchSize int) error {
	if batchSize <= 0 {
		batchSize = len(points)
	}
	for start := 0; start < len(points); start += batchSize {
		end := start + batchSize
		if end > len(points) {
			end = len(points)
		}
		batch := points[start:end]
		if err := c.writeBatch(ctx, db, rp, batch, len(batch)); err != nil {
			return err
		}
	}
	return nil
}

func (c *httpClient) writeBatch(ctx context.Context, db, rp string, batch []string, batchSize int) error {
	body := strings.Join(batch, "\n")
	q := url.Values{"db": {db}, "precision": {"s"}}
	if rp != "" {
		q.Set("rp", rp)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/write?"+q.Encode(), bytes.NewBufferString(body))
	if err != nil {
		return err
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransientError{Cause: err}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		return nil
	}

	if resp.StatusCode == http.StatusPartialContent || strings.Contains(string(respBody), "partial write") {
		return ClassifyWriteError(string(respBody), batchSize)
	}
	if resp.StatusCode >= 500 {
		return &TransientError{Cause: fmt.Errorf("server error %d: %s", resp.StatusCode, string(respBody))}
	}
	return fmt.Errorf("tsdb: write failed with status %d: %s", resp.StatusCode, string(respBody))
}
