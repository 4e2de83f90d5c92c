package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sppmon/sppmon/internal/appliance"
	"github.com/sppmon/sppmon/internal/cache"
	"github.com/sppmon/sppmon/internal/errlist"
	"github.com/sppmon/sppmon/internal/harvester"
	"github.com/sppmon/sppmon/internal/obslog"
	"github.com/sppmon/sppmon/internal/pidlock"
	"github.com/sppmon/sppmon/internal/query"
	"github.com/sppmon/sppmon/internal/restpaginate"
	"github.com/sppmon/sppmon/internal/schema"
	"github.com/sppmon/sppmon/internal/sizingref"
	"github.com/sppmon/sppmon/internal/sppconfig"
	"github.com/sppmon/sppmon/internal/tsdb"
	"github.com/sppmon/sppmon/internal/unitparse"
	"github.com/sppmon/sppmon/internal/writebuffer"
)

// runMain is RootCmd's RunE: load configuration, take the PID lock,
// reconcile the schema catalog, then run whichever collector tiers the
// flags select before flushing and releasing the lock.
func runMain(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return &sppconfig.ConfigError{Key: "--cfg", Reason: "required but not set"}
	}

	cfg, err := sppconfig.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := sppconfig.Validate(cfg); err != nil {
		return err
	}

	lock, err := pidlock.Acquire(pidFile)
	if err != nil {
		return err
	}
	defer lock.Release()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := tsdb.New(tsdb.Config{
		Username:      cfg.InfluxDB.Username,
		Password:      cfg.InfluxDB.Password,
		SSL:           cfg.InfluxDB.SSL,
		VerifySSL:     cfg.InfluxDB.VerifySSL,
		ServerAddress: cfg.InfluxDB.SrvAddress,
		ServerPort:    cfg.InfluxDB.SrvPort,
		ReadOnlyUser:  cfg.InfluxDB.ReadOnlyUser,
	})
	if err != nil {
		return err
	}

	if cfg.Redis.SrvAddress != "" {
		client = cache.Wrap(client, cache.New(cache.Config{
			Address:  cfg.Redis.SrvAddress,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
	}

	catalog, err := buildCatalog(cfg.InfluxDB.Database)
	if err != nil {
		return err
	}
	if _, err := catalog.Reconcile(ctx, client); err != nil {
		return err
	}

	if copyDatabaseTarget != "" {
		report, err := client.CopyDatabase(ctx, cfg.InfluxDB.Database, copyDatabaseTarget, tsdb.CopyPlan{
			Measurements: measurementNames(catalog),
		})
		if err != nil {
			return err
		}
		obslog.Log.Infof("copy_database: copied %d, soft-dropped %d, hard-failed %d", report.Copied, report.SoftDropped, report.HardFailed)
		return nil
	}

	buffer := writebuffer.New(client, cfg.InfluxDB.Database)
	runID := uuid.New().String()

	profile := restpaginate.Normal()
	if loadedSystem {
		profile = restpaginate.Loaded()
	}

	scheme := "http"
	if cfg.SppServer.SSL {
		scheme = "https"
	}
	sppBaseURL := fmt.Sprintf("%s://%s:%d", scheme, cfg.SppServer.SrvAddress, cfg.SppServer.SrvPort)
	authHeader := http.Header{}
	authHeader.Set("Authorization", basicAuthHeader(cfg.SppServer.Username, cfg.SppServer.Password))
	httpClient := &http.Client{Timeout: profile.RequestTimeout}

	doDaily := runAll || runDaily
	doHourly := doDaily || runHourly
	doConstant := doHourly || runConstant

	var sizingLookup sizingref.Lookup
	if cfg.SizingRef.DSN != "" {
		sizingLookup, err = sizingref.Open(cfg.SizingRef.DSN)
		if err != nil {
			obslog.Log.WithError(err).Warn("sizing reference: disabled, failed to open")
		}
	}

	errs := errlist.New()

	if doConstant {
		errs.Add("constant", runConstantTier(ctx, sppBaseURL, authHeader, httpClient, profile, buffer, runID, sizingLookup))
	}
	if doHourly {
		errs.Add("hourly", runHourlyTier(ctx, sppBaseURL, authHeader, httpClient, profile, buffer, runID))
	}
	if doDaily {
		errs.Add("daily", runDailyTier(ctx, sppBaseURL, authHeader, httpClient, profile, client, cfg.InfluxDB.Database, catalog, cfg.SppServer.JobLogRetention))
	}

	if cfg.SSHAppliance.SrvAddress != "" {
		runApplianceDiagnostics(cfg, buffer, runID)
	}

	if testMode {
		obslog.Log.Info("test mode: skipping final write buffer flush")
	} else if _, err := buffer.Flush(ctx, ""); err != nil {
		errs.Add("flush", err)
	}

	obslog.Log.Info(errs.Summary(pidFile))
	if !errs.Empty() {
		return fmt.Errorf("sppmon: %s", errs.Summary(pidFile))
	}
	return nil
}

func basicAuthHeader(username, password string) string {
	req := &http.Request{Header: http.Header{}}
	req.SetBasicAuth(username, password)
	return req.Header.Get("Authorization")
}

// runDailyTier runs the job-log harvester, which only needs to run once a
// day to stay well within the backup server's log retention window. The
// catch-up window is the smaller of the configured jobLog_retention and
// the sessions measurement's own retention policy (§4.G): the harvester
// never chases sessions the TSDB has already dropped.
func runDailyTier(ctx context.Context, baseURL string, authHeader http.Header, httpClient *http.Client, profile restpaginate.Profile, client tsdb.Client, database string, catalog *schema.Catalog, jobLogRetention string) error {
	retention, err := harvestRetention(catalog, jobLogRetention)
	if err != nil {
		return err
	}

	api := harvester.NewRESTAPI(baseURL, authHeader, httpClient, profile)
	h := harvester.New(api, client, database, retention, fullLogs)

	report, err := h.Run(ctx)
	if err != nil {
		return err
	}
	obslog.Log.Infof("harvest: %d sessions enumerated, %d discovered, %d harvested, %d lines parsed, %d unknown",
		report.SessionsEnumerated, report.SessionsDiscovered, report.SessionsHarvested, report.LinesParsed, report.LinesUnknown)
	for _, e := range report.Errors {
		obslog.Log.WithError(e).Warn("harvest: session error")
	}
	return nil
}

// harvestRetention resolves the harvester's catch-up window: the
// configured jobLog_retention literal (defaulting to
// sppconfig.DefaultJobLogRetention when unset), bounded above by the
// sessions measurement's own retention policy duration.
func harvestRetention(catalog *schema.Catalog, jobLogRetention string) (time.Duration, error) {
	literal := jobLogRetention
	if literal == "" {
		literal = sppconfig.DefaultJobLogRetention
	}
	configured, err := unitparse.ParseDuration(literal)
	if err != nil {
		return 0, fmt.Errorf("sppServer.jobLog_retention: %w", err)
	}
	retention := configured.Value

	if m, ok := catalog.Measurement("sessions"); ok && m.RP != nil && !m.RP.Duration.Infinite {
		if m.RP.Duration.Value < retention || retention == 0 {
			retention = m.RP.Duration.Value
		}
	}
	return retention, nil
}

// runConstantTier polls the pieces of server state that change on the
// order of seconds: active job throughput. When a sizing reference
// lookup is configured, each sample is also checked against the
// vendor's expected throughput band for its appliance model.
func runConstantTier(ctx context.Context, baseURL string, authHeader http.Header, httpClient *http.Client, profile restpaginate.Profile, buffer *writebuffer.Buffer, runID string, sizing sizingref.Lookup) error {
	paginator := restpaginate.New(httpClient, profile)
	items, stats, err := paginator.GetObjects(ctx, func(offset, pageSize int) string {
		return fmt.Sprintf("%s/api/endeavour/statistics/throughput?offset=%d&pageSize=%d", baseURL, offset, pageSize)
	}, authHeader)
	if err != nil {
		return fmt.Errorf("constant tier: %w", err)
	}
	for _, raw := range items {
		var sample struct {
			StreamID        string  `json:"streamId"`
			BytesPerSecond  int64   `json:"bytesPerSecond"`
			ApplianceModel  string  `json:"applianceModel"`
			FirmwareVersion string  `json:"firmwareVersion"`
		}
		if err := json.Unmarshal(raw, &sample); err != nil {
			obslog.Log.WithError(err).Warn("constant tier: decoding throughput sample")
			continue
		}
		fields := map[string]query.Field{"bytes_per_second": query.IntField(sample.BytesPerSecond)}
		if sizing != nil && sample.ApplianceModel != "" {
			if row, err := sizing.Find(ctx, sample.ApplianceModel, sample.FirmwareVersion); err == nil {
				observedMBps := float64(sample.BytesPerSecond) / (1024 * 1024)
				fields["within_expected_range"] = query.BoolField(row.InRange(observedMBps))
			}
		}
		buffer.Add("throughput_sample",
			map[string]string{"stream_id": sample.StreamID},
			fields,
			0)
	}
	buffer.AddMetric("sppmon_collector_stats",
		map[string]string{"tier": "constant", "run_id": runID},
		map[string]query.Field{
			"pages_fetched": query.IntField(int64(stats.PagesFetched)),
			"items_fetched": query.IntField(int64(stats.ItemsFetched)),
			"timeouts":      query.IntField(int64(stats.Timeouts)),
		}, 0)
	return nil
}

// runHourlyTier polls storage pool capacity, which changes slowly
// enough that hourly sampling is sufficient for trend reporting.
func runHourlyTier(ctx context.Context, baseURL string, authHeader http.Header, httpClient *http.Client, profile restpaginate.Profile, buffer *writebuffer.Buffer, runID string) error {
	paginator := restpaginate.New(httpClient, profile)
	items, stats, err := paginator.GetObjects(ctx, func(offset, pageSize int) string {
		return fmt.Sprintf("%s/api/storage/pool?offset=%d&pageSize=%d", baseURL, offset, pageSize)
	}, authHeader)
	if err != nil {
		return fmt.Errorf("hourly tier: %w", err)
	}
	for _, raw := range items {
		var pool struct {
			Name        string  `json:"name"`
			UsedPercent float64 `json:"usedPercent"`
		}
		if err := json.Unmarshal(raw, &pool); err != nil {
			obslog.Log.WithError(err).Warn("hourly tier: decoding pool sample")
			continue
		}
		buffer.Add("pool_capacity",
			map[string]string{"pool": pool.Name},
			map[string]query.Field{"used_percent": query.FloatField(pool.UsedPercent)},
			0)
	}
	buffer.AddMetric("sppmon_collector_stats",
		map[string]string{"tier": "hourly", "run_id": runID},
		map[string]query.Field{
			"pages_fetched": query.IntField(int64(stats.PagesFetched)),
			"items_fetched": query.IntField(int64(stats.ItemsFetched)),
		}, 0)
	return nil
}

// runApplianceDiagnostics runs a fixed diagnostic command against the
// optional backup appliance over SSH and records only that it ran: the
// system does not parse appliance command output (§4.H Non-goal).
func runApplianceDiagnostics(cfg *sppconfig.Config, buffer *writebuffer.Buffer, runID string) {
	dialer, err := appliance.Dial(appliance.Config{
		Address:  cfg.SSHAppliance.SrvAddress,
		Port:     cfg.SSHAppliance.SrvPort,
		User:     cfg.SSHAppliance.Username,
		Password: cfg.SSHAppliance.Password,
		Timeout:  30 * time.Second,
	})
	if err != nil {
		obslog.Log.WithError(err).Warn("appliance diagnostics: dial failed")
		return
	}
	defer dialer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	_, stderr, err := dialer.Run(ctx, "df -h")
	success := err == nil
	if !success {
		obslog.Log.WithError(err).Warnf("appliance diagnostics: command failed: %s", stderr)
	}
	buffer.AddMetric("sppmon_appliance_check",
		map[string]string{"host": cfg.SSHAppliance.SrvAddress, "run_id": runID},
		map[string]query.Field{"success": query.BoolField(success)}, 0)
}
