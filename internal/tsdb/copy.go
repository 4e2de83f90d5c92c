package tsdb

import (
	"context"
	"time"

	"github.com/sppmon/sppmon/internal/obslog"
	"github.com/sppmon/sppmon/internal/query"
)

// copyTimeout is the request timeout CopyDatabase swaps in for the bulk
// SELECT INTO statements (§4.D): a full-database copy of years of history
// can run far longer than the normal per-call write/query timeout.
const copyTimeout = 7200 * time.Second

// CopyPlan names what to copy: every measurement to replicate, evaluated
// against every retention policy the source database reports.
type CopyPlan struct {
	Measurements []string
}

// CopyReport tallies the outcome of CopyDatabase, distinguishing a soft
// failure (the TSDB accepted the bulk statement but silently dropped
// some points, the "partial write" case) from a hard failure (the bulk
// statement for a whole measurement/RP pair failed outright).
type CopyReport struct {
	Copied      int
	SoftDropped int
	HardFailed  int
	Errors      []error
}

// CopyDatabase replicates every (retention policy, measurement) pair from
// src into dst: it creates dst, mirrors src's retention policies onto it,
// then issues one SELECT * INTO per measurement per RP using a
// long-timeout client swapped in for the duration of the bulk copy.
func (c *httpClient) CopyDatabase(ctx context.Context, src, dst string, plan CopyPlan) (CopyReport, error) {
	var report CopyReport

	if err := c.SetupDatabase(ctx, dst); err != nil {
		return report, err
	}

	srcRPs, err := c.ListRPs(ctx, src)
	if err != nil {
		return report, err
	}

	longClient, ok := c.WithTimeout(copyTimeout).(*httpClient)
	if !ok {
		longClient = c
	}

	for _, rp := range srcRPs {
		if err := c.CreateRP(ctx, dst, rp); err != nil {
			obslog.Log.WithError(err).Warnf("tsdb: copy_database: could not mirror retention policy %q onto %q (may already exist)", rp.Name, dst)
		}

		for _, measurement := range plan.Measurements {
			into := query.Qualify(dst, rp.Name, measurement)
			from := query.Qualify(src, rp.Name, measurement)

			sel, err := query.NewSelect(query.Select{
				Keyword: query.KeywordSelect,
				Into:    into,
				From:    from,
			})
			if err != nil {
				report.HardFailed++
				report.Errors = append(report.Errors, err)
				continue
			}

			_, err = longClient.Query(ctx, dst, sel)
			if err == nil {
				report.Copied++
				continue
			}

			if pw, ok := err.(*PartialWriteError); ok {
				report.SoftDropped += pw.Dropped
				report.Copied++
				continue
			}
			report.HardFailed++
			report.Errors = append(report.Errors, err)
		}
	}

	return report, nil
}
