// Package restpaginate drives paged GET requests against the backup
// server's REST API with an adaptive page size: it shrinks the page on
// timeout and grows it back once requests succeed comfortably, the same
// "probe, then widen" strategy the teacher's http client package uses
// for its retrying request helper, generalized here from a fixed retry
// count to a continuously adapted page size.
package restpaginate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/sppmon/sppmon/internal/obslog"
)

// Profile bundles the tunables that differ between a normally loaded
// server and one flagged as under heavy load (the --loadedSystem CLI
// flag, §6): the loaded profile starts smaller, grows more slowly, and
// tolerates a longer per-page timeout before shrinking again.
type Profile struct {
	InitialPageSize int
	MinPageSize     int
	MaxPageSize     int
	GrowthFactor    float64
	ShrinkFactor    float64
	RequestTimeout  time.Duration
	RateLimit       rate.Limit
	RateBurst       int
}

// Normal is the default paging profile for an unloaded server.
func Normal() Profile {
	return Profile{
		InitialPageSize: 500,
		MinPageSize:     50,
		MaxPageSize:     2000,
		GrowthFactor:    1.5,
		ShrinkFactor:    0.5,
		RequestTimeout:  30 * time.Second,
		RateLimit:       10,
		RateBurst:       5,
	}
}

// Loaded is the conservative paging profile used under --loadedSystem.
func Loaded() Profile {
	return Profile{
		InitialPageSize: 100,
		MinPageSize:     20,
		MaxPageSize:     500,
		GrowthFactor:    1.2,
		ShrinkFactor:    0.5,
		RequestTimeout:  90 * time.Second,
		RateLimit:       3,
		RateBurst:       2,
	}
}

// Page is one decoded page of a paginated REST response: items plus the
// server's "has more" / next-offset hints.
type Page struct {
	Items      []json.RawMessage
	NextOffset int
	HasMore    bool
}

// Paginator walks a single REST endpoint page by page, adapting the
// requested page size to how the server responds.
type Paginator struct {
	http    *http.Client
	limiter *rate.Limiter
	profile Profile
}

// New builds a paginator bound to one profile. The caller supplies the
// *http.Client (already carrying auth and TLS configuration) so the
// paginator itself stays transport-agnostic.
func New(httpClient *http.Client, profile Profile) *Paginator {
	return &Paginator{
		http:    httpClient,
		limiter: rate.NewLimiter(profile.RateLimit, profile.RateBurst),
		profile: profile,
	}
}

// Stats reports the aggregate behavior of a GetObjects run, emitted as a
// self-metrics point by the caller.
type Stats struct {
	PagesFetched  int
	ItemsFetched  int
	Timeouts      int
	FinalPageSize int
}

// GetObjects walks every page of urlBuilder(offset, pageSize) until the
// server reports no more items, adapting page size on timeout: a timed-
// out request is retried once at a shrunk page size before being treated
// as a hard failure, and three consecutive timeout-free pages multiply
// the page size by the profile's growth factor, capped at its maximum.
func (p *Paginator) GetObjects(ctx context.Context, urlBuilder func(offset, pageSize int) string, fetchHeaders http.Header) ([]json.RawMessage, Stats, error) {
	pageSize := p.profile.InitialPageSize
	offset := 0
	var all []json.RawMessage
	stats := Stats{}
	consecutiveClean := 0

	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return all, stats, fmt.Errorf("restpaginate: rate limiter: %w", err)
		}

		page, err := p.fetchPage(ctx, urlBuilder(offset, pageSize), fetchHeaders)
		if err != nil {
			if !isTimeout(err) {
				return all, stats, fmt.Errorf("restpaginate: fetching offset %d: %w", offset, err)
			}
			stats.Timeouts++
			consecutiveClean = 0
			shrunk := p.shrink(pageSize)
			if shrunk == pageSize {
				return all, stats, fmt.Errorf("restpaginate: timeout at minimum page size %d: %w", pageSize, err)
			}
			obslog.Log.Warnf("restpaginate: timeout at offset %d page size %d, retrying at %d", offset, pageSize, shrunk)
			pageSize = shrunk
			page, err = p.fetchPage(ctx, urlBuilder(offset, pageSize), fetchHeaders)
			if err != nil {
				return all, stats, fmt.Errorf("restpaginate: retry at offset %d: %w", offset, err)
			}
		} else {
			consecutiveClean++
		}

		stats.PagesFetched++
		stats.ItemsFetched += len(page.Items)
		all = append(all, page.Items...)

		if consecutiveClean >= 3 {
			pageSize = p.grow(pageSize)
			consecutiveClean = 0
		}

		if !page.HasMore || len(page.Items) == 0 {
			break
		}
		offset = page.NextOffset
	}

	stats.FinalPageSize = pageSize
	return all, stats, nil
}

func (p *Paginator) shrink(current int) int {
	next := int(float64(current) * p.profile.ShrinkFactor)
	if next < p.profile.MinPageSize {
		next = p.profile.MinPageSize
	}
	return next
}

func (p *Paginator) grow(current int) int {
	next := int(float64(current) * p.profile.GrowthFactor)
	if next > p.profile.MaxPageSize {
		next = p.profile.MaxPageSize
	}
	return next
}

func (p *Paginator) fetchPage(ctx context.Context, url string, headers http.Header) (Page, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.profile.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, err
	}
	if resp.StatusCode >= 300 {
		return Page{}, fmt.Errorf("restpaginate: status %d: %s", resp.StatusCode, string(body))
	}

	var decoded struct {
		Items      []json.RawMessage `json:"items"`
		NextOffset int               `json:"nextOffset"`
		HasMore    bool              `json:"hasMore"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Page{}, fmt.Errorf("restpaginate: decoding page: %w", err)
	}
	return Page{Items: decoded.Items, NextOffset: decoded.NextOffset, HasMore: decoded.HasMore}, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	if errors.As(err, &t) {
		return t.Timeout()
	}
	return false
}
