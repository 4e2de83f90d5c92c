package restpaginate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetObjects_WalksAllPages(t *testing.T) {
	pages := [][]string{
		{`"a"`, `"b"`},
		{`"c"`},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		idx := 0
		if offset == "2" {
			idx = 1
		}
		items := pages[idx]
		hasMore := idx < len(pages)-1
		fmt.Fprintf(w, `{"items":[%s],"nextOffset":%d,"hasMore":%t}`, joinJSON(items), 2*(idx+1), hasMore)
	}))
	defer srv.Close()

	p := New(srv.Client(), Normal())
	items, stats, err := p.GetObjects(context.Background(), func(offset, pageSize int) string {
		return fmt.Sprintf("%s/objects?offset=%d&pageSize=%d", srv.URL, offset, pageSize)
	}, nil)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, 2, stats.PagesFetched)
}

func TestGetObjects_EmptyFirstPageStopsImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[],"nextOffset":0,"hasMore":false}`)
	}))
	defer srv.Close()

	p := New(srv.Client(), Normal())
	items, stats, err := p.GetObjects(context.Background(), func(offset, pageSize int) string {
		return fmt.Sprintf("%s/objects", srv.URL)
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 1, stats.PagesFetched)
}

func TestShrinkAndGrow_RespectBounds(t *testing.T) {
	p := New(http.DefaultClient, Normal())
	assert.Equal(t, p.profile.MinPageSize, p.shrink(p.profile.MinPageSize))
	assert.Equal(t, p.profile.MaxPageSize, p.grow(p.profile.MaxPageSize*10))
}

func joinJSON(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += ","
		}
		out += it
	}
	return out
}
