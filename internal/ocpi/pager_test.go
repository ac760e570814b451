package ocpi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"roaming/internal/errs"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvelope(w http.ResponseWriter, data any) {
	raw, _ := json.Marshal(data)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Response{Data: raw, StatusCode: StatusCodeSuccess, Timestamp: time.Now().UTC()})
}

func collect[T any](t *testing.T, p *Pager[T]) []Page[T] {
	t.Helper()
	var pages []Page[T]
	for p.Next(context.Background()) {
		pages = append(pages, p.Page())
	}
	return pages
}

func TestPagerFollowsNextUntilAbsent(t *testing.T) {
	var srv *httptest.Server
	r := chi.NewRouter()
	r.Get("/ocpi/cpo/2.1.1/cdrs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		offset := r.URL.Query().Get("offset")
		switch offset {
		case "":
			w.Header().Set("Link", fmt.Sprintf(`<%s/ocpi/cpo/2.1.1/cdrs?offset=1>; rel="next"`, srv.URL))
			w.Header().Set("X-Total-Count", "3")
			writeEnvelope(w, []Cdr{{ID: "c1"}})
		case "1":
			// relative next link
			w.Header().Set("Link", `</ocpi/cpo/2.1.1/cdrs?offset=2>; rel="next"`)
			writeEnvelope(w, []Cdr{{ID: "c2"}})
		default:
			writeEnvelope(w, []Cdr{{ID: "c3"}})
		}
	})
	srv = httptest.NewServer(r)
	defer srv.Close()

	c := NewClient(srv.URL+"/ocpi/cpo/2.1.1", "secret", time.Second)
	p := NewPager[Cdr](c, ModuleCdrs, url.Values{"limit": {"1"}})
	pages := collect(t, p)

	require.NoError(t, p.Err())
	require.Len(t, pages, 3)
	assert.Equal(t, "c1", pages[0].Items[0].ID)
	assert.Equal(t, 3, pages[0].TotalCount)
	assert.Equal(t, "c2", pages[1].Items[0].ID)
	assert.Equal(t, "c3", pages[2].Items[0].ID)
	assert.False(t, p.Next(context.Background()), "exhausted pager stays exhausted")
}

func TestPagerStopsOnSelfReferencingNext(t *testing.T) {
	var calls int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Link", fmt.Sprintf(`<%s%s>; rel="next"`, srv.URL, r.URL.RequestURI()))
		writeEnvelope(w, []Session{{ID: "s1"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", time.Second)
	p := NewPager[Session](c, ModuleSessions, url.Values{"limit": {"10"}})
	pages := collect(t, p)

	require.NoError(t, p.Err())
	assert.Len(t, pages, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPagerStopsOnLongerCycle(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next := "/sessions?p=2"
		if r.URL.Query().Get("p") == "2" {
			next = "/sessions?p=1"
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s%s>; rel="next"`, srv.URL, next))
		writeEnvelope(w, []Session{})
	}))
	defer srv.Close()

	p := &Pager[Session]{client: NewClient(srv.URL, "t", time.Second), next: srv.URL + "/sessions?p=1", seen: map[string]struct{}{}}
	pages := collect(t, p)
	assert.Len(t, pages, 2)
}

func TestPagerPropagatesTransportFailure(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/locations?page=2>; rel="next"`, srv.URL))
		writeEnvelope(w, []Location{{ID: "L1"}})
	}))
	defer srv.Close()

	p := NewPager[Location](NewClient(srv.URL, "t", time.Second), ModuleLocations, nil)
	pages := collect(t, p)

	assert.Len(t, pages, 1)
	require.Error(t, p.Err())
	assert.True(t, errs.Is(p.Err(), errs.CodeRemote))
	assert.Equal(t, http.StatusBadGateway, errs.FieldsOf(p.Err())["status"])
}

func TestParseLinkHeader(t *testing.T) {
	links := parseLinkHeader(`<https://a.example/x?offset=10&limit=5>; rel="next", <https://a.example/x?offset=0>; rel=prev`)
	require.Len(t, links, 2)
	assert.Equal(t, "https://a.example/x?offset=10&limit=5", links[0].target)
	assert.Equal(t, "next", links[0].params["rel"])
	assert.Equal(t, "prev", links[1].params["rel"])

	h := http.Header{}
	h.Add("Link", `<https://a.example/x?offset=0>; rel="prev"`)
	h.Add("Link", `</x?offset=20>; rel="next"`)
	assert.Equal(t, "https://a.example/x?offset=20", nextLink(h, "https://a.example/x?offset=10"))
	assert.Equal(t, "", nextLink(http.Header{}, "https://a.example/x"))
}
