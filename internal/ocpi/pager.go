package ocpi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"roaming/internal/errs"
)

type Page[T any] struct {
	URL        string
	Items      []T
	TotalCount int
}

// Pager walks a paginated module following the server's Link rel="next"
// header. It is a one-shot scanner: pages come back in server order, one
// request per Next call, and it stops for good on the first error, on a
// missing next link, or on a next link it has already fetched.
//
//	p := ocpi.NewPager[ocpi.Cdr](client, ocpi.ModuleCdrs, params)
//	for p.Next(ctx) {
//		handle(p.Page().Items)
//	}
//	if err := p.Err(); err != nil { ... }
type Pager[T any] struct {
	client *Client
	next   string
	seen   map[string]struct{}
	page   Page[T]
	err    error
}

func NewPager[T any](c *Client, module string, params url.Values) *Pager[T] {
	first := c.ModuleURL(module)
	if len(params) > 0 {
		first += "?" + params.Encode()
	}
	return &Pager[T]{client: c, next: first, seen: make(map[string]struct{})}
}

func (p *Pager[T]) Next(ctx context.Context) bool {
	if p.err != nil || p.next == "" {
		return false
	}
	target := p.next
	p.next = ""
	p.seen[target] = struct{}{}

	env, hdr, err := p.client.Do(ctx, http.MethodGet, target, nil)
	if err != nil {
		p.err = err
		return false
	}

	var items []T
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &items); err != nil {
			p.err = errs.Wrap(errs.CodeRemote, "decode page", err).With("url", target)
			return false
		}
	}

	if next := nextLink(hdr, target); next != "" {
		if _, fetched := p.seen[next]; !fetched {
			p.next = next
		}
	}

	total, _ := strconv.Atoi(hdr.Get("X-Total-Count"))
	p.page = Page[T]{URL: target, Items: items, TotalCount: total}
	return true
}

func (p *Pager[T]) Page() Page[T] { return p.page }

func (p *Pager[T]) Err() error { return p.err }

// nextLink extracts the rel="next" target from Link headers, resolved
// against the URL that produced them.
func nextLink(h http.Header, current string) string {
	for _, v := range h.Values("Link") {
		for _, l := range parseLinkHeader(v) {
			if !hasRel(l.params["rel"], "next") {
				continue
			}
			return resolve(current, l.target)
		}
	}
	return ""
}

type link struct {
	target string
	params map[string]string
}

// parseLinkHeader reads `<url>; key="value", <url>; key=value` lists.
func parseLinkHeader(v string) []link {
	var out []link
	for {
		start := strings.IndexByte(v, '<')
		if start < 0 {
			return out
		}
		end := strings.IndexByte(v[start:], '>')
		if end < 0 {
			return out
		}
		end += start
		l := link{target: strings.TrimSpace(v[start+1 : end]), params: map[string]string{}}
		rest := v[end+1:]
		stop := strings.IndexByte(rest, '<')
		attrs := rest
		if stop >= 0 {
			attrs = rest[:stop]
		}
		for _, attr := range strings.Split(attrs, ";") {
			attr = strings.Trim(strings.TrimSpace(attr), ",")
			k, val, ok := strings.Cut(attr, "=")
			if !ok {
				continue
			}
			l.params[strings.ToLower(strings.TrimSpace(k))] = strings.Trim(strings.TrimSpace(val), `"`)
		}
		out = append(out, l)
		if stop < 0 {
			return out
		}
		v = rest[stop:]
	}
}

func hasRel(rels, want string) bool {
	for _, r := range strings.Fields(rels) {
		if strings.EqualFold(r, want) {
			return true
		}
	}
	return false
}

func resolve(base, ref string) string {
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if r.IsAbs() {
		return r.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
