// Package reference resolves diagnosis labels to informational URLs on a
// curated medical reference site, falling back to search when no curated
// page exists.
package reference

import (
	"net/url"
	"strings"
)

const (
	DefaultDomain     = "dermnetnz.org"
	DefaultSiteSearch = "https://dermnetnz.org/search?query="
	DefaultWebSearch  = "https://www.google.com/search?q="
)

// MatchKind tags the outcome of a catalog lookup.
type MatchKind int

const (
	// MatchNone means the label has no entry at all.
	MatchNone MatchKind = iota
	// MatchExactURL means the label maps to a curated page.
	MatchExactURL
	// MatchExplicitFallback means the label is known but deliberately has no
	// curated page.
	MatchExplicitFallback
)

func (k MatchKind) String() string {
	switch k {
	case MatchExactURL:
		return "exact_url"
	case MatchExplicitFallback:
		return "explicit_fallback"
	default:
		return "none"
	}
}

// Match is the tagged result of Lookup. URL is set only for MatchExactURL.
type Match struct {
	Kind MatchKind
	URL  string
}

// Options customises the curated domain and search endpoints.
type Options struct {
	Domain     string
	SiteSearch string
	WebSearch  string
}

// Resolver maps labels to absolute URLs. It is immutable after construction
// and safe for concurrent use.
type Resolver struct {
	entries    map[string]*string
	domain     string
	siteSearch string
	webSearch  string
}

// NewResolver builds a resolver over refs. Keys are normalized the same way
// labels are; a nil value marks an explicit fallback.
func NewResolver(refs map[string]*string, opts Options) *Resolver {
	entries := make(map[string]*string, len(refs))
	for label, ref := range refs {
		key := normalize(label)
		if key == "" {
			continue
		}
		if ref != nil {
			v := strings.TrimSpace(*ref)
			if v == "" {
				ref = nil
			} else {
				ref = &v
			}
		}
		entries[key] = ref
	}

	r := &Resolver{
		entries:    entries,
		domain:     opts.Domain,
		siteSearch: opts.SiteSearch,
		webSearch:  opts.WebSearch,
	}
	if r.domain == "" {
		r.domain = DefaultDomain
	}
	if r.siteSearch == "" {
		r.siteSearch = DefaultSiteSearch
	}
	if r.webSearch == "" {
		r.webSearch = DefaultWebSearch
	}
	return r
}

// Lookup classifies label against the curated map.
func (r *Resolver) Lookup(label string) Match {
	ref, ok := r.entries[normalize(label)]
	switch {
	case !ok:
		return Match{Kind: MatchNone}
	case ref == nil:
		return Match{Kind: MatchExplicitFallback}
	default:
		return Match{Kind: MatchExactURL, URL: *ref}
	}
}

// ResolveURL always returns an absolute URL for label.
func (r *Resolver) ResolveURL(label string) string {
	if strings.TrimSpace(label) == "" {
		return r.GenericURL()
	}

	m := r.Lookup(label)
	switch m.Kind {
	case MatchExactURL:
		return m.URL
	case MatchExplicitFallback:
		return r.siteSearch + url.QueryEscape(label)
	default:
		return r.webSearch + url.QueryEscape("site:"+r.domain+" "+label)
	}
}

// GenericURL is returned for empty labels.
func (r *Resolver) GenericURL() string {
	return r.webSearch + "site:" + r.domain
}

func normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
