// Package gate decides, per inbound request, whether a document may be served
// to the requesting agent or must be bounced to the restricted landing page.
//
// Agent classification is a substring match on the self-reported User-Agent.
// Any client can send the platform marker, so the gate is obscurity that keeps
// ordinary browsers out of the storefront. It is not authentication and must
// not be relied on as a trust boundary; identity comes from session
// verification only.
package gate

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	// ReasonPiBrowserRequired is the query marker added to the redirect.
	ReasonPiBrowserRequired = "pi_browser_required"
	ReasonParam             = "reason"
	RootPath                = "/"

	// FetchDestHeader carries the request purpose (Fetch Metadata).
	FetchDestHeader = "Sec-Fetch-Dest"
)

// Navigable fetch destinations for Sec-Fetch-Dest.
var documentDestinations = map[string]struct{}{
	"document": {},
	"iframe":   {},
	"frame":    {},
}

// Config is the deployment-level gate policy.
type Config struct {
	Enabled        bool
	PlatformMarker string
	ExemptPrefixes []string
}

// Request is the subset of an inbound request the gate consults.
type Request struct {
	Path     string
	RawQuery string
	// FetchDest is the Sec-Fetch-Dest value; HasFetchDest=false when the
	// header was not sent at all.
	FetchDest    string
	HasFetchDest bool
	UserAgent    string
}

// FromHTTP extracts the classification signals from an *http.Request.
func FromHTTP(r *http.Request) Request {
	dest, present := r.Header[http.CanonicalHeaderKey(FetchDestHeader)]
	req := Request{
		Path:         r.URL.Path,
		RawQuery:     r.URL.RawQuery,
		HasFetchDest: present && len(dest) > 0,
		UserAgent:    r.UserAgent(),
	}
	if req.HasFetchDest {
		req.FetchDest = dest[0]
	}
	return req
}

// Decision is the outcome for one request.
type Decision struct {
	Allow          bool
	RedirectReason string
	// Location is set when Allow is false.
	Location string
	// Err is set when evaluation failed internally and the request was
	// allowed through.
	Err error
}

type Gate struct {
	enabled  bool
	marker   string
	prefixes []string
}

func New(cfg Config) *Gate {
	prefixes := make([]string, 0, len(cfg.ExemptPrefixes))
	for _, p := range cfg.ExemptPrefixes {
		if p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return &Gate{
		enabled:  cfg.Enabled,
		marker:   cfg.PlatformMarker,
		prefixes: prefixes,
	}
}

// Decide evaluates r. It never panics: an internal failure yields an allow
// decision with Err set.
func (g *Gate) Decide(r Request) (d Decision) {
	defer func() {
		if rec := recover(); rec != nil {
			d = Decision{Allow: true, Err: fmt.Errorf("gate evaluation panicked: %v", rec)}
		}
	}()
	return g.evaluate(r)
}

func (g *Gate) evaluate(r Request) Decision {
	if !g.enabled {
		return Decision{Allow: true}
	}
	if g.IsExempt(r.Path) {
		return Decision{Allow: true}
	}
	if !IsDocumentFetch(r.FetchDest, r.HasFetchDest) {
		return Decision{Allow: true}
	}
	if g.IsPlatformAgent(r.UserAgent) {
		return Decision{Allow: true}
	}
	if isRejectionLanding(r.Path, r.RawQuery) {
		return Decision{Allow: true}
	}
	return Decision{
		Allow:          false,
		RedirectReason: ReasonPiBrowserRequired,
		Location:       RedirectLocation(ReasonPiBrowserRequired),
	}
}

// IsExempt reports whether path starts with one of the exempt prefixes.
func (g *Gate) IsExempt(path string) bool {
	for _, p := range g.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// IsPlatformAgent is the spoofable User-Agent heuristic.
func (g *Gate) IsPlatformAgent(userAgent string) bool {
	return g.marker != "" && strings.Contains(userAgent, g.marker)
}

// IsDocumentFetch treats a missing or blank Sec-Fetch-Dest as a document
// fetch so that agents omitting the header cannot skip the gate.
func IsDocumentFetch(dest string, present bool) bool {
	dest = strings.ToLower(strings.TrimSpace(dest))
	if !present || dest == "" {
		return true
	}
	_, ok := documentDestinations[dest]
	return ok
}

// RedirectLocation builds "/?reason=<reason>".
func RedirectLocation(reason string) string {
	return RootPath + "?" + url.Values{ReasonParam: {reason}}.Encode()
}

func isRejectionLanding(path, rawQuery string) bool {
	if path != RootPath {
		return false
	}
	// ParseQuery keeps the pairs it could decode even when it reports an error.
	q, _ := url.ParseQuery(rawQuery)
	for _, v := range q[ReasonParam] {
		if v == ReasonPiBrowserRequired {
			return true
		}
	}
	return false
}
