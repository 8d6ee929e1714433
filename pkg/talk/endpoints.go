package talk

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	// UserAgent is the mobile client identity sent on every API call
	UserAgent = "Dalvik/2.1.0 (Linux; U; Android 6.0; Samsung Galaxy S7 for keyaki messages Build/MRA58K)"

	// TokenEndpoint exchanges a refresh token for an access token
	TokenEndpoint = "/v2/update_token"

	// TimelineEndpoint lists the messages of one member
	TimelineEndpoint = "/v2/groups/%s/timeline"

	// TimelineCount is the page size requested from the timeline
	TimelineCount = 100

	// CreatedFromLayout formats the timeline lower bound
	CreatedFromLayout = "2006-01-02T15:04:05Z"
)

// Baseline is the earliest lower bound ever sent to a timeline
var Baseline = time.Date(2023, 2, 2, 11, 16, 9, 0, time.UTC)

// Group is the static identity of one messaging service
type Group struct {
	ID      string
	BaseURL string
	AppID   string
}

var registry = map[string]Group{
	"nogi": {
		ID:      "nogi",
		BaseURL: "https://api.n46.glastonr.net",
		AppID:   "jp.co.sonymusic.communication.nogizaka 2.4",
	},
	"saku": {
		ID:      "saku",
		BaseURL: "https://api.s46.glastonr.net",
		AppID:   "jp.co.sonymusic.communication.sakurazaka 2.4",
	},
	"hina": {
		ID:      "hina",
		BaseURL: "https://api.kh.glastonr.net",
		AppID:   "jp.co.sonymusic.communication.keyakizaka 2.4",
	},
}

// LookupGroup returns the registry entry for id
func LookupGroup(id string) (Group, bool) {
	g, ok := registry[id]
	return g, ok
}

// GroupIDs returns every known group id in a stable order
func GroupIDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// WithBaseURL returns a copy of g pointing at base
func (g Group) WithBaseURL(base string) Group {
	if base != "" {
		g.BaseURL = strings.TrimRight(base, "/")
	}
	return g
}

// TokenURL returns the token exchange URL of g
func (g Group) TokenURL() string {
	return g.BaseURL + TokenEndpoint
}

// TimelineURL builds the timeline request for memberID starting at since.
// The bound is never earlier than Baseline.
func (g Group) TimelineURL(memberID string, since time.Time) string {
	params := url.Values{}
	params.Set("count", fmt.Sprintf("%d", TimelineCount))
	params.Set("order", "asc")
	params.Set("created_from", CreatedFrom(since))

	path := fmt.Sprintf(TimelineEndpoint, url.PathEscape(memberID))
	return g.BaseURL + path + "?" + encodeOrdered(params, "count", "order", "created_from")
}

// CreatedFrom formats max(Baseline, since) for the created_from parameter
func CreatedFrom(since time.Time) string {
	bound := since.UTC()
	if bound.Before(Baseline) {
		bound = Baseline
	}
	return bound.Format(CreatedFromLayout)
}

// encodeOrdered encodes params in the given key order. url.Values.Encode
// sorts keys, which would reorder the query.
func encodeOrdered(params url.Values, keys ...string) string {
	var b strings.Builder
	for _, k := range keys {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params.Get(k)))
	}
	return b.String()
}
