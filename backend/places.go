package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/oneyeking31/local-explorer/apikeys"
	"github.com/oneyeking31/local-explorer/batch"
	"github.com/oneyeking31/local-explorer/httpclient"
)

// Places API statuses that mean the key itself is unusable
var keyFailureStatuses = map[string]bool{
	"REQUEST_DENIED":   true,
	"OVER_QUERY_LIMIT": true,
}

type PlacesQuery struct {
	Location string
	Radius   string
	Keyword  string
	Type     string
}

// Keywords splits a comma-separated keyword list
func (q PlacesQuery) Keywords() []string {
	var out []string
	for _, k := range strings.Split(q.Keyword, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// CacheKey identifies the query without the key
func (q PlacesQuery) CacheKey() string {
	return strings.Join([]string{"places", q.Location, q.Radius, strings.Join(q.Keywords(), ","), q.Type}, "|")
}

type placesEnvelope struct {
	Status       string            `json:"status"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Results      []json.RawMessage `json:"results"`
}

type placeID struct {
	PlaceID string `json:"place_id"`
}

// PlacesClient runs Nearby Search requests with the server-side maps keys
type PlacesClient struct {
	url         string
	http        *httpclient.HTTPClientWithRetries
	keys        apikeys.IAPIKeyManager
	onFailed    apikeys.OnFailedCallback
	maxKeywords int
}

func NewPlacesClient(url string, client *httpclient.HTTPClientWithRetries, keys apikeys.IAPIKeyManager, onFailed apikeys.OnFailedCallback, maxKeywords int) *PlacesClient {
	return &PlacesClient{url: url, http: client, keys: keys, onFailed: onFailed, maxKeywords: maxKeywords}
}

// HasKey reports whether any maps key is configured, including keys in backoff
func (c *PlacesClient) HasKey() bool {
	return c.keys.HasKeys(apikeys.MapsKey)
}

// Nearby answers with the upstream body for zero or one keyword. Several
// keywords are searched one at a time and merged by place_id.
func (c *PlacesClient) Nearby(ctx context.Context, q PlacesQuery) ([]byte, error) {
	keywords := q.Keywords()
	if len(keywords) > c.maxKeywords {
		return nil, fmt.Errorf("%w: at most %d keywords", errBadRequest, c.maxKeywords)
	}
	if len(keywords) <= 1 {
		return c.search(ctx, q)
	}

	chunker := batch.Chunker{MaxItems: 1}
	results, err := batch.FetchSlice(ctx, chunker, keywords, func(ctx context.Context, chunk []string) ([]placesEnvelope, error) {
		sub := q
		sub.Keyword = chunk[0]
		body, err := c.search(ctx, sub)
		if err != nil {
			return nil, err
		}
		var env placesEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("%w: failed to decode places response: %v", errUpstream, err)
		}
		return []placesEnvelope{env}, nil
	})
	if err != nil {
		return nil, err
	}
	return mergePlaces(results)
}

func mergePlaces(parts []placesEnvelope) ([]byte, error) {
	merged := placesEnvelope{Status: "ZERO_RESULTS", Results: []json.RawMessage{}}
	seen := make(map[string]bool)

	for _, part := range parts {
		if part.Status == "OK" {
			merged.Status = "OK"
		}
		for _, raw := range part.Results {
			var id placeID
			if err := json.Unmarshal(raw, &id); err == nil && id.PlaceID != "" {
				if seen[id.PlaceID] {
					continue
				}
				seen[id.PlaceID] = true
			}
			merged.Results = append(merged.Results, raw)
		}
	}
	return json.Marshal(merged)
}

func (c *PlacesClient) requestURL(q PlacesQuery, key string) (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("invalid places url: %w", err)
	}
	v := u.Query()
	v.Set("location", q.Location)
	v.Set("radius", q.Radius)
	if q.Keyword != "" {
		v.Set("keyword", q.Keyword)
	}
	if q.Type != "" {
		v.Set("type", q.Type)
	}
	v.Set("key", key)
	u.RawQuery = v.Encode()
	return u.String(), nil
}

type placesResponse struct {
	body []byte
	env  placesEnvelope
}

// search runs one Nearby Search. Key-level statuses move on to the next key;
// any other status than OK or ZERO_RESULTS fails the request so the answer
// is never cached.
func (c *PlacesClient) search(ctx context.Context, q PlacesQuery) ([]byte, error) {
	keys := c.keys.GetAvailableKeys(apikeys.MapsKey)
	resp, err := apikeys.TryWithKeys(ctx, keys, "places", func(ctx context.Context, key apikeys.APIKey) (placesResponse, bool, error) {
		u, err := c.requestURL(q, key.Key)
		if err != nil {
			return placesResponse{}, false, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return placesResponse{}, false, err
		}

		_, body, _, err := c.http.ExecuteRequest(req)
		if err != nil {
			return placesResponse{}, false, err
		}

		var env placesEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return placesResponse{}, false, fmt.Errorf("%w: failed to decode places response: %v", errUpstream, err)
		}
		if keyFailureStatuses[env.Status] {
			return placesResponse{}, false, fmt.Errorf("%w: places api %s: %s", errUpstream, env.Status, env.ErrorMessage)
		}
		return placesResponse{body: body, env: env}, true, nil
	}, c.onFailed)
	if err != nil {
		return nil, err
	}

	switch resp.env.Status {
	case "OK", "ZERO_RESULTS":
		return resp.body, nil
	default:
		return nil, fmt.Errorf("%w: places api %s: %s", errUpstream, resp.env.Status, resp.env.ErrorMessage)
	}
}
