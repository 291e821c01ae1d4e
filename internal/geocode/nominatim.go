package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/tanzawa/locationpicker/internal/geo"
)

const (
	defaultNominatimURL = "https://nominatim.openstreetmap.org"
	defaultUserAgent    = "tanzawa-location-picker"
	defaultFetchTimeout = 10 * time.Second
)

// NominatimGeocoder talks to an OSM Nominatim instance. The zero value is usable;
// missing fields are defaulted on first use.
type NominatimGeocoder struct {
	BaseURL     string
	UserAgent   string
	Language    string
	MinInterval time.Duration
	Client      *http.Client
	Cache       Cache
	Logger      zerolog.Logger

	once    sync.Once
	limiter *rate.Limiter
	group   singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the context shared by every caller waiting on one key. It is
// cancelled once the last of them stops waiting.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

type nominatimItem struct {
	Lat         string         `json:"lat"`
	Lon         string         `json:"lon"`
	DisplayName string         `json:"display_name"`
	Address     map[string]any `json:"address"`
	Error       any            `json:"error"`
}

func (g *NominatimGeocoder) init() {
	g.once.Do(func() {
		if g.Client == nil {
			g.Client = &http.Client{Timeout: defaultFetchTimeout}
		}
		if g.BaseURL == "" {
			g.BaseURL = defaultNominatimURL
		}
		g.BaseURL = strings.TrimRight(g.BaseURL, "/")
		if g.UserAgent == "" {
			g.UserAgent = defaultUserAgent
		}
		if g.MinInterval <= 0 {
			g.MinInterval = time.Second
		}
		if g.Cache == nil {
			g.Cache = NewMemoryCache(24*time.Hour, 4096)
		}
		g.limiter = rate.NewLimiter(rate.Every(g.MinInterval), 1)
		g.flights = map[string]*flight{}
	})
}

func (g *NominatimGeocoder) Reverse(ctx context.Context, p geo.Point) ([]Candidate, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("reverse geocode: %w", geo.ErrInvalidPoint)
	}
	g.init()
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(p.Lat, 'f', 7, 64))
	params.Set("lon", strconv.FormatFloat(p.Lng, 'f', 7, 64))
	key := fmt.Sprintf("reverse:%.7f,%.7f:%s", p.Lat, p.Lng, g.Language)
	return g.lookup(ctx, key, "reverse", params, parseReverse)
}

func (g *NominatimGeocoder) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Candidate{}, nil
	}
	if limit <= 0 || limit > 20 {
		limit = 5
	}
	g.init()
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	key := fmt.Sprintf("search:%s:%d:%s", strings.ToLower(query), limit, g.Language)
	return g.lookup(ctx, key, "search", params, parseSearch)
}

func (g *NominatimGeocoder) lookup(ctx context.Context, key, endpoint string, params url.Values, parse func([]byte) ([]Candidate, error)) ([]Candidate, error) {
	if cached, ok, err := g.Cache.Get(ctx, key); err != nil {
		g.Logger.Warn().Err(err).Str("key", key).Msg("geocode cache read failed")
	} else if ok {
		return cached, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := g.join(ctx, key)
	defer g.leave(key, f)
	ch := g.group.DoChan(key, func() (any, error) {
		body, err := g.fetch(f.ctx, endpoint, params)
		if err != nil {
			return nil, err
		}
		candidates, err := parse(body)
		if err != nil {
			return nil, err
		}
		if err := g.Cache.Set(f.ctx, key, candidates); err != nil {
			g.Logger.Warn().Err(err).Str("key", key).Msg("geocode cache write failed")
		}
		return candidates, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Candidate), nil
	}
}

// join registers the caller on the flight for key. The shared context outlives
// any single caller but is bounded by the client timeout.
func (g *NominatimGeocoder) join(ctx context.Context, key string) *flight {
	g.mu.Lock()
	defer g.mu.Unlock()
	f, ok := g.flights[key]
	if !ok {
		timeout := g.Client.Timeout
		if timeout <= 0 {
			timeout = defaultFetchTimeout
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		f = &flight{ctx: fctx, cancel: cancel}
		g.flights[key] = f
	}
	f.waiters++
	return f
}

func (g *NominatimGeocoder) leave(key string, f *flight) {
	g.mu.Lock()
	defer g.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if g.flights[key] == f {
		delete(g.flights, key)
	}
	// a cancelled call must not be joined by the next caller
	g.group.Forget(key)
}

func (g *NominatimGeocoder) fetch(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")
	if g.Language != "" {
		params.Set("accept-language", g.Language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/"+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", g.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("nominatim http error: %s", resp.Status)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("nominatim decode: %w", err)
	}
	return raw, nil
}

func parseReverse(body []byte) ([]Candidate, error) {
	var item nominatimItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("nominatim decode: %w", err)
	}
	// "Unable to geocode" comes back as 200 with an error member
	if item.Error != nil {
		return []Candidate{}, nil
	}
	c, err := toCandidate(item)
	if err != nil {
		return nil, err
	}
	return []Candidate{c}, nil
}

func parseSearch(body []byte) ([]Candidate, error) {
	var items []nominatimItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("nominatim decode: %w", err)
	}
	out := make([]Candidate, 0, len(items))
	for _, item := range items {
		c, err := toCandidate(item)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func toCandidate(item nominatimItem) (Candidate, error) {
	lat, err := strconv.ParseFloat(item.Lat, 64)
	if err != nil {
		return Candidate{}, err
	}
	lon, err := strconv.ParseFloat(item.Lon, 64)
	if err != nil {
		return Candidate{}, err
	}
	return Candidate{
		Point:       geo.Point{Lat: lat, Lng: lon},
		DisplayName: item.DisplayName,
		Address:     stringValues(item.Address),
	}, nil
}

// stringValues keeps only string members; providers occasionally nest objects.
func stringValues(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
