// Package ipenrich implements the background IP Enrichment worker (spec
// §4.10): records that a user connected from an IP, and lazily resolves
// the IP against a geo-IP HTTP endpoint the first time it is seen.
package ipenrich

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jycamier/chatfanout/backend/internal/chatmodel"
	"github.com/jycamier/chatfanout/backend/internal/store"
)

// HTTPEnricher calls a geo-IP HTTP endpoint templated by one %s (the ip
// literal) and parses its JSON response (spec §6, "HTTP collaborators").
// A blank URL template means enrichment is disabled: Enrich then always
// returns (nil, nil), and the store keeps a bare record for the IP.
type HTTPEnricher struct {
	urlTemplate string
	client      *http.Client
}

var _ store.IPEnricher = (*HTTPEnricher)(nil)

func NewHTTPEnricher(urlTemplate string) *HTTPEnricher {
	return &HTTPEnricher{
		urlTemplate: urlTemplate,
		client:      &http.Client{Timeout: 5 * time.Second},
	}
}

type geoIPResponse struct {
	Status      string `json:"status"`
	ISP         string `json:"isp"`
	Country     string `json:"country"`
	CountryName string `json:"countryName"`
	RegionName  string `json:"regionName"`
	City        string `json:"city"`
	CountryCode string `json:"countryCode"`
}

// Enrich fetches geo-IP data for ip. Non-success responses, transport
// errors, and malformed JSON are all tolerated: Enrich returns (nil, nil)
// in every such case so the caller falls back to a bare record (spec §4.10:
// "all errors are logged and swallowed").
func (e *HTTPEnricher) Enrich(ctx context.Context, ip string) (*chatmodel.IPAddress, error) {
	if e.urlTemplate == "" {
		return nil, nil
	}

	url := strings.Replace(e.urlTemplate, "%s", ip, 1)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		slog.Warn("ipenrich: build request failed", "ip", ip, "error", err)
		return nil, nil
	}

	resp, err := e.client.Do(req)
	if err != nil {
		slog.Warn("ipenrich: request failed", "ip", ip, "error", err)
		return nil, nil
	}
	defer resp.Body.Close()

	var body geoIPResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		slog.Warn("ipenrich: decode response failed", "ip", ip, "error", err)
		return nil, nil
	}

	if body.Status != "success" {
		slog.Info("ipenrich: provider reported non-success", "ip", ip, "status", body.Status)
		return nil, nil
	}

	country := body.Country
	if country == "" {
		country = body.CountryName
	}

	return &chatmodel.IPAddress{
		IP:          ip,
		ISP:         body.ISP,
		Country:     country,
		CountryCode: body.CountryCode,
		Region:      body.RegionName,
		City:        body.City,
	}, nil
}

// Worker records a connection's (user, ip) pair, resolving and caching the
// IP's geo data on first sighting. It runs off the connection's hot path
// (spec §5: "must never affect the socket").
type Worker struct {
	store    store.Store
	enricher store.IPEnricher
}

func New(st store.Store, enricher store.IPEnricher) *Worker {
	return &Worker{store: st, enricher: enricher}
}

// Track fetches-or-creates the IP record and records the (user, ip) join
// event. All failures are logged and swallowed.
func (w *Worker) Track(ctx context.Context, userID uuid.UUID, ip string) {
	if ip == "" {
		return
	}

	if _, err := w.store.GetOrCreateIP(ctx, ip, w.enricher); err != nil {
		slog.Warn("ipenrich: get-or-create ip failed", "ip", ip, "error", err)
		return
	}

	if err := w.store.RecordUserJoined(ctx, chatmodel.UserJoinedInfo{UserID: userID, IP: ip}); err != nil {
		slog.Warn("ipenrich: record user joined failed", "user_id", userID, "ip", ip, "error", err)
	}
}

// TrackAsync runs Track in its own goroutine so the caller's socket loop
// never blocks on it.
func (w *Worker) TrackAsync(ctx context.Context, userID uuid.UUID, ip string) {
	go func() {
		ctx, cancel := context.WithTimeout(detach(ctx), 10*time.Second)
		defer cancel()
		w.Track(ctx, userID, ip)
	}()
}

// detach strips cancellation from ctx (the request/connection context may
// already be gone by the time the background goroutine runs) while
// preserving any values it carries, matching the teacher's background-task
// convention of decoupling lifetime from the triggering request.
func detach(ctx context.Context) context.Context {
	return detachedContext{ctx}
}

type detachedContext struct{ parent context.Context }

func (detachedContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (detachedContext) Done() <-chan struct{}       { return nil }
func (detachedContext) Err() error                  { return nil }
func (d detachedContext) Value(key any) any         { return d.parent.Value(key) }
