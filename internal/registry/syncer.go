package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"parking-access-backend/config"
	"parking-access-backend/internal/metrics"
	"parking-access-backend/internal/model"
	"parking-access-backend/internal/plate"
)

// VehicleWriter persists vehicles pulled from upstream.
type VehicleWriter interface {
	UpsertVehicles(ctx context.Context, vehicles []model.Vehicle) (int, error)
}

// Syncer periodically copies the upstream vehicle registry into the local
// read model.
type Syncer struct {
	cfg    config.RegistrySync
	store  VehicleWriter
	client *http.Client
	log    *zap.Logger
}

// NewSyncer creates a Syncer. An invalid proxy URL is logged and ignored.
func NewSyncer(cfg config.RegistrySync, store VehicleWriter, log *zap.Logger) *Syncer {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Warn("invalid proxy URL, registry sync will not use a proxy", zap.String("proxy", cfg.HTTPProxy), zap.Error(err))
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &Syncer{
		cfg:   cfg,
		store: store,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		log: log.With(zap.String("component", "registry_sync")),
	}
}

// Run syncs once and then on every interval until ctx is done.
func (s *Syncer) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info("registry sync is disabled, not starting")
		return
	}
	s.log.Info("starting registry sync", zap.Duration("interval", s.cfg.Interval))

	s.syncAndLog(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("registry sync shutting down")
			return
		case <-timer.C:
			s.syncAndLog(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

func (s *Syncer) syncAndLog(ctx context.Context) {
	n, err := s.SyncOnce(ctx)
	if err != nil {
		s.log.Error("registry sync cycle failed", zap.Error(err))
		return
	}
	s.log.Info("registry sync cycle finished", zap.Int("vehicles", n))
}

// SyncOnce pulls every page from upstream and upserts the vehicles with a
// valid plate. It returns how many vehicles were written.
func (s *Syncer) SyncOnce(ctx context.Context) (int, error) {
	var items []vehicleItem
	total := 1
	pageSize := s.cfg.PageSize
	var fetchErr error
	for page := 1; (page-1)*pageSize < total; page++ {
		resp, err := s.fetchPage(ctx, page)
		if err != nil {
			s.log.Warn("error fetching vehicle page", zap.Int("page", page), zap.Error(err))
			fetchErr = err
			break
		}
		if resp.Total == 0 || len(resp.Data) == 0 {
			break
		}
		total = resp.Total
		items = append(items, resp.Data...)
		s.log.Debug("fetched vehicle page", zap.Int("page", page), zap.Int("items", len(items)), zap.Int("total", total))
	}

	// A failed fetch with nothing retrieved leaves the read model untouched.
	if fetchErr != nil && len(items) == 0 {
		return 0, fmt.Errorf("sync aborted: %w", fetchErr)
	}

	now := time.Now().UTC()
	vehicles := make([]model.Vehicle, 0, len(items))
	seen := make(map[string]int64, len(items))
	for _, item := range items {
		normalized, err := plate.Normalize(item.Plate)
		if err != nil {
			s.log.Warn("skipping vehicle with invalid plate", zap.Int64("vehicle_id", item.ID), zap.Error(err))
			continue
		}
		if other, dup := seen[normalized]; dup {
			s.log.Warn("skipping vehicle with duplicate plate",
				zap.Int64("vehicle_id", item.ID), zap.Int64("first_vehicle_id", other), zap.String("placa", normalized))
			continue
		}
		seen[normalized] = item.ID
		vehicles = append(vehicles, model.Vehicle{
			ID:       item.ID,
			Plate:    normalized,
			Color:    item.Color,
			Model:    item.Model,
			Brand:    item.Brand,
			Type:     item.Type,
			OwnerID:  item.OwnerID,
			SyncedAt: now,
		})
	}

	n, err := s.store.UpsertVehicles(ctx, vehicles)
	if err != nil {
		return 0, err
	}
	metrics.RegistrySyncedVehiclesTotal.Add(float64(n))
	return n, nil
}

func (s *Syncer) fetchPage(ctx context.Context, page int) (*vehiclePage, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid registry url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(s.cfg.PageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range s.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var vp vehiclePage
	if err := json.Unmarshal(body, &vp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vehicle page: %w", err)
	}
	if !vp.Success {
		return nil, fmt.Errorf("upstream reported failure: %s", vp.Error)
	}
	return &vp, nil
}
