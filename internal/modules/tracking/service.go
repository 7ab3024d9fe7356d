// README: Live ETA tracking loop. Every interval the sweep refreshes the ETA
// of each active ride, pushes it to subscribers and raises a delay alert when
// the ride has slipped past its original ETA by more than the threshold.
package tracking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"leaflift/internal/config"
	"leaflift/internal/geo"
	"leaflift/internal/maps"
	"leaflift/internal/modules/notification"
	"leaflift/internal/modules/ride"
	"leaflift/internal/types"
)

// RideStore is the slice of ride persistence the tracker needs.
type RideStore interface {
	ListByStatus(ctx context.Context, statuses ...ride.Status) ([]*ride.Ride, error)
	UpdateEta(ctx context.Context, id types.ID, etaToPickup, etaToDropoff string) error
	MarkDelayAlert(ctx context.Context, id types.ID, at time.Time, cooldown time.Duration) (bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID types.ID, title, message string, typ notification.Type) error
}

type Dispatcher interface {
	EmitToRide(rideID types.ID, event string, payload any)
}

type Service struct {
	rides      RideStore
	provider   maps.Provider
	notifier   Notifier
	dispatcher Dispatcher
	cfg        config.TrackingConfig
	log        *zap.Logger
	now        func() time.Time
}

func NewService(rides RideStore, provider maps.Provider, notifier Notifier, dispatcher Dispatcher, cfg config.TrackingConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		rides:      rides,
		provider:   provider,
		notifier:   notifier,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// Run sweeps on the configured interval until the context is canceled. The
// sweep runs inline, so a slow sweep delays the next tick instead of
// overlapping with it.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Info("tracking loop started", zap.Duration("interval", s.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("tracking loop stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep refreshes every active ride once.
func (s *Service) Sweep(ctx context.Context) {
	rides, err := s.rides.ListByStatus(ctx, ride.StatusAccepted, ride.StatusInProgress)
	if err != nil {
		s.log.Error("tracking sweep: listing active rides", zap.Error(err))
		return
	}
	if len(rides) == 0 {
		return
	}

	sem := make(chan struct{}, s.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	for _, r := range rides {
		wg.Add(1)
		sem <- struct{}{}
		go func(r *ride.Ride) {
			defer wg.Done()
			defer func() { <-sem }()
			s.track(ctx, r)
		}(r)
	}
	wg.Wait()
}

// EtaResult is a point-in-time ETA snapshot for one ride.
type EtaResult struct {
	RideID     types.ID `json:"rideId"`
	Status     string   `json:"status"`
	EtaMinutes int      `json:"etaMinutes"`
	EtaText    string   `json:"etaText"`
	// Delayed reports whether the ride is currently past its original ETA by
	// more than the threshold, regardless of alert cooldown.
	Delayed      bool `json:"delayed"`
	DelayMinutes int  `json:"delayMinutes"`
}

// EtaFor computes the current ETA for a ride. ACCEPTED and ARRIVED rides are
// measured to the pickup, IN_PROGRESS rides to the dropoff.
func (s *Service) EtaFor(ctx context.Context, r *ride.Ride) (*EtaResult, error) {
	target, ok := r.EtaTarget()
	if !ok {
		return nil, fmt.Errorf("ride %s is %s and has no live eta", r.ID, r.Status)
	}

	origin := r.Pickup.Point()
	if r.DriverLocation != nil {
		origin = types.Point{Lat: r.DriverLocation.Lat, Lng: r.DriverLocation.Lng}
	}

	minutes := s.etaMinutes(ctx, origin, target)
	res := &EtaResult{
		RideID:     r.ID,
		Status:     string(r.Status),
		EtaMinutes: minutes,
		EtaText:    fmt.Sprintf("%d min", minutes),
	}
	if r.OriginalEtaMinutes != nil {
		delay := minutes - *r.OriginalEtaMinutes
		if delay >= s.cfg.DelayThreshold {
			res.Delayed = true
			res.DelayMinutes = delay
		}
	}
	return res, nil
}

func (s *Service) track(ctx context.Context, r *ride.Ride) {
	res, err := s.EtaFor(ctx, r)
	if err != nil {
		s.log.Warn("tracking: eta unavailable", zap.String("ride_id", string(r.ID)), zap.Error(err))
		return
	}

	etaToPickup, etaToDropoff := r.EtaToPickup, r.EtaToDropoff
	if r.Status == ride.StatusInProgress {
		etaToDropoff = res.EtaText
	} else {
		etaToPickup = res.EtaText
	}
	if err := s.rides.UpdateEta(ctx, r.ID, etaToPickup, etaToDropoff); err != nil {
		s.log.Error("tracking: eta write failed", zap.String("ride_id", string(r.ID)), zap.Error(err))
	}

	if s.dispatcher != nil {
		s.dispatcher.EmitToRide(r.ID, "ride:live-eta", res)
	}

	if r.OriginalEtaMinutes == nil {
		return
	}
	now := s.now().UTC()
	if !shouldSendDelayAlert(res.EtaMinutes, *r.OriginalEtaMinutes, r.LastDelayAlertAt, now, s.cfg.DelayThreshold, s.cfg.Cooldown) {
		return
	}

	// The guarded write decides which sweep owns the alert when several race.
	claimed, err := s.rides.MarkDelayAlert(ctx, r.ID, now, s.cfg.Cooldown)
	if err != nil {
		s.log.Error("tracking: delay alert claim failed", zap.String("ride_id", string(r.ID)), zap.Error(err))
		return
	}
	if !claimed {
		return
	}

	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, r.UserID, "Traffic Delay Detected",
			fmt.Sprintf("Your ride is delayed by ~%d min due to traffic. Updated ETA: %d min.", res.DelayMinutes, res.EtaMinutes),
			notification.TypeDelayAlert)
	}
	if s.dispatcher != nil {
		s.dispatcher.EmitToRide(r.ID, "ride:delay-alert", map[string]any{
			"rideId":       r.ID,
			"delayMinutes": res.DelayMinutes,
			"etaMinutes":   res.EtaMinutes,
		})
	}
	s.log.Info("delay alert sent",
		zap.String("ride_id", string(r.ID)),
		zap.Int("delay_min", res.DelayMinutes),
		zap.Int("eta_min", res.EtaMinutes))
}

// shouldSendDelayAlert applies the delay threshold and the per-ride cooldown.
func shouldSendDelayAlert(currentEtaMin, originalEtaMin int, lastAlertAt *time.Time, now time.Time, thresholdMin int, cooldown time.Duration) bool {
	if currentEtaMin-originalEtaMin < thresholdMin {
		return false
	}
	if lastAlertAt != nil && now.Sub(*lastAlertAt) < cooldown {
		return false
	}
	return true
}

func (s *Service) etaMinutes(ctx context.Context, origin, dest types.Point) int {
	if s.provider != nil {
		legs, err := s.provider.Directions(ctx, origin, dest, nil)
		if err == nil && len(legs) > 0 && legs[0].DurationSeconds > 0 {
			minutes := (legs[0].DurationSeconds + 30) / 60
			if minutes < 1 {
				minutes = 1
			}
			return minutes
		}
		if err != nil {
			s.log.Warn("directions failed, using haversine fallback", zap.Error(err))
		}
	}
	return geo.FallbackEtaMinutes(geo.DistanceKm(origin, dest), geo.DefaultAvgSpeedKmh)
}
