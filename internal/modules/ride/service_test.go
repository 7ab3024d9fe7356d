package ride

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"leaflift/internal/modules/notification"
	"leaflift/internal/types"
)

// memStore is an in-memory Store with the same guard semantics as the
// PostgreSQL implementation.
type memStore struct {
	mu    sync.Mutex
	rides map[types.ID]*Ride
}

func newMemStore() *memStore {
	return &memStore{rides: make(map[types.ID]*Ride)}
}

func (m *memStore) Create(_ context.Context, r *Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, id types.ID) (*Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	cp.Stops = append([]Stop(nil), r.Stops...)
	return &cp, nil
}

func (m *memStore) ListByUser(_ context.Context, userID types.ID) ([]*Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Ride
	for _, r := range m.rides {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ListByStatus(_ context.Context, statuses ...Status) ([]*Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Ride
	for _, r := range m.rides {
		for _, st := range statuses {
			if r.Status == st {
				cp := *r
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int, driverID *types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok || r.Status != from || r.StatusVersion != version {
		return false, nil
	}
	r.Status = to
	r.StatusVersion++
	if driverID != nil {
		d := *driverID
		r.DriverID = &d
	}
	if to == StatusInProgress {
		r.OTPVerified = true
	}
	return true, nil
}

func (m *memStore) SetOriginalEta(_ context.Context, id types.ID, minutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return ErrNotFound
	}
	if r.OriginalEtaMinutes == nil {
		r.OriginalEtaMinutes = &minutes
	}
	return nil
}

func (m *memStore) UpdateStops(_ context.Context, id types.ID, stops []Stop, currentIndex, version int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok || r.StatusVersion != version {
		return false, nil
	}
	r.Stops = append([]Stop(nil), stops...)
	r.CurrentStopIndex = currentIndex
	r.StatusVersion++
	return true, nil
}

func (m *memStore) UpdateLocation(_ context.Context, id types.ID, actor Actor, loc Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return ErrNotFound
	}
	cp := loc
	if actor == ActorDriver {
		r.DriverLocation = &cp
	} else {
		r.RiderLocation = &cp
	}
	return nil
}

func (m *memStore) UpdateEta(_ context.Context, id types.ID, etaToPickup, etaToDropoff string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return ErrNotFound
	}
	r.EtaToPickup = etaToPickup
	r.EtaToDropoff = etaToDropoff
	return nil
}

func (m *memStore) MarkDelayAlert(_ context.Context, id types.ID, at time.Time, cooldown time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return false, ErrNotFound
	}
	if r.LastDelayAlertAt != nil && !r.LastDelayAlertAt.Before(at.Add(-cooldown)) {
		return false, nil
	}
	cp := at
	r.LastDelayAlertAt = &cp
	return true, nil
}

type recordedNotification struct {
	UserID  types.ID
	Title   string
	Message string
	Type    notification.Type
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []recordedNotification
}

func (n *stubNotifier) Notify(_ context.Context, userID types.ID, title, message string, typ notification.Type) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, recordedNotification{UserID: userID, Title: title, Message: message, Type: typ})
	return nil
}

type recordedEmit struct {
	RideID  types.ID
	Event   string
	Payload any
}

type stubDispatcher struct {
	mu     sync.Mutex
	events []recordedEmit
}

func (d *stubDispatcher) EmitToRide(rideID types.ID, event string, payload any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, recordedEmit{RideID: rideID, Event: event, Payload: payload})
}

func (d *stubDispatcher) names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.events))
	for i, e := range d.events {
		out[i] = e.Event
	}
	return out
}

func newTestService() (*Service, *memStore, *stubNotifier, *stubDispatcher) {
	store := newMemStore()
	notifier := &stubNotifier{}
	dispatcher := &stubDispatcher{}
	return NewService(store, nil, notifier, dispatcher, nil), store, notifier, dispatcher
}

var (
	kochi    = types.GeoPoint{Address: "Kochi", Lat: 9.9312, Lng: 76.2673}
	kottayam = types.GeoPoint{Address: "Kottayam", Lat: 9.5916, Lng: 76.5222}
)

func createRide(t *testing.T, svc *Service, stops ...types.GeoPoint) *Ride {
	t.Helper()
	r, err := svc.Create(context.Background(), CreateCommand{
		UserID:  "rider-1",
		Pickup:  kochi,
		Dropoff: kottayam,
		Stops:   stops,
		Fare:    180,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return r
}

func accept(t *testing.T, svc *Service, id types.ID) *Ride {
	t.Helper()
	r, err := svc.Accept(context.Background(), AcceptCommand{
		RideID:         id,
		DriverID:       "driver-1",
		DriverLocation: types.Point{Lat: 9.95, Lng: 76.30},
	})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	return r
}

func startRide(t *testing.T, svc *Service, store *memStore, id types.ID) *Ride {
	t.Helper()
	accept(t, svc, id)
	if _, err := svc.Arrive(context.Background(), ArriveCommand{RideID: id}); err != nil {
		t.Fatalf("Arrive: %v", err)
	}
	otp := store.rides[id].OTP
	r, err := svc.Start(context.Background(), StartCommand{RideID: id, OTP: otp})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return r
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusSearching, StatusAccepted, true},
		{StatusSearching, StatusCanceled, true},
		{StatusSearching, StatusCompleted, false},
		{StatusSearching, StatusInProgress, false},
		{StatusAccepted, StatusArrived, true},
		{StatusAccepted, StatusCompleted, false},
		{StatusArrived, StatusInProgress, true},
		{StatusArrived, StatusAccepted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCanceled, true},
		{StatusCompleted, StatusCanceled, false},
		{StatusCanceled, StatusAccepted, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCreateDefaults(t *testing.T) {
	svc, store, _, _ := newTestService()
	r := createRide(t, svc, types.GeoPoint{Address: "Aluva", Lat: 10.1, Lng: 76.35})

	if r.Status != StatusSearching {
		t.Errorf("status = %s, want %s", r.Status, StatusSearching)
	}
	if r.VehicleCategory != VehicleCar {
		t.Errorf("vehicleCategory = %s, want %s", r.VehicleCategory, VehicleCar)
	}
	if len(r.OTP) != 4 {
		t.Fatalf("otp = %q, want 4 digits", r.OTP)
	}
	if _, err := strconv.Atoi(r.OTP); err != nil {
		t.Errorf("otp %q is not numeric", r.OTP)
	}
	if len(r.Stops) != 1 || r.Stops[0].Status != StopPending || r.Stops[0].Order != 0 {
		t.Errorf("stops = %+v, want one pending stop at order 0", r.Stops)
	}
	if r.CO2Emissions <= 0 {
		t.Errorf("co2Emissions = %f, want > 0", r.CO2Emissions)
	}
	if _, ok := store.rides[r.ID]; !ok {
		t.Error("ride was not persisted")
	}
}

func TestCreateRequiresUser(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.Create(context.Background(), CreateCommand{Pickup: kochi, Dropoff: kottayam})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("err = %v, want ErrBadRequest", err)
	}
}

func TestAcceptCapturesOriginalEtaOnce(t *testing.T) {
	svc, store, notifier, dispatcher := newTestService()
	r := createRide(t, svc)

	got := accept(t, svc, r.ID)
	if got.Status != StatusAccepted {
		t.Fatalf("status = %s, want %s", got.Status, StatusAccepted)
	}
	if got.DriverID == nil || *got.DriverID != "driver-1" {
		t.Fatalf("driverId = %v, want driver-1", got.DriverID)
	}
	if got.OriginalEtaMinutes == nil || *got.OriginalEtaMinutes < 1 {
		t.Fatalf("originalEtaMinutes = %v, want >= 1", got.OriginalEtaMinutes)
	}
	first := *got.OriginalEtaMinutes

	// A later baseline write must not overwrite the captured value.
	if err := store.SetOriginalEta(context.Background(), r.ID, first+99); err != nil {
		t.Fatalf("SetOriginalEta: %v", err)
	}
	after, _ := store.Get(context.Background(), r.ID)
	if *after.OriginalEtaMinutes != first {
		t.Errorf("originalEtaMinutes = %d, want %d (first write wins)", *after.OriginalEtaMinutes, first)
	}

	if len(notifier.sent) != 1 || notifier.sent[0].Title != "Driver Found" {
		t.Errorf("notifications = %+v, want one Driver Found", notifier.sent)
	}
	names := dispatcher.names()
	if len(names) != 1 || names[0] != "ride:accepted" {
		t.Errorf("events = %v, want [ride:accepted]", names)
	}
}

func TestIllegalTransitionLeavesRideUnchanged(t *testing.T) {
	svc, store, _, _ := newTestService()
	r := createRide(t, svc)

	_, err := svc.Complete(context.Background(), CompleteCommand{RideID: r.ID})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("err %v is not a TransitionError", err)
	}
	if te.From != StatusSearching || te.To != StatusCompleted {
		t.Errorf("TransitionError = %s -> %s, want SEARCHING -> COMPLETED", te.From, te.To)
	}

	after, _ := store.Get(context.Background(), r.ID)
	if after.Status != StatusSearching || after.StatusVersion != r.StatusVersion {
		t.Errorf("ride changed after rejected transition: %+v", after)
	}
}

func TestStartRejectsWrongOTP(t *testing.T) {
	svc, store, _, _ := newTestService()
	r := createRide(t, svc)
	accept(t, svc, r.ID)
	if _, err := svc.Arrive(context.Background(), ArriveCommand{RideID: r.ID}); err != nil {
		t.Fatalf("Arrive: %v", err)
	}

	before, _ := store.Get(context.Background(), r.ID)
	_, err := svc.Start(context.Background(), StartCommand{RideID: r.ID, OTP: "no"})
	if !errors.Is(err, ErrOTPMismatch) {
		t.Fatalf("err = %v, want ErrOTPMismatch", err)
	}
	after, _ := store.Get(context.Background(), r.ID)
	if after.Status != before.Status || after.StatusVersion != before.StatusVersion {
		t.Errorf("ride changed after OTP mismatch: %+v", after)
	}

	// Correct OTP still works after a failed attempt.
	got, err := svc.Start(context.Background(), StartCommand{RideID: r.ID, OTP: store.rides[r.ID].OTP})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got.Status != StatusInProgress || !got.OTPVerified {
		t.Errorf("ride = %+v, want IN_PROGRESS with otp verified", got)
	}
}

func TestCancelFromEveryNonTerminalState(t *testing.T) {
	advance := map[string]func(t *testing.T, svc *Service, store *memStore, id types.ID){
		"searching": func(t *testing.T, svc *Service, store *memStore, id types.ID) {},
		"accepted": func(t *testing.T, svc *Service, store *memStore, id types.ID) {
			accept(t, svc, id)
		},
		"arrived": func(t *testing.T, svc *Service, store *memStore, id types.ID) {
			accept(t, svc, id)
			if _, err := svc.Arrive(context.Background(), ArriveCommand{RideID: id}); err != nil {
				t.Fatalf("Arrive: %v", err)
			}
		},
		"in progress": func(t *testing.T, svc *Service, store *memStore, id types.ID) {
			startRide(t, svc, store, id)
		},
	}
	for name, fn := range advance {
		t.Run(name, func(t *testing.T) {
			svc, store, _, _ := newTestService()
			r := createRide(t, svc)
			fn(t, svc, store, r.ID)
			got, err := svc.Cancel(context.Background(), CancelCommand{RideID: r.ID, Actor: ActorRider})
			if err != nil {
				t.Fatalf("Cancel: %v", err)
			}
			if got.Status != StatusCanceled {
				t.Errorf("status = %s, want %s", got.Status, StatusCanceled)
			}
		})
	}
}

func TestCancelByDriverNotifiesRider(t *testing.T) {
	svc, _, notifier, _ := newTestService()
	r := createRide(t, svc)
	accept(t, svc, r.ID)

	if _, err := svc.Cancel(context.Background(), CancelCommand{RideID: r.ID, Actor: ActorDriver}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	var canceled int
	for _, n := range notifier.sent {
		if n.Title == "Ride Canceled" {
			canceled++
			if n.UserID != r.UserID {
				t.Errorf("notification went to %s, want %s", n.UserID, r.UserID)
			}
		}
	}
	if canceled != 1 {
		t.Errorf("cancel notifications = %d, want 1", canceled)
	}
}

func TestReachStopAdvancesCursor(t *testing.T) {
	svc, store, _, dispatcher := newTestService()
	r := createRide(t, svc,
		types.GeoPoint{Address: "Stop A", Lat: 9.8, Lng: 76.3},
		types.GeoPoint{Address: "Stop B", Lat: 9.7, Lng: 76.4},
	)
	startRide(t, svc, store, r.ID)

	got, err := svc.ReachStop(context.Background(), r.ID, 0)
	if err != nil {
		t.Fatalf("ReachStop: %v", err)
	}
	if got.CurrentStopIndex != 1 {
		t.Errorf("currentStopIndex = %d, want 1", got.CurrentStopIndex)
	}
	if got.Stops[0].Status != StopReached || got.Stops[0].ReachedAt == nil {
		t.Errorf("stop 0 = %+v, want REACHED with reachedAt", got.Stops[0])
	}
	if got.Stops[1].Status != StopPending {
		t.Errorf("stop 1 = %+v, want still PENDING", got.Stops[1])
	}

	found := false
	for _, e := range dispatcher.names() {
		if e == "ride:stop-update" {
			found = true
		}
	}
	if !found {
		t.Errorf("events = %v, want ride:stop-update", dispatcher.names())
	}
}

func TestSkipStop(t *testing.T) {
	svc, store, _, _ := newTestService()
	r := createRide(t, svc, types.GeoPoint{Address: "Stop A", Lat: 9.8, Lng: 76.3})
	startRide(t, svc, store, r.ID)

	got, err := svc.SkipStop(context.Background(), r.ID, 0)
	if err != nil {
		t.Fatalf("SkipStop: %v", err)
	}
	if got.Stops[0].Status != StopSkipped || got.Stops[0].ReachedAt != nil {
		t.Errorf("stop 0 = %+v, want SKIPPED without reachedAt", got.Stops[0])
	}
	if got.Status != StatusInProgress {
		t.Errorf("status = %s, want %s (last stop does not complete the ride)", got.Status, StatusInProgress)
	}
}

func TestStopProgressionRejectsNonCurrentIndex(t *testing.T) {
	svc, store, _, _ := newTestService()
	r := createRide(t, svc,
		types.GeoPoint{Address: "Stop A", Lat: 9.8, Lng: 76.3},
		types.GeoPoint{Address: "Stop B", Lat: 9.7, Lng: 76.4},
	)
	startRide(t, svc, store, r.ID)

	if _, err := svc.ReachStop(context.Background(), r.ID, 1); !errors.Is(err, ErrStopNotCurrent) {
		t.Errorf("index 1: err = %v, want ErrStopNotCurrent", err)
	}
	if _, err := svc.ReachStop(context.Background(), r.ID, 5); !errors.Is(err, ErrStopNotCurrent) {
		t.Errorf("index 5: err = %v, want ErrStopNotCurrent", err)
	}
}

func TestStopProgressionRequiresInProgress(t *testing.T) {
	svc, _, _, _ := newTestService()
	r := createRide(t, svc, types.GeoPoint{Address: "Stop A", Lat: 9.8, Lng: 76.3})
	accept(t, svc, r.ID)

	if _, err := svc.ReachStop(context.Background(), r.ID, 0); !errors.Is(err, ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestUpdateLocation(t *testing.T) {
	svc, store, _, dispatcher := newTestService()
	r := createRide(t, svc)
	accept(t, svc, r.ID)

	err := svc.UpdateLocation(context.Background(), LocationCommand{
		RideID:   r.ID,
		Actor:    ActorDriver,
		Position: types.Point{Lat: 9.94, Lng: 76.29},
	})
	if err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	got, _ := store.Get(context.Background(), r.ID)
	if got.DriverLocation == nil || got.DriverLocation.Lat != 9.94 {
		t.Fatalf("driverLocation = %+v, want lat 9.94", got.DriverLocation)
	}

	found := false
	for _, e := range dispatcher.names() {
		if e == "driver:location" {
			found = true
		}
	}
	if !found {
		t.Errorf("events = %v, want driver:location", dispatcher.names())
	}

	// Rider updates are stored but not broadcast.
	before := len(dispatcher.names())
	if err := svc.UpdateLocation(context.Background(), LocationCommand{
		RideID:   r.ID,
		Actor:    ActorRider,
		Position: types.Point{Lat: 9.93, Lng: 76.27},
	}); err != nil {
		t.Fatalf("UpdateLocation rider: %v", err)
	}
	if len(dispatcher.names()) != before {
		t.Errorf("rider location update emitted an event")
	}
}

func TestUpdateLocationRejectsTerminalRide(t *testing.T) {
	svc, _, _, _ := newTestService()
	r := createRide(t, svc)
	if _, err := svc.Cancel(context.Background(), CancelCommand{RideID: r.ID, Actor: ActorRider}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	err := svc.UpdateLocation(context.Background(), LocationCommand{
		RideID:   r.ID,
		Actor:    ActorDriver,
		Position: types.Point{Lat: 9.94, Lng: 76.29},
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

// racingStore simulates a concurrent writer that claims the status row
// between the service's read and its guarded write.
type racingStore struct {
	*memStore
}

func (r *racingStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, driverID *types.ID) (bool, error) {
	other := types.ID("driver-other")
	if ok, err := r.memStore.UpdateStatus(ctx, id, from, to, version, &other); err != nil || !ok {
		return ok, err
	}
	return false, nil
}

func TestAcceptLostRaceIsConflict(t *testing.T) {
	store := newMemStore()
	svc := NewService(&racingStore{memStore: store}, nil, nil, nil, nil)
	r := createRide(t, svc)

	_, err := svc.Accept(context.Background(), AcceptCommand{
		RideID:         r.ID,
		DriverID:       "driver-2",
		DriverLocation: types.Point{Lat: 9.95, Lng: 76.30},
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	after, _ := store.Get(context.Background(), r.ID)
	if after.DriverID == nil || *after.DriverID != "driver-other" {
		t.Errorf("driverId = %v, want the winning writer", after.DriverID)
	}
}
