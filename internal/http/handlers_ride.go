// README: Ride lifecycle endpoints.
package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"leaflift/internal/modules/ride"
	"leaflift/internal/types"
)

type geoPointRequest struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

func (g geoPointRequest) geoPoint() types.GeoPoint {
	return types.GeoPoint{Address: g.Address, Lat: g.Lat, Lng: g.Lng}
}

type createRideRequest struct {
	UserID          types.ID             `json:"userId"`
	Pickup          geoPointRequest      `json:"pickup"`
	Dropoff         geoPointRequest      `json:"dropoff"`
	Stops           []geoPointRequest    `json:"stops"`
	Fare            float64              `json:"fare"`
	Distance        string               `json:"distance"`
	Duration        string               `json:"duration"`
	VehicleCategory ride.VehicleCategory `json:"vehicleCategory"`
	IsPooled        bool                 `json:"isPooled"`
}

func (s *Server) handleCreateRide(c *gin.Context) {
	var req createRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.UserID == "" {
		badRequest(c, "userId is required")
		return
	}

	stops := make([]types.GeoPoint, len(req.Stops))
	for i, s := range req.Stops {
		stops[i] = s.geoPoint()
	}
	r, err := s.rides.Create(c.Request.Context(), ride.CreateCommand{
		UserID:          req.UserID,
		Pickup:          req.Pickup.geoPoint(),
		Dropoff:         req.Dropoff.geoPoint(),
		Stops:           stops,
		Fare:            req.Fare,
		Distance:        req.Distance,
		Duration:        req.Duration,
		VehicleCategory: req.VehicleCategory,
		IsPooled:        req.IsPooled,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (s *Server) handleGetRide(c *gin.Context) {
	r, err := s.rides.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) handleRidesByUser(c *gin.Context) {
	userID := types.ID(c.Param("userId"))
	if userID == "" {
		badRequest(c, "userId is required")
		return
	}
	rides, err := s.rides.ListByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rides": rides})
}

type updateStatusRequest struct {
	Status   ride.Status `json:"status"`
	DriverID types.ID    `json:"driverId"`
	Lat      float64     `json:"lat"`
	Lng      float64     `json:"lng"`
	OTP      string      `json:"otp"`
	Actor    ride.Actor  `json:"actor"`
}

// handleUpdateRideStatus is the single transition endpoint; the target status
// selects the operation and its required fields.
func (s *Server) handleUpdateRideStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	rideID := types.ID(c.Param("id"))
	ctx := c.Request.Context()

	var (
		r   *ride.Ride
		err error
	)
	switch req.Status {
	case ride.StatusAccepted:
		if req.DriverID == "" {
			badRequest(c, "driverId is required")
			return
		}
		r, err = s.rides.Accept(ctx, ride.AcceptCommand{
			RideID:         rideID,
			DriverID:       req.DriverID,
			DriverLocation: types.Point{Lat: req.Lat, Lng: req.Lng},
		})
	case ride.StatusArrived:
		r, err = s.rides.Arrive(ctx, ride.ArriveCommand{RideID: rideID})
	case ride.StatusInProgress:
		r, err = s.rides.Start(ctx, ride.StartCommand{RideID: rideID, OTP: req.OTP})
	case ride.StatusCompleted:
		r, err = s.rides.Complete(ctx, ride.CompleteCommand{RideID: rideID})
	case ride.StatusCanceled:
		actor := req.Actor
		if actor == "" {
			actor = ride.ActorRider
		}
		r, err = s.rides.Cancel(ctx, ride.CancelCommand{RideID: rideID, Actor: actor})
	default:
		badRequest(c, "unknown target status")
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) handleGetStops(c *gin.Context) {
	r, err := s.rides.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stops":            r.Stops,
		"currentStopIndex": r.CurrentStopIndex,
	})
}

func (s *Server) handleReachStop(c *gin.Context) {
	s.advanceStop(c, s.rides.ReachStop)
}

func (s *Server) handleSkipStop(c *gin.Context) {
	s.advanceStop(c, s.rides.SkipStop)
}

func (s *Server) advanceStop(c *gin.Context, fn func(ctx context.Context, rideID types.ID, index int) (*ride.Ride, error)) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		badRequest(c, "invalid stop index")
		return
	}
	r, err := fn(c.Request.Context(), types.ID(c.Param("id")), index)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) handleLiveEta(c *gin.Context) {
	ctx := c.Request.Context()
	r, err := s.rides.Get(ctx, types.ID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := s.tracking.EtaFor(ctx, r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type locationRequest struct {
	Actor ride.Actor `json:"actor"`
	Lat   float64    `json:"lat"`
	Lng   float64    `json:"lng"`
}

func (s *Server) handleUpdateLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	err := s.rides.UpdateLocation(c.Request.Context(), ride.LocationCommand{
		RideID:   types.ID(c.Param("id")),
		Actor:    req.Actor,
		Position: types.Point{Lat: req.Lat, Lng: req.Lng},
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
