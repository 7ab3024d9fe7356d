// README: Driver route publishing and rider/driver matching endpoints.
package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"leaflift/internal/modules/matching"
	"leaflift/internal/types"
)

type publishRouteRequest struct {
	DriverID         types.ID                  `json:"driverId"`
	Source           geoPointRequest           `json:"source"`
	Destination      geoPointRequest           `json:"destination"`
	GenderPreference matching.GenderPreference `json:"genderPreference"`
}

func (s *Server) handlePublishRoute(c *gin.Context) {
	var req publishRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.DriverID == "" {
		badRequest(c, "driverId is required")
		return
	}
	route, err := s.matching.PublishRoute(c.Request.Context(), matching.PublishRouteCommand{
		DriverID:         req.DriverID,
		Source:           req.Source.geoPoint(),
		Destination:      req.Destination.geoPoint(),
		GenderPreference: req.GenderPreference,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, route)
}

func (s *Server) handleDeactivateRoute(c *gin.Context) {
	driverID := types.ID(c.Param("driverId"))
	if driverID == "" {
		badRequest(c, "driverId is required")
		return
	}
	if err := s.matching.DeactivateRoute(c.Request.Context(), driverID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleMatchDriver(c *gin.Context) {
	riderID := types.ID(c.Query("userId"))
	if riderID == "" {
		badRequest(c, "userId is required")
		return
	}
	pickup, ok := parsePoint(c.Query("pickupLat"), c.Query("pickupLng"))
	if !ok {
		badRequest(c, "pickupLat and pickupLng are required")
		return
	}
	dropoff, ok := parsePoint(c.Query("dropoffLat"), c.Query("dropoffLng"))
	if !ok {
		badRequest(c, "dropoffLat and dropoffLng are required")
		return
	}
	radius, _ := strconv.ParseFloat(c.Query("radius"), 64)

	matches, err := s.matching.FindNearbyDrivers(c.Request.Context(), matching.MatchQuery{
		RiderID:          riderID,
		Pickup:           pickup,
		Dropoff:          dropoff,
		RiderGender:      c.Query("riderGender"),
		GenderPreference: matching.GenderPreference(c.Query("genderPreference")),
		RadiusKm:         radius,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drivers": matches})
}

// handleNearbyRides lists searching rides for drivers. Without lat/lng every
// searching ride is returned.
func (s *Server) handleNearbyRides(c *gin.Context) {
	var near *types.Point
	if c.Query("lat") != "" || c.Query("lng") != "" {
		p, ok := parsePoint(c.Query("lat"), c.Query("lng"))
		if !ok {
			badRequest(c, "lat and lng must both be valid numbers")
			return
		}
		near = &p
	}
	radius, _ := strconv.ParseFloat(c.Query("radius"), 64)

	rides, err := s.matching.FindNearbyRides(c.Request.Context(), near, radius)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rides": rides})
}

func parsePoint(latStr, lngStr string) (types.Point, bool) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return types.Point{}, false
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return types.Point{}, false
	}
	return types.Point{Lat: lat, Lng: lng}, true
}
