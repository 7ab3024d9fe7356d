// README: Thin pass-through endpoints over the route provider.
package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"leaflift/internal/types"
)

func (s *Server) providerReady(c *gin.Context) bool {
	if s.provider == nil {
		c.JSON(http.StatusBadGateway, errorResponse{Error: "route provider not configured"})
		return false
	}
	return true
}

func (s *Server) handleAutocomplete(c *gin.Context) {
	input := c.Query("input")
	if strings.TrimSpace(input) == "" {
		badRequest(c, "input is required")
		return
	}
	if !s.providerReady(c) {
		return
	}
	var bias *types.Point
	if c.Query("lat") != "" && c.Query("lng") != "" {
		if p, ok := parsePoint(c.Query("lat"), c.Query("lng")); ok {
			bias = &p
		}
	}
	predictions, err := s.provider.Autocomplete(c.Request.Context(), input, bias)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"predictions": predictions})
}

type directionsRequest struct {
	Origin      *geoPointRequest  `json:"origin"`
	Destination *geoPointRequest  `json:"destination"`
	Waypoints   []geoPointRequest `json:"waypoints"`
}

func (s *Server) handleDirections(c *gin.Context) {
	var req directionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Origin == nil || req.Destination == nil {
		badRequest(c, "origin and destination are required")
		return
	}
	if !s.providerReady(c) {
		return
	}
	waypoints := make([]types.Point, len(req.Waypoints))
	for i, w := range req.Waypoints {
		waypoints[i] = types.Point{Lat: w.Lat, Lng: w.Lng}
	}
	legs, err := s.provider.Directions(c.Request.Context(),
		types.Point{Lat: req.Origin.Lat, Lng: req.Origin.Lng},
		types.Point{Lat: req.Destination.Lat, Lng: req.Destination.Lng},
		waypoints,
	)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"routes": legs})
}

// handleReverseGeocode accepts latlng as "lat,lng".
func (s *Server) handleReverseGeocode(c *gin.Context) {
	latlng := c.Query("latlng")
	if latlng == "" {
		badRequest(c, "latlng is required")
		return
	}
	parts := strings.SplitN(latlng, ",", 2)
	if len(parts) != 2 {
		badRequest(c, "latlng must be formatted as lat,lng")
		return
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLat != nil || errLng != nil {
		badRequest(c, "latlng must be formatted as lat,lng")
		return
	}
	if !s.providerReady(c) {
		return
	}
	addresses, err := s.provider.ReverseGeocode(c.Request.Context(), lat, lng)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": addresses})
}
