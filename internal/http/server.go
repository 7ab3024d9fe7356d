// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"leaflift/internal/http/middleware"
	"leaflift/internal/maps"
	"leaflift/internal/modules/matching"
	"leaflift/internal/modules/notification"
	"leaflift/internal/modules/ride"
	"leaflift/internal/modules/tracking"
	"leaflift/internal/ws"
)

type ServerDeps struct {
	Rides         *ride.Service
	Matching      *matching.Service
	Tracking      *tracking.Service
	Notifications *notification.Service
	Provider      maps.Provider
	Hub           *ws.Hub
	Log           *zap.Logger
}

type Server struct {
	rides         *ride.Service
	matching      *matching.Service
	tracking      *tracking.Service
	notifications *notification.Service
	provider      maps.Provider
	hub           *ws.Hub
	log           *zap.Logger
}

func NewServer(deps ServerDeps) *Server {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		rides:         deps.Rides,
		matching:      deps.Matching,
		tracking:      deps.Tracking,
		notifications: deps.Notifications,
		provider:      deps.Provider,
		hub:           deps.Hub,
		log:           log,
	}
}

func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logging(s.log), middleware.Recovery(s.log))

	r.GET("/health", s.handleHealth)
	if s.hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			s.hub.ServeWS(c.Writer, c.Request)
		})
	}

	api := r.Group("/api")
	{
		api.POST("/rides", s.handleCreateRide)
		api.GET("/rides/nearby", s.handleNearbyRides)
		api.GET("/rides/user/:userId", s.handleRidesByUser)
		api.GET("/rides/:id", s.handleGetRide)
		api.PUT("/rides/:id/status", s.handleUpdateRideStatus)
		api.GET("/rides/:id/stops", s.handleGetStops)
		api.POST("/rides/:id/stops/:index/reached", s.handleReachStop)
		api.POST("/rides/:id/stops/:index/skip", s.handleSkipStop)
		api.GET("/rides/:id/live-eta", s.handleLiveEta)
		api.POST("/rides/:id/location", s.handleUpdateLocation)

		api.POST("/driver/route", s.handlePublishRoute)
		api.DELETE("/driver/route/:driverId", s.handleDeactivateRoute)
		api.GET("/rider/match-driver", s.handleMatchDriver)

		api.GET("/ola/autocomplete", s.handleAutocomplete)
		api.POST("/ola/directions", s.handleDirections)
		api.GET("/ola/reverse-geocode", s.handleReverseGeocode)

		api.GET("/notifications/:userId", s.handleListNotifications)
		api.PUT("/notifications/:id/read", s.handleMarkNotificationRead)
	}
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
