// Package router implements the cardlink broker that sits between card hosts
// and controllers. Card hosts register over a persistent websocket after a
// challenge-response handshake; controllers redeem single-use session tokens
// for a websocket bound to one card host. The router forwards requests,
// responses, and card events between the two sides and tracks peer liveness
// through heartbeats.
package router

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/cardlink/cardlink/internal/common/httpx"
	"github.com/cardlink/cardlink/internal/common/middleware"
	"github.com/cardlink/cardlink/internal/router/config"
	"github.com/cardlink/cardlink/internal/router/eventbus"
)

// Server is the router HTTP and websocket server.
type Server struct {
	Router *chi.Mux // HTTP router for request handling

	registry *registry
	routes   *routeTable
	bus      *eventbus.EventBus
	tokens   *tokenIssuer
	upgrader websocket.Upgrader

	// liveness sweep tuning, from config
	hbInterval time.Duration
	hbLimit    time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// CreateNewServer creates a new Server instance from the loaded
// configuration.
func CreateNewServer() (*Server, error) {
	cfg := config.Config()
	if cfg == nil {
		return nil, ErrRouterError.Msg("configuration not loaded")
	}
	s := &Server{
		Router:   chi.NewRouter(),
		registry: newRegistry(),
		routes:   newRouteTable(),
		bus:      eventbus.New(),
		tokens:   newTokenIssuer(cfg.SigningKey, cfg.Auth.GetTokenExpiryOrDefault()),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		hbInterval: cfg.Heartbeat.GetIntervalOrDefault(),
		stop:       make(chan struct{}),
	}
	s.hbLimit = s.hbInterval * time.Duration(cfg.Heartbeat.MaxMissed)
	return s, nil
}

// MountHandlers sets up all HTTP routes and middleware for the server.
func (s *Server) MountHandlers() {
	s.Router.Use(middleware.RequestLogger)
	s.Router.Use(middleware.PanicHandler)
	if config.Config().HandleCORS {
		s.Router.Use(s.HandleCORS)
	}

	s.Router.Route("/v1", func(r chi.Router) {
		r.Post("/sessions", s.createSession)
		r.Get("/cardhosts", s.listCardhosts)
	})
	s.Router.Get("/ws/cardhost", s.handleCardhostWS)
	s.Router.Get("/ws/controller", s.handleControllerWS)
	s.Router.Get("/version", s.getVersion)
	s.Router.Get("/ready", s.getReadiness)
}

// StartBackground launches the liveness sweeper. Peers that miss too many
// heartbeats get their sockets closed; the per-connection read loops then run
// the same cleanup path as a voluntary disconnect.
func (s *Server) StartBackground() {
	s.wg.Add(1)
	go s.evictionLoop()
}

func (s *Server) evictionLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.hbInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			for _, h := range s.registry.allCardhosts() {
				if h.sinceHeartbeat() > s.hbLimit {
					log.Warn().Str("cardhost_id", h.ID).Msg("evicting silent cardhost")
					h.peer.close()
				}
			}
			for _, c := range s.registry.allControllers() {
				if c.sinceHeartbeat() > s.hbLimit {
					log.Warn().Str("session_id", c.SessionID).Msg("evicting silent controller")
					c.peer.close()
				}
			}
			s.tokens.sweep(now)
		}
	}
}

// Shutdown closes all peer connections and stops background work.
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.stop)
		for _, h := range s.registry.allCardhosts() {
			h.peer.close()
		}
		for _, c := range s.registry.allControllers() {
			c.peer.close()
		}
		s.bus.Shutdown()
	})
	s.wg.Wait()
}

// GetVersionRsp represents the response for version information.
type GetVersionRsp struct {
	ServerVersion string `json:"serverVersion"` // server version string
	ApiVersion    string `json:"apiVersion"`    // API version string
}

func (s *Server) getVersion(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("GetVersion")
	rsp := &GetVersionRsp{
		ServerVersion: "Cardlink Router: " + Version,
		ApiVersion:    ApiVersion,
	}
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, rsp)
}

// getReadiness handles health check requests from load balancers and
// monitoring systems.
func (s *Server) getReadiness(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("Readiness check")
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// HandleCORS provides CORS middleware for cross-origin requests.
func (s *Server) HandleCORS(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "Accept-Encoding"},
		ExposedHeaders:   []string{"Link", "Location", "X-Cardlink-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	})(next)
}
