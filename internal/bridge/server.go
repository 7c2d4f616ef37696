// Package bridge exposes one OBS session over plain HTTP so that clients
// without a websocket (scripts, stream decks, older panels) can drive OBS.
package bridge

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dvangennip/web-remote-for-OBS/internal/client"
	"github.com/dvangennip/web-remote-for-OBS/internal/metrics"
)

// AuthHeader carries the bridge key on every /call and /emit request.
const AuthHeader = "AuthKey"

const (
	msgAuthRequired = "AuthKey header is required."
	msgBadAuth      = "Bad AuthKey"
	msgTimeout      = "The obs-websocket request timed out."
)

// OBS is the part of *client.Session the bridge needs.
type OBS interface {
	Call(ctx context.Context, command string, params client.Params) client.Result
	Send(command string, params client.Params) error
	State() client.State
}

var _ OBS = (*client.Session)(nil)

// Options configures a Server.
type Options struct {
	// AuthKey, when non-empty, must match the AuthKey request header.
	AuthKey string
	// StaticDir is served for any unmatched GET when set.
	StaticDir       string
	ShutdownTimeout time.Duration
	Log             zerolog.Logger
}

// Server is the HTTP front of the bridge.
type Server struct {
	obs    OBS
	opts   Options
	engine *gin.Engine
	log    zerolog.Logger
}

// New builds the gin engine and registers all routes.
func New(obs OBS, opts Options) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	log := opts.Log.With().Str("component", "bridge").Logger()

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors())
	engine.Use(requestLogger(log))

	s := &Server{obs: obs, opts: opts, engine: engine, log: log}
	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	obs := s.engine.Group("/", s.requireAuthKey())
	obs.POST("/call/:type", s.call)
	obs.POST("/emit/:type", s.emit)

	if s.opts.StaticDir != "" {
		files := http.FileServer(http.Dir(s.opts.StaticDir))
		s.engine.NoRoute(func(c *gin.Context) {
			if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
				c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "not found"})
				return
			}
			files.ServeHTTP(c.Writer, c.Request)
		})
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("bridge listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("shutting down bridge")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (s *Server) health(c *gin.Context) {
	state := s.obs.State()
	if state != client.StateAuthenticated {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "obs": state.String()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "obs": state.String()})
}

// call forwards the request and returns OBS's answer as the uniform result.
func (s *Server) call(c *gin.Context) {
	command := c.Param("type")
	params := readParams(c)

	res := s.obs.Call(c.Request.Context(), command, params)
	if !res.OK() && res.Error == client.ErrTimeout.Error() {
		res.Error = msgTimeout
	}
	metrics.BridgeRequests.WithLabelValues("call", string(res.Status)).Inc()
	c.JSON(http.StatusOK, res)
}

// emit writes the request without waiting for OBS.
func (s *Server) emit(c *gin.Context) {
	command := c.Param("type")
	params := readParams(c)

	if err := s.obs.Send(command, params); err != nil {
		metrics.BridgeRequests.WithLabelValues("emit", "error").Inc()
		s.log.Warn().Err(err).Str("command", command).Msg("emit failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": err.Error()})
		return
	}
	metrics.BridgeRequests.WithLabelValues("emit", "ok").Inc()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// readParams decodes the JSON body. An empty or malformed body means no
// parameters.
func readParams(c *gin.Context) client.Params {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil || len(body) == 0 {
		return nil
	}
	var params client.Params
	if err := json.Unmarshal(body, &params); err != nil {
		return nil
	}
	return params
}

func (s *Server) requireAuthKey() gin.HandlerFunc {
	want := []byte(s.opts.AuthKey)
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.Next()
			return
		}
		values, present := c.Request.Header[http.CanonicalHeaderKey(AuthHeader)]
		if !present || len(values) == 0 {
			metrics.BridgeRequests.WithLabelValues("auth", "missing").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "error": msgAuthRequired})
			return
		}
		if subtle.ConstantTimeCompare([]byte(values[0]), want) != 1 {
			metrics.BridgeRequests.WithLabelValues("auth", "rejected").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "error": msgBadAuth})
			return
		}
		c.Next()
	}
}
