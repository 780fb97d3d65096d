package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/deemkeen/fedcore/activitypub"
	"github.com/deemkeen/fedcore/domain"
	"github.com/deemkeen/fedcore/logging"
	"github.com/deemkeen/fedcore/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Max 1MB request body size for ActivityPub activities
const maxActivityBytes = 1 * 1024 * 1024

// Store is the read side the HTTP layer serves. *db.DB satisfies it.
type Store interface {
	OutboxStore
	ReadPost(id string) (*domain.Post, error)
	ReadFollowers(nickname, domainName string) ([]domain.Follow, error)
	ReadFollowing(nickname, domainName string) ([]domain.Follow, error)
}

// Server exposes the federation core over HTTP
type Server struct {
	conf     *util.AppConfig
	fed      *activitypub.Federation
	store    Store
	gatherer prometheus.Gatherer

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter *RateLimiter
	// Stricter rate limit for ActivityPub endpoints: 5 req/sec per IP
	apLimiter *RateLimiter

	log *zap.SugaredLogger
}

// NewServer creates the HTTP server. A nil gatherer serves the default
// prometheus registry.
func NewServer(conf *util.AppConfig, fed *activitypub.Federation, store Store, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		conf:          conf,
		fed:           fed,
		store:         store,
		gatherer:      gatherer,
		globalLimiter: NewRateLimiter(rate.Limit(10), 20),
		apLimiter:     NewRateLimiter(rate.Limit(5), 10),
		log:           logging.Component("web"),
	}
}

// Router builds the gin engine
func (s *Server) Router() *gin.Engine {
	g := gin.New()
	g.Use(gin.Recovery())
	g.Use(RequestLogger(s.log))
	g.Use(gzip.Gzip(gzip.DefaultCompression))
	g.Use(RateLimitMiddleware(s.globalLimiter))

	g.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": util.GetVersion()})
	})
	g.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	if !s.conf.Conf.WithAp {
		return g
	}

	maxBodySize := MaxBytesMiddleware(maxActivityBytes)
	apLimit := RateLimitMiddleware(s.apLimiter)

	g.POST("/inbox", apLimit, maxBodySize, s.handleInbox)
	g.POST("/users/:actor/inbox", apLimit, maxBodySize, s.handleInbox)

	g.GET("/users/:actor/outbox", s.handleOutbox)
	g.GET("/users/:actor/followers", s.handleFollowers)
	g.GET("/users/:actor/followers_synchronization", s.handleFollowersSync)
	g.GET("/users/:actor/following", s.handleFollowing)
	g.GET("/users/:actor/catalog", apLimit, s.handleCatalog)
	g.GET("/users/:actor/statuses/:id", s.handlePost)

	return g
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.conf.Conf.Host, s.conf.Conf.HttpPort),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.globalLimiter.Cleanup(ctx, 5*time.Minute, 10*time.Minute)
	go s.apLimiter.Cleanup(ctx, 5*time.Minute, 10*time.Minute)

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("Starting HTTP server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
