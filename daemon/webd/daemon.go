package webd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Galaxy-Crusader/KalmanLocationManager/catdb/cache"
	"github.com/Galaxy-Crusader/KalmanLocationManager/common"
	"github.com/Galaxy-Crusader/KalmanLocationManager/fusion"
	"github.com/Galaxy-Crusader/KalmanLocationManager/params"
	"github.com/Galaxy-Crusader/KalmanLocationManager/provider"
	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
	"github.com/ethereum/go-ethereum/event"
	"github.com/gorilla/mux"
	"github.com/olahol/melody"
)

// EstimateSource is what the daemon serves; *fusion.Manager satisfies it.
type EstimateSource interface {
	SubscribeEstimates(ch chan<- fix.Estimate) event.Subscription
	Diagnostics() fusion.Diagnostics
}

type WebDaemon struct {
	Config *params.WebDaemonConfig
	logger *slog.Logger

	source         EstimateSource
	pushers        map[fix.Source]*provider.PushSensor
	melodyInstance *melody.Melody
	lastKnown      *cache.LastKnown
	trail          *common.RingBuffer[fix.Estimate]
	started        time.Time
}

// NewWebDaemon serves estimates from source.
// Pushers, if any, receive records posted to /push.
func NewWebDaemon(config *params.WebDaemonConfig, source EstimateSource, pushers map[fix.Source]*provider.PushSensor) *WebDaemon {
	if config == nil {
		config = params.DefaultWebDaemonConfig()
	}
	return &WebDaemon{
		Config:    config,
		logger:    slog.With("d", "web"),
		source:    source,
		pushers:   pushers,
		lastKnown: cache.NewLastKnown(0),
		trail:     common.NewRingBuffer[fix.Estimate](config.TrailLength),
		started:   time.Now(),
	}
}

// Run serves until ctx is done, then shuts the server down.
func (s *WebDaemon) Run(ctx context.Context) error {
	ln, err := net.Listen(s.Config.Network, s.Config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *WebDaemon) Serve(ctx context.Context, ln net.Listener) error {
	router := s.NewRouter()
	server := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}

	estimates := make(chan fix.Estimate, 64)
	sub := s.source.SubscribeEstimates(estimates)
	defer sub.Unsubscribe()
	go s.pump(ctx, estimates, sub)

	errs := make(chan error, 1)
	go func() {
		s.logger.Info("Starting web daemon", "network", ln.Addr().Network(), "address", ln.Addr().String())
		errs <- server.Serve(ln)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.melodyInstance.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("Web daemon stopped")
	return nil
}

// pump keeps the caches current and fans estimates out to websocket clients.
// It releases sub when it returns, so the feed never waits on an undrained channel.
func (s *WebDaemon) pump(ctx context.Context, estimates <-chan fix.Estimate, sub event.Subscription) {
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-estimates:
			s.ingest(e)
			s.broadcast(e)
		case err := <-sub.Err():
			if err != nil {
				s.logger.Error("Estimate subscription failed", "error", err)
			}
			return
		}
	}
}

func (s *WebDaemon) ingest(e fix.Estimate) {
	if !e.HasFix() {
		return
	}
	s.lastKnown.Set(e)
	if e.Source == fix.SourceFused {
		s.trail.Add(e)
	}
}

func (s *WebDaemon) NewRouter() *mux.Router {
	s.initMelody()

	router := mux.NewRouter().StrictSlash(false)
	router.Use(loggingMiddleware)

	apiRoutes := router.NewRoute().Subrouter()
	apiRoutes.Use(permissiveCorsMiddleware)

	apiRoutes.Path("/ping").HandlerFunc(pingPong)
	apiRoutes.Path("/estimates").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = s.melodyInstance.HandleRequest(w, r)
	})

	apiJSONRoutes := apiRoutes.NewRoute().Subrouter()
	apiJSONRoutes.Use(contentTypeMiddlewareFunc("application/json"))

	apiJSONRoutes.Path("/status").HandlerFunc(s.statusReport).Methods(http.MethodGet)
	apiJSONRoutes.Path("/last").HandlerFunc(s.handleLast).Methods(http.MethodGet)
	apiJSONRoutes.Path("/last/{source}").HandlerFunc(s.handleLastSource).Methods(http.MethodGet)
	apiJSONRoutes.Path("/trail").HandlerFunc(s.handleTrail).Methods(http.MethodGet)
	apiJSONRoutes.Path("/diagnostics").HandlerFunc(s.handleDiagnostics).Methods(http.MethodGet)

	pushRoutes := apiJSONRoutes.NewRoute().Subrouter()
	pushRoutes.Use(tokenAuthenticationMiddleware)
	pushRoutes.Path("/push").HandlerFunc(s.handlePush).Methods(http.MethodPost)

	return router
}
