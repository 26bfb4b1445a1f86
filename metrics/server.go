package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MagicHoovy/Steve/internal"
	"github.com/MagicHoovy/Steve/internal/config"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter() *httprouter.Router {
	router := httprouter.New()
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())
	router.GET("/health", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return router
}

// Listen serves the metrics endpoint until ctx is cancelled
func Listen(ctx context.Context, conf *config.Config, log internal.LogHandler) error {
	if !conf.Metrics.Enabled {
		return nil
	}
	address := conf.Metrics.BindIP + ":" + conf.Metrics.Port
	server := &http.Server{
		Addr:              address,
		Handler:           NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	log.FeatureEvent("Metrics", "", "starting metrics server on "+address)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
