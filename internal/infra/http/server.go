package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"voice-briefing/internal/infra/metrics"
)

// Server оборачивает chi.Router с базовыми middlewares.
type Server struct {
	Router chi.Router
	log    zerolog.Logger
	srv    *http.Server
}

// NewServer создаёт HTTP сервер с /healthz. Маршруты API монтируются в Router.
func NewServer(logger zerolog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return &Server{
		Router: r,
		log:    logger,
		// Без WriteTimeout: голосовой WebSocket долгоживущий.
		srv: &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second},
	}
}

// Start запускает сервер и блокируется до его остановки.
func (s *Server) Start(addr string) error {
	s.srv.Addr = addr
	s.log.Info().Str("addr", addr).Msg("http: сервер запущен")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown позволяет корректно завершить работу.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// requestLogger пишет access-лог в zerolog и длительность запроса в метрики.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			var err error
			if ww.Status() >= http.StatusInternalServerError {
				err = fmt.Errorf("status %d", ww.Status())
			}
			metrics.ObserveNetworkRequest("http_api", r.Method, route, start, err)

			logger.Debug().
				Str("method", r.Method).
				Str("route", route).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http: запрос")
		})
	}
}
