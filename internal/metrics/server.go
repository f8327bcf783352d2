package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openlact/lactd/internal/log"
)

// Server serves the exporter's single GET /metrics endpoint (spec.md
// §6: "Plain HTTP GET /metrics on the configured address").
type Server struct {
	httpServer *http.Server
}

// NewServer builds a Server bound to addr, scraping src on every request.
func NewServer(addr string, src deviceSource) *Server {
	reg := Register(src)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg, ErrorLog: promLogAdapter{}}))
	return &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
}

// Serve blocks until ctx is canceled or ListenAndServe fails.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.httpServer.Close()
	}()

	log.Logger.Infow("metrics exporter started", "address", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return ctx.Err()
	}
	return err
}

// promLogAdapter routes promhttp's scrape-time collector errors through
// the daemon's own structured logger instead of the standard log package.
type promLogAdapter struct{}

func (promLogAdapter) Println(v ...any) {
	log.Logger.Warnw("prometheus scrape error", "detail", v)
}
