// Package httpapi is the external collaborator named in spec.md §1: the
// HTTP routing, the operator command surface, and the Server-Sent-Events
// wire framing for the live snapshot feed. It depends on the supervisor
// only through internal/bus (to issue commands) and internal/snapshot (to
// read the live feed) — it owns no sauna state of its own. Routing and
// request logging follow the old internal/web.Server shape, rebuilt on
// gorilla/mux and gorilla/handlers.LoggingHandler the way
// GVCUTV-NRG-CHAMP/aggregator wires its router.
package httpapi

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saunaworks/sauna-supervisor/internal/bus"
	"github.com/saunaworks/sauna-supervisor/internal/snapshot"
)

// commandTimeout bounds how long a handler waits for the supervisor to
// answer an operator command before reporting a timeout to the caller. A
// var, not a const, so tests can shorten it.
var commandTimeout = 5 * time.Second

// Server hosts the operator command surface and the live snapshot feed.
type Server struct {
	httpServer  *http.Server
	bus         *bus.Bus
	broadcaster *snapshot.Broadcaster
}

// New builds a Server listening on addr, issuing commands onto b and
// serving the live feed from broadcaster.
func New(addr string, b *bus.Bus, broadcaster *snapshot.Broadcaster) *Server {
	s := &Server{bus: b, broadcaster: broadcaster}

	r := mux.NewRouter()
	r.HandleFunc("/api/mcb", s.handleGetMcb).Methods("GET")
	r.HandleFunc("/api/mcb/on", s.handleCommand(adapterCmdTurnOn)).Methods("POST")
	r.HandleFunc("/api/mcb/off", s.handleCommand(adapterCmdTurnOff)).Methods("POST")
	r.HandleFunc("/api/mcb/toggle", s.handleCommand(adapterCmdToggle)).Methods("POST")
	r.HandleFunc("/api/mcb/force-on", s.handleCommand(adapterCmdForceOn)).Methods("POST")
	r.HandleFunc("/api/mcb/force-off", s.handleCommand(adapterCmdForceOff)).Methods("POST")
	r.HandleFunc("/api/notify/test", s.handleCommand(adapterCmdTestNotify)).Methods("POST")
	r.HandleFunc("/api/health", s.handleCommand(adapterCmdHealth)).Methods("GET")
	r.HandleFunc("/api/events", s.handleEvents).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	logged := handlers.LoggingHandler(os.Stdout, r)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: logged,
	}
	return s
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
