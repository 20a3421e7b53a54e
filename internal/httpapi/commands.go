package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
	"github.com/saunaworks/sauna-supervisor/internal/bus"
)

// Aliases so this file reads the same command names the router table does,
// without importing adapters into every call site in server.go.
const (
	adapterCmdGetMcb     = adapters.CmdGetMcb
	adapterCmdTurnOn     = adapters.CmdTurnOn
	adapterCmdTurnOff    = adapters.CmdTurnOff
	adapterCmdToggle     = adapters.CmdToggle
	adapterCmdForceOn    = adapters.CmdForceOn
	adapterCmdForceOff   = adapters.CmdForceOff
	adapterCmdTestNotify = adapters.CmdTestNotify
	adapterCmdHealth     = adapters.CmdHealth
)

// commandResponse is the JSON envelope returned for every operator command.
type commandResponse struct {
	Ok      bool   `json:"ok"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
	Mcb     string `json:"mcb,omitempty"`
}

// handleCommand returns a handler that submits cmd onto the bus and waits
// for the supervisor's CommandResult, translating it to JSON.
func (s *Server) handleCommand(cmd adapters.OperatorCommand) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
		defer cancel()

		result, err := s.submit(ctx, cmd)
		if err != nil {
			writeJSON(w, http.StatusGatewayTimeout, commandResponse{
				Ok:      false,
				Kind:    "timeout",
				Message: err.Error(),
			})
			return
		}

		status := http.StatusOK
		if !result.Ok {
			status = http.StatusConflict
		}
		writeJSON(w, status, commandResponse{
			Ok:      result.Ok,
			Kind:    result.Kind,
			Message: result.Message,
			Mcb:     result.Mcb.String(),
		})
	}
}

func (s *Server) handleGetMcb(w http.ResponseWriter, r *http.Request) {
	s.handleCommand(adapterCmdGetMcb)(w, r)
}

// submit pushes an OperatorCommandEvent onto the bus and blocks for its
// result, or until ctx is done.
func (s *Server) submit(ctx context.Context, cmd adapters.OperatorCommand) (bus.CommandResult, error) {
	result := make(chan bus.CommandResult, 1)
	s.bus.Push(bus.OperatorCommandEvent{Command: cmd, Result: result})

	select {
	case r := <-result:
		return r, nil
	case <-ctx.Done():
		return bus.CommandResult{}, ctx.Err()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
