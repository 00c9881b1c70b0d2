package bridge

import (
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/codeshield-bridge/internal/httputil"
)

// SessionStatus is the JSON body of the bridge-state route.
type SessionStatus struct {
	Connected   bool      `json:"connected"`
	SessionID   string    `json:"session_id,omitempty"`
	Init        string    `json:"init,omitempty"`
	IdleClients int       `json:"idle_clients"`
	State       *Snapshot `json:"state,omitempty"`
}

// Status reports the active session, if any.
func (s *Server) Status() SessionStatus {
	sess := s.Session()
	if sess == nil {
		return SessionStatus{}
	}
	snap := sess.State().Snapshot()
	return SessionStatus{
		Connected:   true,
		SessionID:   sess.ID,
		Init:        sess.InitStatus().String(),
		IdleClients: s.IdleClients(),
		State:       &snap,
	}
}

// AttachAdminRoutes exposes the session state under /debug/.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Session", func() any {
		if sess := s.Session(); sess != nil {
			return sess.ID
		}
		return "waiting for client"
	})

	debug.HandleFunc("bridge-state", "poll throttle, sensor index, LED latch and last readings", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireMethod(w, r, http.MethodGet) {
			return
		}
		httputil.WriteJSONOK(w, s.Status())
	})
}
