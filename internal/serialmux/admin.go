package serialmux

import (
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"
)

var sendCommandTemplate = template.Must(template.New("send-command").Parse(`<!DOCTYPE html>
<html>
<head><title>Send board request</title></head>
<body>
<h1>Send a request to the board</h1>
<form method="POST" action="/debug/send-command-api">
<input type="text" name="command" size="60" placeholder='{"read":{"pin":2,"type":"analog"}}'>
<button type="submit">Send</button>
</form>
</body>
</html>
`))

// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP mux
// served at /debug/. tsweb restricts them to localhost and the tailnet.
func (c *Conn) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("send-command", "send a raw JSON request to the board", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := sendCommandTemplate.Execute(w, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
		}
	})

	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		reply, err := c.ExchangeRaw(r.Context(), command)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to exchange command: %v", err), http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Sent %q, board replied %q", command, reply.Raw))
	})
}
