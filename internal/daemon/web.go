package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/attachehq/attache/internal/store"
)

// serveWeb runs the local debug dashboard until the context is cancelled.
// The dashboard binds loopback only; it exposes logs and run records.
func (d *Daemon) serveWeb(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", d.handleDashboard)
	mux.HandleFunc("/api/status", d.handleAPIStatus)
	mux.HandleFunc("/api/runs", d.handleAPIRuns)
	mux.HandleFunc("/api/logs", d.handleAPILogs)
	mux.HandleFunc("/ws/logs", d.handleWSLogs)

	port := findAvailablePort(3000, 3100)
	if port == 0 {
		d.logger.Warn("no free port in 3000-3100, dashboard disabled")
		return
	}
	d.mu.Lock()
	d.webPort = port
	d.mu.Unlock()

	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	d.logger.Info("dashboard listening", "url", fmt.Sprintf("http://127.0.0.1:%d", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		d.logger.Error("dashboard server failed", "error", err)
	}
}

// findAvailablePort probes loopback ports in [from, to).
func findAvailablePort(from, to int) int {
	for port := from; port < to; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			ln.Close()
			return port
		}
	}
	return 0
}

func (d *Daemon) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	handler := d.handler
	conversations := d.conversations
	tracker := d.tokens
	personaName := d.personaName
	model := d.model
	port := d.webPort
	d.mu.Unlock()

	active := 0
	if handler != nil {
		active = handler.Active()
	}

	status := map[string]any{
		"version": d.version,
		"persona": personaName,
		"model":   model,
		"active":  active,
		"port":    port,
		"uptime":  time.Since(d.startTime).Round(time.Second).String(),
	}
	if conversations != nil {
		status["conversations"] = conversations.ActiveConversations()
	}
	if tracker != nil {
		tokens := map[string]any{"used_today": tracker.Used()}
		if left, ok := tracker.Remaining(); ok {
			tokens["remaining_today"] = left
		}
		status["tokens"] = tokens
	}
	if stats, err := d.st.RunStats(); err == nil {
		status["runs"] = stats
	} else {
		d.logger.Warn("run stats unavailable", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (d *Daemon) handleAPIRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			http.Error(w, "limit must be an integer between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := d.st.RecentRuns(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}

func (d *Daemon) handleAPILogs(w http.ResponseWriter, r *http.Request) {
	entries := d.logs.Entries()

	type jsonEntry struct {
		Time    string `json:"time"`
		Level   string `json:"level"`
		Message string `json:"message"`
	}

	out := make([]jsonEntry, len(entries))
	for i, e := range entries {
		out[i] = jsonEntry{
			Time:    e.Time.Format("15:04:05"),
			Level:   e.Level,
			Message: e.Message,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleWSLogs streams new log entries over a websocket.
func (d *Daemon) handleWSLogs(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		d.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := d.logs.Subscribe()
	defer d.logs.Unsubscribe(ch)

	// Reader drains client frames and surfaces disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case entry := <-ch:
			payload := map[string]string{
				"time":    entry.Time.Format("15:04:05"),
				"level":   entry.Level,
				"message": entry.Message,
			}
			if err := conn.WriteJSON(payload); err != nil {
				return
			}
		}
	}
}

func (d *Daemon) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, dashboardHTML)
}

const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
<title>attaché</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body { font-family: -apple-system, BlinkMacSystemFont, "SF Mono", monospace; background: #0d1117; color: #c9d1d9; padding: 20px; }
  h1 { font-size: 1.3em; margin-bottom: 16px; color: #58a6ff; }
  .status { display: flex; gap: 24px; margin-bottom: 20px; flex-wrap: wrap; }
  .badge { background: #161b22; border: 1px solid #30363d; border-radius: 8px; padding: 12px 16px; }
  .badge .label { font-size: 0.75em; color: #8b949e; text-transform: uppercase; margin-bottom: 4px; }
  .badge .value { font-size: 1.1em; }
  .busy { color: #d29922; }
  .idle { color: #3fb950; }
  #logs { background: #161b22; border: 1px solid #30363d; border-radius: 8px; padding: 16px; height: calc(100vh - 180px); overflow-y: auto; font-size: 0.85em; line-height: 1.6; }
  .log-line { white-space: pre-wrap; word-break: break-all; }
  .log-INFO { color: #c9d1d9; }
  .log-WARN { color: #d29922; }
  .log-ERROR { color: #f85149; }
  .log-DEBUG { color: #8b949e; }
</style>
</head>
<body>
<h1>🤖 attaché</h1>
<div class="status">
  <div class="badge"><div class="label">Persona</div><div class="value" id="persona">—</div></div>
  <div class="badge"><div class="label">Model</div><div class="value" id="model">—</div></div>
  <div class="badge"><div class="label">Assistant</div><div class="value idle" id="activity">—</div></div>
  <div class="badge"><div class="label">Runs answered</div><div class="value" id="runs">—</div></div>
  <div class="badge"><div class="label">Uptime</div><div class="value" id="uptime">—</div></div>
</div>
<div id="logs"></div>
<script>
const logsEl = document.getElementById('logs');

// Load stored logs, then stream new ones.
fetch('/api/logs').then(r => r.json()).then(logs => {
  logs.forEach(addLog);
  logsEl.scrollTop = logsEl.scrollHeight;
});

const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
const ws = new WebSocket(proto + location.host + '/ws/logs');
ws.onmessage = (e) => {
  addLog(JSON.parse(e.data));
  logsEl.scrollTop = logsEl.scrollHeight;
};

async function pollStatus() {
  try {
    const r = await fetch('/api/status');
    const s = await r.json();
    document.getElementById('persona').textContent = s.persona || '—';
    document.getElementById('model').textContent = s.model || '—';
    const actEl = document.getElementById('activity');
    if (s.active > 0) {
      actEl.textContent = 'Working (' + s.active + ')';
      actEl.className = 'value busy';
    } else {
      actEl.textContent = 'Idle';
      actEl.className = 'value idle';
    }
    if (s.runs) {
      document.getElementById('runs').textContent = s.runs.answered + ' of ' + s.runs.total_runs;
    }
    document.getElementById('uptime').textContent = s.uptime;
  } catch {}
}
pollStatus();
setInterval(pollStatus, 3000);

function addLog(log) {
  const div = document.createElement('div');
  div.className = 'log-line log-' + log.level;
  div.textContent = log.time + ' ' + log.message;
  logsEl.appendChild(div);
}
</script>
</body>
</html>`
