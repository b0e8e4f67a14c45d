package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/pump-controller/internal/logger"
	"github.com/sweeney/pump-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Pomp Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.Aan { color: green; font-weight: bold; }
.Uit { color: #888; }
progress { width: 100%; }
input[type=number] { width: 8em; }
</style>
</head>
<body>
<h1>Pomp Controller</h1>

<h2>Status</h2>
<table>
<tr><th>Pomp</th><td id="status" class="{{.Status}}">{{.Status}}</td></tr>
<tr><th>Fase</th><td><span id="elapsed">{{.Elapsed}}</span> / <span id="duration">{{.Duration}}</span> s</td></tr>
<tr><td colspan="2"><progress id="progress" max="{{.Duration}}" value="{{.Elapsed}}"></progress></td></tr>
<tr><th>Cycli</th><td id="cycles">{{.Cycles}}</td></tr>
</table>
<form method="post" action="/reset" id="reset-form"><button type="submit">Reset</button></form>

<h2>Instellingen</h2>
<form method="post" action="/">
<table>
<tr><th><label for="pulse">Pulse (s)</label></th><td><input type="number" step="any" min="0" id="pulse" name="pulse" value="{{.Pulse}}" required></td></tr>
<tr><th><label for="pause">Pauze (s)</label></th><td><input type="number" step="any" min="0" id="pause" name="pause" value="{{.Pause}}" required></td></tr>
</table>
<button type="submit">Opslaan</button>
</form>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Snap.Uptime}}</td></tr>
<tr><th>Started</th><td>{{.Snap.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Relay</th><td>GPIO {{.Snap.Config.Pin}}{{if .Snap.Config.Simulated}} (simulated){{end}}</td></tr>
<tr><th>Relay errors</th><td>{{.Snap.ActuatorErrors}}</td></tr>
<tr><th>Settings</th><td>{{if .Snap.Config.DBPath}}{{.Snap.Config.DBPath}}{{else}}not persisted{{end}}</td></tr>
<tr><th>MQTT</th><td>{{if .Snap.Config.Broker}}{{if .Snap.MQTTConnected}}connected{{else}}disconnected{{end}} ({{.Snap.Config.Broker}}){{else}}disabled{{end}}</td></tr>
{{if .Snap.Network}}<tr><th>Network</th><td>{{.Snap.Network.Status}} ({{.Snap.Network.Type}}{{if .Snap.Network.SSID}} {{.Snap.Network.SSID}}{{end}}) {{.Snap.Network.IP}}</td></tr>{{end}}
</table>

<p><a href="/status">status</a> · <a href="/index.json">JSON</a></p>

<script>
(function() {
  function byId(id) { return document.getElementById(id); }

  function refresh() {
    fetch("/status", { cache: "no-store" })
      .then(function(r) { return r.json(); })
      .then(function(s) {
        byId("status").textContent = s.status;
        byId("status").className = s.status;
        byId("elapsed").textContent = s.elapsed;
        byId("duration").textContent = s.duration;
        byId("cycles").textContent = s.cycles;
        byId("progress").max = s.duration || 1;
        byId("progress").value = s.elapsed;
      })
      .catch(function() {});
  }

  byId("reset-form").addEventListener("submit", function(e) {
    e.preventDefault();
    fetch("/reset", { method: "POST" }).then(refresh);
  });

  setInterval(refresh, 1000);
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	data := struct {
		status.CompactJSON
		Snap status.Snapshot
	}{
		CompactJSON: status.Compact(snap.Snapshot),
		Snap:        snap,
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		logger.Warn().Err(err).Msg("Failed to render index")
	}
}
