package web

import (
	"fmt"
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/babylog/internal/care"
	"github.com/sweeney/babylog/internal/status"
	"github.com/sweeney/babylog/internal/store"
)

var dashboardTmpl = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm", days, h, m)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm", h, m)
		}
		return fmt.Sprintf("%dm %ds", m, int(d.Seconds())%60)
	},
	"clock": func(t time.Time, loc *time.Location) string {
		return t.In(loc).Format("15:04")
	},
	"since": func(t time.Time, now time.Time) string {
		d := now.Sub(t).Truncate(time.Minute)
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if h > 0 {
			return fmt.Sprintf("%dh %dm ago", h, m)
		}
		return fmt.Sprintf("%dm ago", m)
	},
	"minutes": func(p *int) string {
		if p == nil {
			return ""
		}
		return fmt.Sprintf("%d min", *p)
	},
	"label": func(t care.EventType) string {
		if l, ok := typeLabels[t]; ok {
			return l
		}
		return string(t)
	},
}).Parse(dashboardHTML))

var typeLabels = map[care.EventType]string{
	care.FeedingStartLeft:  "Feeding start (left)",
	care.FeedingStartRight: "Feeding start (right)",
	care.FeedingEnd:        "Feeding end",
	care.SleepStart:        "Sleep start",
	care.SleepEnd:          "Sleep end",
	care.DiaperPee:         "Diaper (pee)",
	care.DiaperPoo:         "Diaper (poo)",
	care.DiaperBoth:        "Diaper (both)",
}

const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Babylog</title>
<style>
body { font-family: monospace; max-width: 700px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.connected { color: green; }
.disconnected { color: red; }
.open { color: green; font-weight: bold; }
.auto { color: orange; }
.orphan { color: #888; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Babylog<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Today ({{.Daily.Date}})</h2>
<table>
<tr><th>Feedings</th><td>{{.Daily.FeedingCount}}{{if .Daily.LastFeeding}} (last {{since .Daily.LastFeeding.UTC .Now}}){{end}}</td></tr>
<tr><th>Sleep</th><td>{{.Daily.SleepSessions}} sessions, {{.Daily.SleepMinutes}} min{{if .Daily.Asleep}} <span class="open">asleep now</span>{{end}}</td></tr>
<tr><th>Diapers</th><td>{{.Daily.DiaperTotal}} (pee {{.Daily.DiaperPee}}, poo {{.Daily.DiaperPoo}}, both {{.Daily.DiaperBoth}}){{if .Daily.LastDiaper}} (last {{since .Daily.LastDiaper.UTC .Now}}){{end}}</td></tr>
</table>

{{if .Open}}
<h2>Open Sessions</h2>
<table>
{{range $kind, $start := .Open}}<tr><th>{{$kind}}</th><td class="open">since {{clock $start $.Loc}} ({{since $start $.Now}})</td></tr>
{{end}}</table>
{{end}}

<h2>Recent Events ({{.Total}} total)</h2>
<table id="events">
{{range .Events}}<tr><td>{{clock .Timestamp $.Loc}}</td><td>{{label .Type}}{{if .AutoClosed}} <span class="auto">auto</span>{{end}}{{if .Orphan}} <span class="orphan">orphan</span>{{end}}</td><td>{{minutes .DurationMinutes}}</td><td>{{.DeviceSource}}</td></tr>
{{end}}</table>

<h2>Device Mappings</h2>
<table>
<tr><th>Device</th><th>Action</th><th>Care Event</th></tr>
{{range .Mappings}}<tr><td>{{if .DeviceName}}{{.DeviceName}}{{else}}{{.DeviceID}}{{end}}</td><td>{{.ButtonAction}}</td><td>{{label .CareAction}}</td></tr>
{{end}}</table>

<h2>System</h2>
<table>
<tr><th>MQTT</th><td class="{{if .Snap.MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .Snap.MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Snap.Config.Broker}}</td></tr>
<tr><th>Debounce</th><td>{{.Snap.Config.DebounceMs}}ms</td></tr>
<tr><th>Auto-close</th><td>{{if .Snap.Config.AutoClose}}on{{else}}off{{end}}</td></tr>
<tr><th>Debounced</th><td>{{.Snap.Counts.Debounced}}</td></tr>
<tr><th>Unmapped</th><td>{{.Snap.Counts.Unmapped}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Snap.Uptime}}</td></tr>
</table>

<p><a href="/api/events">events</a> · <a href="/api/stats/daily">daily</a> · <a href="/api/export/csv">csv</a> · <a href="/api/export/json">json</a></p>

<script>
(function() {
  var dot = document.getElementById("live-dot");
  var proto = location.protocol === "https:" ? "wss:" : "ws:";
  var ws;

  function connect() {
    ws = new WebSocket(proto + "//" + location.host + "/ws");
    ws.onopen = function() {
      dot.className = "live-dot ok";
      dot.title = "live";
    };
    ws.onclose = function() {
      dot.className = "live-dot err";
      dot.title = "disconnected";
      setTimeout(connect, 5000);
    };
    ws.onmessage = function() {
      // New event arrived: reload to re-render server side.
      location.reload();
    };
  }
  connect();
})();
</script>
</body>
</html>
`

type dashboardData struct {
	Now      time.Time
	Loc      *time.Location
	Daily    store.DailyAggregate
	Open     map[care.SessionKind]time.Time
	Events   []care.Event
	Total    int
	Mappings []care.Mapping
	Snap     status.Snapshot
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	daily, err := s.store.Daily(ctx, now, s.loc)
	if err != nil {
		s.log.Error("dashboard daily stats failed", zap.Error(err))
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}
	recent, err := s.store.Recent(ctx, 20)
	if err != nil {
		s.log.Error("dashboard recent events failed", zap.Error(err))
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}
	mappings, err := s.store.ListMappings(ctx)
	if err != nil {
		s.log.Error("dashboard mappings failed", zap.Error(err))
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}
	total, err := s.store.Count(ctx)
	if err != nil {
		s.log.Error("dashboard event count failed", zap.Error(err))
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}

	data := dashboardData{
		Now:      now,
		Loc:      s.loc,
		Daily:    daily,
		Open:     s.recorder.OpenSessions(),
		Events:   recent,
		Total:    total,
		Mappings: mappings,
		Snap:     s.tracker.Snapshot(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, data); err != nil {
		s.log.Error("dashboard render failed", zap.Error(err))
	}
}
