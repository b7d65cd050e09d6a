package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/bp-sensor/internal/status"
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
	"linkClass": func(link string) string {
		switch link {
		case "CONNECTED":
			return "connected"
		case "ADVERTISING":
			return "advertising"
		}
		return "disconnected"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>BP Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.connected { color: green; font-weight: bold; }
.advertising { color: orange; }
.disconnected { color: red; }
.err { color: red; }
</style>
</head>
<body>
<h1>BP Sensor</h1>

<h2>Link</h2>
<table>
<tr><th>State</th><td class="{{linkClass .Loop.Link.String}}">{{.Loop.Link}}</td></tr>
{{if .Loop.Peer}}<tr><th>Peer</th><td>{{.Loop.Peer}}</td></tr>{{end}}
<tr><th>Notifications</th><td>{{.Loop.Notify}}</td></tr>
<tr><th>Battery measurement</th><td>{{if .Loop.MeasurementEnabled}}enabled{{else}}disabled{{end}}</td></tr>
<tr><th>Pending writes</th><td>{{.Loop.PendingWrites}}</td></tr>
{{if .Loop.StartErr}}<tr><th>Radio error</th><td class="err">{{.Loop.StartErr}}</td></tr>{{end}}
{{if .Loop.LastPersistErr}}<tr><th>Persist error</th><td class="err">{{.Loop.LastPersistErr}}</td></tr>{{end}}
</table>

<h2>Last Reading</h2>
<table>
{{with .LastReading}}<tr><th>Blood pressure</th><td id="bp">{{printf "%.0f" .Record.Systolic}}/{{printf "%.0f" .Record.Diastolic}} mmHg</td></tr>
<tr><th>Pulse</th><td>{{printf "%.0f" .Record.PulseRate}} bpm</td></tr>
<tr><th>Taken</th><td>{{.Record.Timestamp.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{else}}<tr><th>Blood pressure</th><td id="bp">none yet</td></tr>{{end}}
<tr><th>Battery</th><td>{{if .Battery}}{{.Battery}}%{{else}}unknown{{end}}</td></tr>
</table>

<h2>Power</h2>
<table>
<tr><th>Last sleep</th><td>{{.Loop.LastSleep}}</td></tr>
<tr><th>Ticks pending</th><td>{{.Loop.TicksPending}}</td></tr>
<tr><th>Iterations</th><td>{{.Loop.Counts.Iterations}}</td></tr>
<tr><th>Deep / idle / stayed</th><td>{{.Loop.Counts.SleepDeep}} / {{.Loop.Counts.SleepIdle}} / {{.Loop.Counts.SleepDeclined}}</td></tr>
<tr><th>Reports</th><td>{{.Loop.Counts.Reports}}</td></tr>
<tr><th>Persist attempts / failures</th><td>{{.Loop.Counts.PersistAttempts}} / {{.Loop.Counts.PersistFailures}}</td></tr>
<tr><th>Debug output</th><td>{{.Debug.Buffered}}+{{.Debug.FIFO}} queued, {{.Debug.Dropped}} dropped</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}, {{.MQTTQueued}} queued, {{.MQTTDropped}} dropped</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Radio</th><td>{{.Config.Radio}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Timer</th><td>{{.Config.TimerPeriodMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/reading.json">last reading</a> · <a href="/healthz">health</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
