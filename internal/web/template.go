package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/bms-controller/internal/status"
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
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"onoff": func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>BMS {{.Config.Name}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.fault { color: red; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>BMS {{.Config.Name}}</h1>

<h2>Protection</h2>
<table>
<tr><th>State</th><td id="state">{{stateOrUnknown (printf "%s" .BMS.State)}}</td></tr>
<tr><th>Charge FET</th><td class="{{onoff .BMS.Commanded.Charge}}">{{onoff .BMS.Commanded.Charge}}</td></tr>
<tr><th>Discharge FET</th><td class="{{onoff .BMS.Commanded.Discharge}}">{{onoff .BMS.Commanded.Discharge}}</td></tr>
<tr><th>Charge enabled</th><td>{{onoff .BMS.ChgEnable}}</td></tr>
<tr><th>Discharge enabled</th><td>{{onoff .BMS.DisEnable}}</td></tr>
<tr><th>Charge allowed</th><td>{{onoff .Allowed.Charge}}</td></tr>
<tr><th>Discharge allowed</th><td>{{onoff .Allowed.Discharge}}</td></tr>
<tr><th>Balancing allowed</th><td>{{onoff .Allowed.Balancing}}</td></tr>
<tr><th>Errors</th><td{{if .BMS.ErrorFlags}} class="fault"{{end}}>{{.BMS.ErrorFlags}}</td></tr>
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}{{if .Stale}} (stale data){{end}}</td></tr>
</table>

<h2>Pack</h2>
<table>
<tr><th>Cells</th><td>{{.BMS.ConnectedCells}}</td></tr>
<tr><th>Cell voltage</th><td>{{printf "%.3f" .BMS.CellVoltageMin}} .. {{printf "%.3f" .BMS.CellVoltageMax}} V (avg {{printf "%.3f" .BMS.CellVoltageAvg}})</td></tr>
<tr><th>Pack voltage</th><td>{{printf "%.2f" .BMS.PackVoltage}} V</td></tr>
<tr><th>Pack current</th><td>{{printf "%.2f" .BMS.PackCurrent}} A</td></tr>
<tr><th>Temperature</th><td>{{printf "%.1f" .BMS.TempMin}} .. {{printf "%.1f" .BMS.TempMax}} °C</td></tr>
{{if .SOCKnown}}<tr><th>SOC (start-up)</th><td>{{printf "%.0f" .SOC}} %</td></tr>{{end}}
<tr><th>Full / Empty</th><td>{{if .BMS.Full}}full{{else if .BMS.Empty}}empty{{else}}-{{end}}</td></tr>
</table>

<h2>Transitions</h2>
<table>
<tr><th>OFF</th><td>{{.Counts.Off}}</td></tr>
<tr><th>CHG</th><td>{{.Counts.Chg}}</td></tr>
<tr><th>DIS</th><td>{{.Counts.Dis}}</td></tr>
<tr><th>NORMAL</th><td>{{.Counts.Normal}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Chemistry</th><td>{{.Config.Chemistry}} {{printf "%.1f" .Config.NominalCapacity}} Ah</td></tr>
<tr><th>Cell OV / UV</th><td>{{.Config.Limits.CellOVLimit}} / {{.Config.Limits.CellUVLimit}} V</td></tr>
<tr><th>Discharge OC / SC</th><td>{{.Config.Limits.DisOCLimit}} / {{.Config.Limits.DisSCLimit}} A</td></tr>
<tr><th>Charge OC</th><td>{{.Config.Limits.ChgOCLimit}} A</td></tr>
<tr><th>Cycle</th><td>{{.Config.CycleMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if .Config.Heartbeat}}{{.Config.Heartbeat}}{{else}}disabled{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/events.json">Transitions</a></p>
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
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render index: %v", err)
	}
}
