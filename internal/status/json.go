package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	State         string       `json:"state"`
	Ready         bool         `json:"ready"`
	Stale         bool         `json:"stale"`
	Enabled       SwitchesJSON `json:"enabled"`
	Commanded     SwitchesJSON `json:"commanded"`
	Allowed       AllowedJSON  `json:"allowed"`
	Errors        []string     `json:"errors"`
	ErrorFlags    uint32       `json:"error_flags"`
	Cells         CellsJSON    `json:"cells"`
	PackVoltage   float64      `json:"pack_voltage"`
	PackCurrent   float64      `json:"pack_current"`
	TempMin       float64      `json:"temp_min"`
	TempMax       float64      `json:"temp_max"`
	Full          bool         `json:"full"`
	Empty         bool         `json:"empty"`
	SOC           *float64     `json:"soc_percent,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"transition_counts"`
	Config        ConfigJSON   `json:"config"`
}

// SwitchesJSON is a charge/discharge pair.
type SwitchesJSON struct {
	Charge    bool `json:"charge"`
	Discharge bool `json:"discharge"`
}

// AllowedJSON reports the permission predicates.
type AllowedJSON struct {
	Charge    bool `json:"charge"`
	Discharge bool `json:"discharge"`
	Balancing bool `json:"balancing"`
}

// CellsJSON summarises the cell voltages.
type CellsJSON struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of transition counts.
type CountsJSON struct {
	Off    int `json:"off"`
	Chg    int `json:"chg"`
	Dis    int `json:"dis"`
	Normal int `json:"normal"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Name            string     `json:"name"`
	Chemistry       string     `json:"chemistry"`
	NominalCapacity float64    `json:"nominal_capacity_ah"`
	CycleMs         int64      `json:"cycle_ms"`
	Heartbeat       string     `json:"heartbeat"`
	Broker          string     `json:"broker"`
	HTTPPort        string     `json:"http_port"`
	Limits          LimitsJSON `json:"limits"`
}

// LimitsJSON is the JSON representation of protection limits.
type LimitsJSON struct {
	CellOV float64 `json:"cell_ov_v"`
	CellUV float64 `json:"cell_uv_v"`
	DisOC  float64 `json:"dis_oc_a"`
	ChgOC  float64 `json:"chg_oc_a"`
	DisSC  float64 `json:"dis_sc_a"`
	ChgOT  float64 `json:"chg_ot_c"`
	DisOT  float64 `json:"dis_ot_c"`
}

func buildInner(snap Snapshot) StatusInner {
	st := snap.BMS
	state := string(st.State)
	if state == "" {
		state = "UNKNOWN"
	}
	errs := st.ErrorFlags.Names()
	if errs == nil {
		errs = []string{}
	}

	inner := StatusInner{
		State:         state,
		Ready:         snap.Ready,
		Stale:         snap.Stale,
		Enabled:       SwitchesJSON{Charge: st.ChgEnable, Discharge: st.DisEnable},
		Commanded:     SwitchesJSON{Charge: st.Commanded.Charge, Discharge: st.Commanded.Discharge},
		Allowed:       AllowedJSON(snap.Allowed),
		Errors:        errs,
		ErrorFlags:    uint32(st.ErrorFlags),
		Cells:         CellsJSON{Count: st.ConnectedCells, Min: st.CellVoltageMin, Max: st.CellVoltageMax, Avg: st.CellVoltageAvg},
		PackVoltage:   st.PackVoltage,
		PackCurrent:   st.PackCurrent,
		TempMin:       st.TempMin,
		TempMax:       st.TempMax,
		Full:          st.Full,
		Empty:         st.Empty,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Off:    snap.Counts.Off,
			Chg:    snap.Counts.Chg,
			Dis:    snap.Counts.Dis,
			Normal: snap.Counts.Normal,
		},
		Config: ConfigJSON{
			Name:            snap.Config.Name,
			Chemistry:       snap.Config.Chemistry,
			NominalCapacity: snap.Config.NominalCapacity,
			CycleMs:         snap.Config.CycleMs,
			Heartbeat:       snap.Config.Heartbeat,
			Broker:          snap.Config.Broker,
			HTTPPort:        snap.Config.HTTPPort,
			Limits: LimitsJSON{
				CellOV: snap.Config.Limits.CellOVLimit,
				CellUV: snap.Config.Limits.CellUVLimit,
				DisOC:  snap.Config.Limits.DisOCLimit,
				ChgOC:  snap.Config.Limits.ChgOCLimit,
				DisSC:  snap.Config.Limits.DisSCLimit,
				ChgOT:  snap.Config.Limits.ChgOTLimit,
				DisOT:  snap.Config.Limits.DisOTLimit,
			},
		},
	}
	if snap.SOCKnown {
		soc := snap.SOC
		inner.SOC = &soc
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
