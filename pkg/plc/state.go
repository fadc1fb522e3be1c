package plc

// AxisReading holds one value per axis. A nil entry means the read failed
// and the value is unknown this cycle.
type AxisReading struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

// Telemetry is an aggregate snapshot of the PLC's registers and coils.
// The reads behind it are independent transactions, so values may span
// PLC scan cycles.
type Telemetry struct {
	Current struct {
		Speed    AxisReading `json:"speed"`
		Position AxisReading `json:"position"`
	} `json:"current"`
	SetSpeed AxisReading      `json:"set_speed"`
	SetCoord AxisReading      `json:"set_coord"`
	Coils    map[string]*bool `json:"coils"`
}

// State polls every register and coil once. Individual read failures are
// logged and surface as nil entries rather than aborting the poll.
func (l *Link) State() Telemetry {
	var t Telemetry
	t.Current.Speed = AxisReading{
		X: l.safeReadFloat("x_speed_cur"),
		Y: l.safeReadFloat("y_speed_cur"),
		Z: l.safeReadFloat("z_speed_cur"),
	}
	t.Current.Position = AxisReading{
		X: l.safeReadFloat("x_pos_cur"),
		Y: l.safeReadFloat("y_pos_cur"),
		Z: l.safeReadFloat("z_pos_cur"),
	}
	t.SetSpeed = AxisReading{
		X: l.safeReadFloat("x_speed_set"),
		Y: l.safeReadFloat("y_speed_set"),
		Z: l.safeReadFloat("z_speed_set"),
	}
	t.SetCoord = AxisReading{
		X: l.safeReadFloat("x_coord_set"),
		Y: l.safeReadFloat("y_coord_set"),
		Z: l.safeReadFloat("z_coord_set"),
	}
	t.Coils = make(map[string]*bool, len(CoilAddr))
	for name := range CoilAddr {
		t.Coils[name] = l.safeReadCoil(name)
	}
	return t
}
