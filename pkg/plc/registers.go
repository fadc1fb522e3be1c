package plc

// The gantry PLC exposes twelve D registers, each holding one 32-bit float
// across two consecutive words, and eighteen M coils. The address tables
// mirror the PLC ladder program and are fixed.

// RegisterAddr maps float register names to their holding-register addresses.
var RegisterAddr = map[string]uint16{
	"x_speed_cur": 0x0042,
	"y_speed_cur": 0x0044,
	"z_speed_cur": 0x0046,
	"x_pos_cur":   0x0052,
	"y_pos_cur":   0x0054,
	"z_pos_cur":   0x0056,
	"x_speed_set": 0x0048,
	"y_speed_set": 0x004E,
	"z_speed_set": 0x0050,
	"x_coord_set": 0x0058,
	"y_coord_set": 0x005A,
	"z_coord_set": 0x005C,
}

// CoilAddr maps coil action names to their coil addresses. Motion triggers
// and homing are pulsed; power rails and pause are level writes.
var CoilAddr = map[string]uint16{
	"xy_go_target": 0x0033,
	"z_go_target":  0x004C,
	"xy_home":      0x0047,
	"z_home":       0x004D,
	"xy_stop":      0x004B,
	"z_stop":       0x0053,
	"cmd_pause":    0x004E,
	"machine_on":   0x0036,
	"machine_off":  0x0037,
	"light_on":     0x0038,
	"light_off":    0x0039,
	"pump_on":      0x003A,
	"pump_off":     0x003B,
	"dc12_on":      0x003C,
	"dc12_off":     0x003D,
	"dc24_on":      0x003E,
	"dc24_off":     0x003F,
	"ac220_on":     0x0040,
	"ac220_off":    0x0041,
}
