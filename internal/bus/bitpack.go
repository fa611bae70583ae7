package bus

// Bit-packing helpers used by the telemetry packer to fold semantically
// distinct fields into single machine words, and by its tests to assert
// pack/unpack round trips.

// PackBootVoltage folds a 16-bit boot counter and a 16-bit millivolt
// reading into a single uint32: boot count in the high half, voltage in
// the low half.
func PackBootVoltage(bootCount, voltageMV uint16) uint32 {
	return uint32(bootCount)<<16 | uint32(voltageMV)
}

// UnpackBootVoltage reverses PackBootVoltage.
func UnpackBootVoltage(v uint32) (bootCount, voltageMV uint16) {
	return uint16(v >> 16), uint16(v & 0xFFFF)
}

// PackSignedPair folds two signed bytes into a uint16, hi in the high
// byte, lo in the low byte.
func PackSignedPair(hi, lo int8) uint16 {
	return uint16(uint8(hi))<<8 | uint16(uint8(lo))
}

// UnpackSignedPair reverses PackSignedPair.
func UnpackSignedPair(v uint16) (hi, lo int8) {
	return int8(v >> 8), int8(v & 0xFF)
}

// PackHealthScores folds four 0-255 health scores into a uint32, one
// score per byte in (power, thermal, comms, spare) order, high-to-low.
func PackHealthScores(power, thermal, comms, spare uint8) uint32 {
	return uint32(power)<<24 | uint32(thermal)<<16 | uint32(comms)<<8 | uint32(spare)
}

// UnpackHealthScores reverses PackHealthScores.
func UnpackHealthScores(v uint32) (power, thermal, comms, spare uint8) {
	return uint8(v >> 24), uint8(v >> 16), uint8(v >> 8), uint8(v)
}

// QuaternionXYZ compresses the x, y, z components of a unit quaternion
// into signed 16-bit fixed point (scale 32767 == 1.0). The w component
// is never transmitted and is treated as unspecified placeholder orbital
// data on decode.
func QuaternionXYZ(x, y, z float64) [3]int16 {
	const scale = 32767.0
	return [3]int16{
		clampI16(int32(x * scale)),
		clampI16(int32(y * scale)),
		clampI16(int32(z * scale)),
	}
}
