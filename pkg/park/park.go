// Package park converts between the rotor-fixed dq current frame and
// instantaneous three-phase stator currents.
package park

import "math"

// DQ decomposes a stator current vector of peak magnitude amps at angle
// betaDeg (electrical degrees from the q axis) into d and q components.
// Positive beta advances the vector into the negative d axis, the usual
// field-weakening direction for an IPM.
func DQ(amps, betaDeg float64) (id, iq float64) {
	beta := betaDeg * math.Pi / 180
	id = -amps * math.Sin(beta)
	iq = amps * math.Cos(beta)
	return id, iq
}

// Magnitude returns the peak phase current for a dq pair
func Magnitude(id, iq float64) float64 {
	return math.Hypot(id, iq)
}

// RMS returns the per-phase RMS current for a peak phase magnitude
func RMS(amps float64) float64 {
	return amps / math.Sqrt2
}

// ElectricalAngle converts a mechanical rotor angle in degrees to the
// electrical angle in radians
func ElectricalAngle(polePairs int, thetaRDeg float64) float64 {
	return float64(polePairs) * thetaRDeg * math.Pi / 180
}

// Phase computes the instantaneous phase currents (a, b, c) for the dq pair
// at mechanical rotor angle thetaRDeg. The inverse Park transform uses a
// sine basis for d and a cosine basis for q, phases 120 electrical degrees
// apart.
func Phase(id, iq float64, polePairs int, thetaRDeg float64) [3]float64 {
	thetaE := ElectricalAngle(polePairs, thetaRDeg)

	var out [3]float64
	for k := 0; k < 3; k++ {
		phi := thetaE - 2*math.Pi*float64(k)/3
		out[k] = id*math.Sin(phi) + iq*math.Cos(phi)
	}
	return out
}
