package utils

import "math"

// MinFloat returns the smaller of two floats.
func MinFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// RoundFloat rounds a float64 to a specified number of decimal places.
// The engine itself never rounds; this is for display formatting only.
func RoundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}
