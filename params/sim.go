package params

import "time"

// SimConfig drives the simulated sensors.
type SimConfig struct {
	// Lat, Lon center the figure-eight course.
	Lat float64
	Lon float64
	// Radius of each loop, meters.
	Radius float64
	// Period of one full figure-eight.
	Period time.Duration

	SatAccuracy float64
	NetAccuracy float64

	// Seed makes the sensor noise reproducible.
	Seed int64
}

func DefaultSimConfig() *SimConfig {
	return &SimConfig{
		Lat:         46.9292804,
		Lon:         -114.0877518,
		Radius:      200,
		Period:      4 * time.Minute,
		SatAccuracy: 5,
		NetAccuracy: 40,
		Seed:        1,
	}
}
