// Package airquality provides pollutant samples and nearest-sample matching.
package airquality

// Pollutant represents an air quality pollutant type.
type Pollutant string

// PollutantNO2 is the pollutant served by the road network data service.
const PollutantNO2 Pollutant = "NO2"

// Sample is one pollutant measurement at a point for the loaded time.
type Sample struct {
	Lon   float64
	Lat   float64
	Value float64
}
