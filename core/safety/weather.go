package safety

import "context"

// Weather is the wind speed (km/h) and visibility (m) at mission time.
type Weather struct {
	WindSpeed  float64 `json:"wind_speed" koanf:"wind_speed"`
	Visibility float64 `json:"visibility" koanf:"visibility"`
}

// WeatherProvider supplies current conditions for a mission.
type WeatherProvider interface {
	Current(ctx context.Context) (Weather, error)
}

// StaticWeather always reports the configured conditions.
type StaticWeather Weather

// Current implements WeatherProvider.
func (s StaticWeather) Current(context.Context) (Weather, error) { return Weather(s), nil }
