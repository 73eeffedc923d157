package routing

import "strings"

// Profile is the provider's transport-mode identifier used in directions
// requests.
type Profile string

const (
	ProfileCar        Profile = "driving-car"
	ProfileFoot       Profile = "foot-walking"
	ProfileCycling    Profile = "cycling-regular"
	ProfileFootHiking Profile = "foot-hiking"
)

// ResolveProfile maps a tour's free-text transport type to a provider
// profile. Matching ignores case and surrounding space; anything not
// recognized, including the empty string, routes as a car.
func ResolveProfile(transportType string) Profile {
	switch strings.ToLower(strings.TrimSpace(transportType)) {
	case "walking", "running":
		return ProfileFoot
	case "biking":
		return ProfileCycling
	case "hiking":
		return ProfileFootHiking
	default:
		return ProfileCar
	}
}

func (p Profile) String() string {
	return string(p)
}
