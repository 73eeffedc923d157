package routing

import "testing"

func TestResolveProfile(t *testing.T) {
	tests := []struct {
		in   string
		want Profile
	}{
		{"walking", ProfileFoot},
		{"Walking", ProfileFoot},
		{"RUNNING", ProfileFoot},
		{"biking", ProfileCycling},
		{" Biking ", ProfileCycling},
		{"hiking", ProfileFootHiking},
		{"car", ProfileCar},
		{"Car", ProfileCar},
		{"", ProfileCar},
		{"hovercraft", ProfileCar},
		{"\x00\xff", ProfileCar},
	}
	for _, tt := range tests {
		if got := ResolveProfile(tt.in); got != tt.want {
			t.Errorf("ResolveProfile(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
