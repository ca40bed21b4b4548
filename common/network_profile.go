package common

import (
	"fmt"
	"sort"
)

// NetworkProfile is used to throttle the network of a Chromium session.
type NetworkProfile struct {
	// Minimum latency from request sent to response headers received (ms).
	Latency float64

	// Maximal aggregated download throughput (bytes/sec). -1 disables download throttling.
	Download float64

	// Maximal aggregated upload throughput (bytes/sec). -1 disables upload throttling.
	Upload float64
}

// NewNetworkProfile creates a non-throttled network profile.
func NewNetworkProfile() NetworkProfile {
	return NetworkProfile{
		Latency:  0,
		Download: -1,
		Upload:   -1,
	}
}

// GetNetworkProfiles returns the named NetworkProfiles accepted by the
// NetworkProfile launch option.
func GetNetworkProfiles() map[string]NetworkProfile {
	return map[string]NetworkProfile{
		"No Throttling": {
			Download: -1,
			Upload:   -1,
			Latency:  0,
		},
		"Slow 3G": {
			Download: ((500 * 1000) / 8) * 0.8,
			Upload:   ((500 * 1000) / 8) * 0.8,
			Latency:  400 * 5,
		},
		"Fast 3G": {
			Download: ((1.6 * 1000 * 1000) / 8) * 0.9,
			Upload:   ((750 * 1000) / 8) * 0.9,
			Latency:  150 * 3.75,
		},
		// The throughput the launcher used for its throttled runs.
		"Constrained": {
			Download: 6000,
			Upload:   1000,
			Latency:  1,
		},
	}
}

// NetworkProfileNames returns the sorted profile names.
func NetworkProfileNames() []string {
	profiles := GetNetworkProfiles()
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LookupNetworkProfile returns the profile called name.
func LookupNetworkProfile(name string) (NetworkProfile, error) {
	p, ok := GetNetworkProfiles()[name]
	if !ok {
		return NetworkProfile{}, fmt.Errorf("unknown network profile %q, should be one of: %v", name, NetworkProfileNames())
	}
	return p, nil
}
