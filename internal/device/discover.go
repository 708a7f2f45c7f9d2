package device

import (
	"path/filepath"
	"sort"
)

// portGlobPatterns are the candidate device paths for a Trisonica on a
// Raspberry Pi class host, in no particular priority order.
var portGlobPatterns = []string{
	"/dev/ttyUSB*",        // USB-to-serial adapters
	"/dev/ttyACM*",        // USB CDC devices
	"/dev/ttyAMA*",        // platform UART
	"/dev/serial/by-id/*", // persistent udev aliases
}

// probeTokens identify Trisonica output during probing. A candidate
// port is accepted as the sensor if any probed line contains one of
// these parameter markers.
var probeTokens = []string{"S ", "S2", "D ", "T ", "U ", "V "}

// FindPorts enumerates candidate serial ports by glob pattern, sorted
// and de-duplicated. An empty result means no serial hardware is
// present right now.
func FindPorts() []string {
	seen := make(map[string]struct{})
	var ports []string

	for _, pattern := range portGlobPatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue // only possible with a malformed pattern
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			ports = append(ports, m)
		}
	}

	sort.Strings(ports)
	return ports
}
