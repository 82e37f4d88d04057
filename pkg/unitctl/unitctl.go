// Package unitctl asks systemd, over D-Bus, to start, stop, restart or
// reload units. Only Linux has a working implementation.
package unitctl

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupported = errors.New("unitctl: unsupported OS (linux only)")

// ErrUnknownAction is returned for actions other than start, stop, restart
// and reload.
var ErrUnknownAction = errors.New("unitctl: unknown action")

// unitSuffixes are the unit types systemd knows; a name carrying none of
// them is treated as a service.
var unitSuffixes = []string{
	".service", ".socket", ".timer", ".target", ".mount", ".automount",
	".path", ".slice", ".scope", ".swap", ".device",
}

// UnitName appends ".service" when name has no unit type suffix.
func UnitName(name string) string {
	name = strings.TrimSpace(name)
	for _, sfx := range unitSuffixes {
		if strings.HasSuffix(name, sfx) {
			return name
		}
	}
	return name + ".service"
}

// jobResult maps the systemd job result string to an error.
func jobResult(action, unit, result string) error {
	switch result {
	case "done":
		return nil
	case "":
		return fmt.Errorf("%s %s: no job result", action, unit)
	default:
		// canceled, timeout, failed, dependency, skipped
		return fmt.Errorf("%s %s: job %s", action, unit, result)
	}
}

func normalizeAction(action string) (string, error) {
	a := strings.ToLower(strings.TrimSpace(action))
	switch a {
	case "start", "stop", "restart", "reload":
		return a, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownAction, action)
	}
}
