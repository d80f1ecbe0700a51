package stage

import "strings"

// Health summarizes the readiness of a workflow stage.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// Combine folds several checks into one record named name. It is ready only
// when every part is, and the detail lists the failing parts.
func Combine(name string, parts ...Health) Health {
	var failing []string
	for _, part := range parts {
		if part.Ready {
			continue
		}
		detail := part.Name
		if part.Detail != "" {
			detail += ": " + part.Detail
		}
		failing = append(failing, detail)
	}
	if len(failing) == 0 {
		return Healthy(name)
	}
	return Unhealthy(name, strings.Join(failing, "; "))
}
