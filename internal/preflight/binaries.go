package preflight

import (
	"fmt"
	"os/exec"
	"strings"

	"vidharvest/internal/config"
)

// Requirement defines an external binary vidharvest relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a binary.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Command = path
		status.Available = true
		results = append(results, status)
	}
	return results
}

// CheckSystemDeps evaluates the binaries required by the given config.
func CheckSystemDeps(cfg *config.Config) []Status {
	requirements := []Requirement{
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "Required for resolution and runtime detection",
		},
	}
	if strings.TrimSpace(cfg.Browser.ControlURL) == "" {
		requirements = append(requirements, Requirement{
			Name:        "Chromium",
			Command:     "chromium",
			Description: "Used for extraction when no browser control URL is configured; downloaded on demand when absent",
			Optional:    true,
		})
	}
	return CheckBinaries(requirements)
}
