package cli

import (
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/vburojevic/dth/internal/proc"
	"github.com/vburojevic/dth/internal/tmux"
)

// DoctorCmd checks tool resolution, runtime availability, and the panel host
type DoctorCmd struct{}

// doctorCheck is one health-check result
type doctorCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// doctorOutput is the NDJSON shape of the doctor report
type doctorOutput struct {
	Type          string        `json:"type"` // "doctor"
	SchemaVersion int           `json:"schemaVersion"`
	Version       string        `json:"version"`
	Healthy       bool          `json:"healthy"`
	Checks        []doctorCheck `json:"checks"`
}

// Run executes the doctor command
func (c *DoctorCmd) Run(globals *Globals) error {
	invocation := proc.ResolveInvocation(toolchainFromConfig(globals), "", nil)

	checks := []doctorCheck{
		{
			Name:   "launch strategy",
			OK:     true,
			Detail: fmt.Sprintf("%s via %s", invocation.Kind, invocation.Executable),
		},
		c.checkExecutable("tool executable", invocation.Executable),
		c.checkExecutable("tmux", "tmux"),
	}

	host := tmux.NewHost(tmux.Config{}, globals.logger.Logger())
	checks = append(checks, doctorCheck{
		Name:   "embedded panels",
		OK:     host.SupportsEmbedding(),
		Detail: embedDetail(host),
	})

	healthy := true
	for _, check := range checks {
		if !check.OK {
			healthy = false
		}
	}

	if globals.Format == "ndjson" {
		out := doctorOutput{
			Type:          "doctor",
			SchemaVersion: 1,
			Version:       Version,
			Healthy:       healthy,
			Checks:        checks,
		}
		return json.NewEncoder(globals.Stdout).Encode(out)
	}

	fmt.Fprintf(globals.Stdout, "dth %s (%s)\n\n", Version, Commit)
	for _, check := range checks {
		mark := "ok"
		if !check.OK {
			mark = "FAIL"
		}
		fmt.Fprintf(globals.Stdout, "[%s] %s", mark, check.Name)
		if check.Detail != "" {
			fmt.Fprintf(globals.Stdout, " - %s", check.Detail)
		}
		fmt.Fprintln(globals.Stdout)
	}
	if !healthy {
		return outputErrorCommon(globals, "DOCTOR_UNHEALTHY", "one or more checks failed")
	}
	return nil
}

func (c *DoctorCmd) checkExecutable(name, executable string) doctorCheck {
	path, err := exec.LookPath(executable)
	if err != nil {
		return doctorCheck{Name: name, OK: false, Detail: executable + " not found on PATH"}
	}
	return doctorCheck{Name: name, OK: true, Detail: path}
}

func embedDetail(host *tmux.Host) string {
	if host.SupportsEmbedding() {
		return "tmux session " + host.SessionName()
	}
	return "tmux server unavailable; pages open externally"
}
