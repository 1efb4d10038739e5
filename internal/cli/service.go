package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/attachehq/attache/internal/setup"
)

const (
	launchdLabel = "com.attachehq.attache"
	systemdUnit  = "attache"
)

// ServiceStatus describes the daemon as the OS service manager sees it.
type ServiceStatus struct {
	Manager string `json:"manager,omitempty"` // "launchd" or "systemd"
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ServiceManager controls the attache daemon through launchd or systemd.
// The setup wizard writes the service definition next to the config file;
// Install copies it into the user's service directory and activates it.
type ServiceManager struct {
	configDir string
}

// NewServiceManager creates a manager. configDir is the directory holding
// the config file and the service definition the wizard generated.
func NewServiceManager(configDir string) *ServiceManager {
	return &ServiceManager{configDir: configDir}
}

// Supported reports whether the current OS has a supported service manager.
func (sm *ServiceManager) Supported() bool {
	return unitDestination(runtime.GOOS, "/") != ""
}

// Install copies the generated service definition into the user service
// directory and registers it. Returns the installed path.
func (sm *ServiceManager) Install() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dest := unitDestination(runtime.GOOS, home)
	if dest == "" {
		return "", fmt.Errorf("no service manager on %s", runtime.GOOS)
	}

	src := filepath.Join(sm.configDir, setup.ServiceFileName())
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no service definition at %s, run `attache setup` first", src)
		}
		return "", fmt.Errorf("read service definition: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("create service directory: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("install service definition: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		if out, err := exec.Command("launchctl", "load", "-w", dest).CombinedOutput(); err != nil {
			return dest, fmt.Errorf("launchctl load: %v: %s", err, strings.TrimSpace(string(out)))
		}
	case "linux":
		if out, err := exec.Command("systemctl", "--user", "daemon-reload").CombinedOutput(); err != nil {
			return dest, fmt.Errorf("systemctl daemon-reload: %v: %s", err, strings.TrimSpace(string(out)))
		}
		if out, err := exec.Command("systemctl", "--user", "enable", systemdUnit).CombinedOutput(); err != nil {
			return dest, fmt.Errorf("systemctl enable: %v: %s", err, strings.TrimSpace(string(out)))
		}
	}
	return dest, nil
}

// Start asks the service manager to start the daemon.
func (sm *ServiceManager) Start() ServiceStatus {
	switch runtime.GOOS {
	case "darwin":
		return sm.launchdRun("start")
	case "linux":
		return sm.systemdRun("start")
	}
	return ServiceStatus{Error: "unsupported OS: " + runtime.GOOS}
}

// Stop asks the service manager to stop the daemon.
func (sm *ServiceManager) Stop() ServiceStatus {
	switch runtime.GOOS {
	case "darwin":
		return sm.launchdRun("stop")
	case "linux":
		return sm.systemdRun("stop")
	}
	return ServiceStatus{Error: "unsupported OS: " + runtime.GOOS}
}

// Status checks whether the daemon is running.
func (sm *ServiceManager) Status() ServiceStatus {
	switch runtime.GOOS {
	case "darwin":
		return sm.launchdStatus()
	case "linux":
		return sm.systemdStatus()
	}
	return ServiceStatus{Error: "unsupported OS: " + runtime.GOOS}
}

func (sm *ServiceManager) launchdRun(action string) ServiceStatus {
	st := ServiceStatus{Manager: "launchd"}
	if err := exec.Command("launchctl", action, launchdLabel).Run(); err != nil {
		st.Error = err.Error()
		return st
	}
	st.Running = action == "start"
	return st
}

func (sm *ServiceManager) launchdStatus() ServiceStatus {
	st := ServiceStatus{Manager: "launchd"}
	out, err := exec.Command("launchctl", "list", launchdLabel).Output()
	if err != nil {
		return st // not loaded
	}
	st.PID = parseLaunchdPID(string(out))
	st.Running = st.PID > 0
	return st
}

func (sm *ServiceManager) systemdRun(action string) ServiceStatus {
	st := ServiceStatus{Manager: "systemd"}
	if err := exec.Command("systemctl", "--user", action, systemdUnit).Run(); err != nil {
		st.Error = err.Error()
		return st
	}
	st.Running = action == "start"
	return st
}

func (sm *ServiceManager) systemdStatus() ServiceStatus {
	st := ServiceStatus{Manager: "systemd"}
	out, err := exec.Command("systemctl", "--user", "is-active", systemdUnit).Output()
	if err != nil || !parseSystemdActive(string(out)) {
		return st
	}
	st.Running = true
	if out, err := exec.Command("systemctl", "--user", "show", systemdUnit, "--property=MainPID").Output(); err == nil {
		st.PID = parseMainPID(string(out))
	}
	return st
}

// unitDestination returns where the service definition lives for the
// given OS, empty when the OS has no supported service manager.
func unitDestination(goos, home string) string {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
	case "linux":
		return filepath.Join(home, ".config", "systemd", "user", systemdUnit+".service")
	}
	return ""
}

var launchdPIDPattern = regexp.MustCompile(`"PID"\s*=\s*(\d+)`)

// parseLaunchdPID extracts the PID from `launchctl list <label>` output,
// zero when the job is loaded but not running.
func parseLaunchdPID(out string) int {
	m := launchdPIDPattern.FindStringSubmatch(out)
	if m == nil {
		return 0
	}
	pid, _ := strconv.Atoi(m[1])
	return pid
}

func parseSystemdActive(out string) bool {
	return strings.TrimSpace(out) == "active"
}

// parseMainPID extracts the PID from `systemctl show --property=MainPID`.
func parseMainPID(out string) int {
	s := strings.TrimPrefix(strings.TrimSpace(out), "MainPID=")
	pid, _ := strconv.Atoi(s)
	return pid
}

// FormatStatus renders a status line for the terminal.
func FormatStatus(st ServiceStatus) string {
	switch {
	case st.Error != "":
		return "attache: error: " + st.Error
	case st.Running && st.PID > 0:
		return fmt.Sprintf("attache: running (pid %d)", st.PID)
	case st.Running:
		return "attache: running"
	default:
		return "attache: stopped"
	}
}
