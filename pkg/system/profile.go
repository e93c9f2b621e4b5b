package system

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Profile describes the host for the doctor command.
type Profile struct {
	OS        string `json:"os"`
	Distro    string `json:"distro,omitempty"`
	Version   string `json:"version,omitempty"`
	Kernel    string `json:"kernel,omitempty"`
	Arch      string `json:"arch"`
	CPUs      int    `json:"cpus"`
	GoVersion string `json:"goVersion"`
	// Python is the path of a system python3, if any. The embedded engine
	// does not need it.
	Python string `json:"python,omitempty"`
}

func Detect() (*Profile, error) {
	profile := &Profile{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		CPUs:      runtime.NumCPU(),
		GoVersion: runtime.Version(),
	}

	switch runtime.GOOS {
	case "linux":
		profile.Distro, profile.Version = parseOSRelease("/etc/os-release")
		profile.Kernel, _ = uname("-r")
	case "darwin":
		profile.Distro = "macos"
		profile.Kernel, _ = uname("-r")
	case "windows":
		profile.Distro = "windows"
	}

	if path, err := exec.LookPath("python3"); err == nil {
		profile.Python = path
	}
	return profile, nil
}

func (p *Profile) String() string {
	host := p.OS
	if p.Distro != "" {
		host = strings.TrimSpace(fmt.Sprintf("%s %s", p.Distro, p.Version))
	}
	return fmt.Sprintf("%s/%s (%s, kernel %s, %d cpus)", host, p.Arch, p.GoVersion, orUnknown(p.Kernel), p.CPUs)
}

func parseOSRelease(path string) (string, string) {
	file, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer file.Close()

	var distro, version string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if v, ok := strings.CutPrefix(line, "ID="); ok {
			distro = trimValue(v)
		}
		if v, ok := strings.CutPrefix(line, "VERSION_ID="); ok {
			version = trimValue(v)
		}
	}
	return distro, version
}

func trimValue(val string) string {
	return strings.Trim(val, "\"'")
}

func uname(arg string) (string, error) {
	out, err := exec.Command("uname", arg).Output()
	if err != nil {
		return "", fmt.Errorf("uname %s: %w", arg, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
