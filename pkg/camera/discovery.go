package camera

import (
	"fmt"
	"os/exec"
	"strings"
)

// StaticResolver resolves keywords from a fixed map. Used when device
// paths are pinned in configuration, and by tests.
type StaticResolver map[string]string

// Resolve implements Resolver.
func (r StaticResolver) Resolve(keyword string) (string, error) {
	ref, ok := r[keyword]
	if !ok {
		return "", fmt.Errorf("no device mapped for %q", keyword)
	}
	return ref, nil
}

// V4L2Resolver discovers devices by name using v4l2-ctl. Output has the
// device description on one line followed by tab-indented /dev/video paths.
type V4L2Resolver struct{}

// Resolve returns the first /dev/video path whose device description
// contains the keyword, case-insensitively.
func (V4L2Resolver) Resolve(keyword string) (string, error) {
	out, err := exec.Command("v4l2-ctl", "--list-devices").Output()
	if err != nil {
		return "", fmt.Errorf("v4l2-ctl: %w", err)
	}
	ref := scanDeviceList(string(out), keyword)
	if ref == "" {
		return "", fmt.Errorf("no v4l2 device matches %q", keyword)
	}
	return ref, nil
}

func scanDeviceList(listing, keyword string) string {
	needle := strings.ToLower(keyword)
	lines := strings.Split(listing, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "\t") || !strings.Contains(strings.ToLower(line), needle) {
			continue
		}
		for j := i + 1; j < len(lines) && strings.HasPrefix(lines[j], "\t"); j++ {
			path := strings.TrimSpace(lines[j])
			if strings.HasPrefix(path, "/dev/video") {
				return path
			}
		}
	}
	return ""
}
