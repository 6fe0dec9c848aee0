package cli

import (
	"fmt"
	"os/exec"
	"runtime"
)

// browserOpener opens URLs with the configured browser command, or the
// platform default when none is set.
type browserOpener struct {
	command string
}

func (b browserOpener) OpenURL(url string) error {
	name, args := b.launcher()
	args = append(args, url)
	if err := exec.Command(name, args...).Start(); err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	return nil
}

func (b browserOpener) launcher() (string, []string) {
	if b.command != "" {
		return b.command, nil
	}
	switch runtime.GOOS {
	case "darwin":
		return "open", nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler"}
	default:
		return "xdg-open", nil
	}
}
