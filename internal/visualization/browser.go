package visualization

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// launcher builds the command that opens a URL on a platform.
// It is a variable so tests can observe the command without running it.
var launcher = browserCommand

func browserCommand(goos, target string) (*exec.Cmd, error) {
	switch goos {
	case "linux", "freebsd", "openbsd":
		return exec.Command("xdg-open", target), nil
	case "darwin":
		return exec.Command("open", target), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", target), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}

// OpenBrowser opens the dashboard URL in the user's default browser.
// Only http and https URLs are accepted.
func OpenBrowser(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid dashboard URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("refusing to open non-http URL %q", target)
	}

	cmd, err := launcher(runtime.GOOS, u.String())
	if err != nil {
		return err
	}
	return cmd.Start()
}
