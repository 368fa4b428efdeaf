//go:build !windows

package autostart

import (
	"os"
	"path/filepath"
	"runtime"
	"text/template"
)

const macLaunchAgentPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>com.keyavatar.service</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Exec}}</string>{{range .Args}}
        <string>{{.}}</string>{{end}}
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>
`

// XDG autostart entry, read by every freedesktop session
const desktopEntry = `[Desktop Entry]
Type=Application
Name=KeyAvatar
Comment=Reactive avatar driven by keyboard and mouse input
Exec={{.CommandLine}}
Terminal=false
X-GNOME-Autostart-enabled=true
`

// entryPath returns the platform file and its template.
func entryPath() (string, string, error) {
	if runtime.GOOS == "darwin" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		return filepath.Join(home, "Library", "LaunchAgents", "com.keyavatar.service.plist"), macLaunchAgentPlist, nil
	}

	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "autostart", appID+".desktop"), desktopEntry, nil
}

func enable(e Entry) error {
	path, text, err := entryPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmpl, err := template.New("entry").Parse(text)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return tmpl.Execute(f, e)
}

func disable() error {
	path, _, err := entryPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func isEnabled() bool {
	path, _, err := entryPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
