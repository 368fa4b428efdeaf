//go:build windows

// Package osutils provides platform checks around input capture.
package osutils

import (
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"

	"keyavatar/internal/log"
)

// IsAdmin reports whether the process token is elevated. Group membership
// alone is not enough: UIPI filters hooks by integrity level.
func IsAdmin() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}

// CaptureAccess reports whether the hook backend sees all input. Low-level
// hooks of a non-elevated process miss input sent to elevated windows.
func CaptureAccess(backend string) (ok bool, hint string) {
	if backend != "windows" || IsAdmin() {
		return true, ""
	}
	return true, "process is not elevated; input to elevated windows is not observed"
}

const firewallRule = "KeyAvatar pose stream"

// EnsureFirewallRule makes sure inbound TCP on port is allowed, asking for
// elevation through UAC when needed.
func EnsureFirewallRule(port int) error {
	logger := log.Component("firewall")

	checkCmd := exec.Command("netsh", "advfirewall", "firewall", "show", "rule", "name="+firewallRule)
	output, err := checkCmd.CombinedOutput()
	out := string(output)
	if err == nil && strings.Contains(out, firewallRule) {
		if strings.Contains(out, fmt.Sprintf("%d", port)) && strings.Contains(out, "Allow") {
			logger.Debug("rule present", "rule", firewallRule, "port", port)
			return nil
		}
		logger.Info("rule port mismatch, updating", "rule", firewallRule, "port", port)
	} else {
		logger.Info("rule missing, creating", "rule", firewallRule, "port", port)
	}

	psCommand := fmt.Sprintf(
		"Remove-NetFirewallRule -DisplayName '%s' -ErrorAction SilentlyContinue; New-NetFirewallRule -DisplayName '%s' -Direction Inbound -LocalPort %d -Protocol TCP -Action Allow -Profile Private",
		firewallRule, firewallRule, port,
	)

	if IsAdmin() {
		cmd := exec.Command("powershell", "-NoProfile", "-Command", psCommand)
		if output, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("failed to create firewall rule: %w (output: %s)", err, string(output))
		}
		return nil
	}

	verbPtr, _ := syscall.UTF16PtrFromString("runas")
	exePtr, _ := syscall.UTF16PtrFromString("powershell.exe")
	argPtr, _ := syscall.UTF16PtrFromString(fmt.Sprintf("-NoProfile -WindowStyle Hidden -Command \"%s\"", psCommand))
	var showCmd int32 = 0 // SW_HIDE
	if err := windows.ShellExecute(0, verbPtr, exePtr, argPtr, nil, showCmd); err != nil {
		return fmt.Errorf("failed to request elevation: %w", err)
	}
	logger.Info("UAC prompt requested for firewall rule", "port", port)
	return nil
}
