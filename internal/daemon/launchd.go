package daemon

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// AgentLabel is the launchd label of the installed agent.
const AgentLabel = "com.webscrobbler.daemon"

const plistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.BinaryPath}}</string>
		<string>daemon</string>
		<string>--log-file</string>
		<string>{{.LogPath}}/webscrobbler.log</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>StandardInPath</key>
	<string>{{.EventsPath}}</string>
	<key>StandardOutPath</key>
	<string>{{.LogPath}}/webscrobbler.out</string>
	<key>StandardErrorPath</key>
	<string>{{.LogPath}}/webscrobbler.err</string>
	<key>WorkingDirectory</key>
	<string>{{.WorkingDirectory}}</string>
	<key>EnvironmentVariables</key>
	<dict>
		<key>PATH</key>
		<string>/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin</string>
	</dict>
</dict>
</plist>
`

// PlistConfig holds the configuration for generating a launchd plist
type PlistConfig struct {
	Label            string
	BinaryPath       string
	LogPath          string
	EventsPath       string // FIFO the daemon reads events from
	WorkingDirectory string
}

// GeneratePlist renders the launchd plist for config. An empty Label
// defaults to AgentLabel.
func GeneratePlist(config PlistConfig) (string, error) {
	if config.Label == "" {
		config.Label = AgentLabel
	}
	if config.BinaryPath == "" || config.EventsPath == "" {
		return "", fmt.Errorf("binary path and events path are required")
	}

	tmpl, err := template.New("plist").Parse(plistTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse plist template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, config); err != nil {
		return "", fmt.Errorf("failed to execute plist template: %w", err)
	}

	return buf.String(), nil
}

// GetPlistPath returns the path where the plist should be installed
func GetPlistPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, "Library", "LaunchAgents", AgentLabel+".plist"), nil
}

// GetDefaultLogPath returns the default path for daemon logs
func GetDefaultLogPath(dataDir string) string {
	return filepath.Join(dataDir, "logs")
}

// GetDefaultEventsPath returns the default events FIFO path.
func GetDefaultEventsPath(dataDir string) string {
	return filepath.Join(dataDir, "events.fifo")
}
