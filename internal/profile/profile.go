// Package profile writes the startup script the dyno sources before the app
// starts, exposing what the build installed.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// ScriptName is the file under BUILD_DIR/.profile.d.
const ScriptName = "wildfly-postgresql.sh"

// Variable names exported to the app.
const (
	VarDriverName     = "POSTGRESQL_DRIVER_NAME"
	VarDriverVersion  = "POSTGRESQL_DRIVER_VERSION"
	VarDatasourceName = "POSTGRESQL_DATASOURCE_NAME"
	VarJNDIName       = "POSTGRESQL_DATASOURCE_JNDI_NAME"
)

// Path returns the script location for buildDir.
func Path(buildDir string) string {
	return filepath.Join(buildDir, ".profile.d", ScriptName)
}

// Render turns vars into sorted, quoted export lines.
func Render(vars map[string]string) (string, error) {
	if len(vars) == 0 {
		return "", nil
	}
	body, err := godotenv.Marshal(vars)
	if err != nil {
		return "", fmt.Errorf("render exports: %w", err)
	}
	var b strings.Builder
	for _, line := range strings.Split(body, "\n") {
		if line == "" {
			continue
		}
		b.WriteString("export ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// Append adds export lines for vars to the script under buildDir, creating
// it when needed.
func Append(buildDir string, vars map[string]string) (string, error) {
	text, err := Render(vars)
	if err != nil {
		return "", err
	}
	path := Path(buildDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create profile dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}

// Read parses a script written by Append back into its variables. Later
// lines win.
func Read(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return godotenv.UnmarshalBytes(data)
}
