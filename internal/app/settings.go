package app

import (
	"encoding/json"
	"os"
	"path/filepath"

	"chemviz/internal/utils"
)

// Settings are small preferences remembered between runs.
type Settings struct {
	LastFile  string `json:"lastFile,omitempty"`
	ReportDir string `json:"reportDir,omitempty"`
}

func (a *App) SettingsPath() string {
	return filepath.Join(a.Config.DataDir, "settings.json")
}

func (a *App) Settings() Settings {
	return a.settings
}

// LoadSettings reads the settings file; a missing file leaves defaults.
func (a *App) LoadSettings() error {
	if a.Config.DataDir == "" {
		return nil
	}
	data, err := os.ReadFile(a.SettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	a.settings = s
	return nil
}

func (a *App) SaveSettings(s Settings) error {
	a.settings = s
	if a.Config.DataDir == "" {
		return nil
	}
	if err := a.EnsureDataDir(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(a.SettingsPath(), data, 0o644)
}
