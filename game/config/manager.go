package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wricardo/mcp-training/shapesync/game/engine"
)

var (
	ErrConfigNotFound = errors.New("configuration not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// ConfigInfo describes one room type available to clients
type ConfigInfo struct {
	Filename    string `json:"filename"`
	ConfigID    string `json:"config_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MaxPlayers  int    `json:"max_players"`
	Default     bool   `json:"default"`
}

// Manager handles room type configuration loading and caching
type Manager struct {
	configDir     string
	defaultConfig *engine.RoomConfig
	configs       map[string]*engine.RoomConfig
	mu            sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager(configDir string) (*Manager, error) {
	// Ensure config directory exists
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}

	m := &Manager{
		configDir: configDir,
		configs:   make(map[string]*engine.RoomConfig),
	}

	if err := m.loadDefaultConfig(); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	return m, nil
}

// LoadConfig loads a room type configuration by name
func (m *Manager) LoadConfig(name string) (*engine.RoomConfig, error) {
	name = strings.TrimSuffix(name, ".json")
	// Names map to files in configDir; anything else never reaches the disk
	if !engine.ValidRoomName(name) {
		return nil, ErrConfigNotFound
	}

	m.mu.RLock()
	if config, exists := m.configs[name]; exists {
		m.mu.RUnlock()
		return config, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if config, exists := m.configs[name]; exists {
		return config, nil
	}

	config, err := readConfigFile(filepath.Join(m.configDir, name+".json"))
	if err != nil {
		return nil, err
	}
	if config.Name != name {
		return nil, fmt.Errorf("%w: name %q does not match file %q", ErrInvalidConfig, config.Name, name+".json")
	}

	m.configs[name] = config
	return config, nil
}

// ReadFile parses and validates a single room config file.
func ReadFile(path string) (*engine.RoomConfig, error) {
	return readConfigFile(path)
}

func readConfigFile(path string) (*engine.RoomConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config engine.RoomConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := engine.ValidateRoomConfig(&config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &config, nil
}

// Resolve returns the room type a join request names. An empty name selects
// the default room type.
func (m *Manager) Resolve(name string) (*engine.RoomConfig, error) {
	def := m.GetDefault()
	if name == "" || name == def.Name {
		return def, nil
	}
	return m.LoadConfig(name)
}

// ListConfigs returns information about all available room types
func (m *Manager) ListConfigs() ([]*ConfigInfo, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	def := m.GetDefault()
	var configs []*ConfigInfo
	seenDefault := false

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ".json")

		config, err := m.LoadConfig(name)
		if err != nil {
			// Skip invalid configs
			continue
		}

		isDefault := def != nil && config.Name == def.Name
		seenDefault = seenDefault || isDefault
		configs = append(configs, &ConfigInfo{
			Filename:    entry.Name(),
			ConfigID:    name,
			Name:        config.Name,
			Description: config.Description,
			MaxPlayers:  config.MaxPlayers,
			Default:     isDefault,
		})
	}

	// The built-in default has no file behind it
	if def != nil && !seenDefault {
		configs = append(configs, &ConfigInfo{
			ConfigID:    def.Name,
			Name:        def.Name,
			Description: def.Description,
			MaxPlayers:  def.MaxPlayers,
			Default:     true,
		})
	}

	sort.Slice(configs, func(i, j int) bool { return configs[i].ConfigID < configs[j].ConfigID })
	return configs, nil
}

// GetDefault returns the default room type
func (m *Manager) GetDefault() *engine.RoomConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultConfig
}

// SetDefault sets the default room type by name
func (m *Manager) SetDefault(name string) error {
	config, err := m.LoadConfig(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultConfig = config
	return nil
}

// RefreshCache drops cached configurations and reloads the default from disk
func (m *Manager) RefreshCache() error {
	m.mu.Lock()
	m.configs = make(map[string]*engine.RoomConfig)
	m.mu.Unlock()

	return m.loadDefaultConfig()
}

// loadDefaultConfig loads game_room.json, falling back to the first valid
// file and then to the built-in default
func (m *Manager) loadDefaultConfig() error {
	config, err := m.LoadConfig(engine.DefaultRoomName)
	if err != nil {
		config = m.firstValidConfig()
	}
	if config == nil {
		config = engine.DefaultRoomConfig()
	}

	m.mu.Lock()
	m.defaultConfig = config
	m.mu.Unlock()
	return nil
}

func (m *Manager) firstValidConfig() *engine.RoomConfig {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if config, err := m.LoadConfig(entry.Name()); err == nil {
			return config
		}
	}
	return nil
}

// SaveConfig writes a room type configuration to disk
func (m *Manager) SaveConfig(config *engine.RoomConfig) error {
	if err := engine.ValidateRoomConfig(config); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	configPath := filepath.Join(m.configDir, config.Name+".json")

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	m.mu.Lock()
	m.configs[config.Name] = config
	m.mu.Unlock()

	return nil
}
