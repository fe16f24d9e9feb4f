package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"reportixi/models"
	"reportixi/storage"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "report-ixi"
	// DefaultReportPort is the UDP port Report.ixi listens on.
	DefaultReportPort = 1338
	// DefaultHost is the local report host.
	DefaultHost = "localhost"
	// DefaultMetricsAddress is where /healthz, /neighbors and /metrics are served.
	DefaultMetricsAddress = "127.0.0.1:9338"
	// DefaultBootstrapTimeout bounds the wait for the RCS uuid answer.
	DefaultBootstrapTimeout = 30 * time.Second
	// DataDirEnv overrides the data directory.
	DataDirEnv = "REPORT_IXI_DATA_DIR"

	configFileName   = "config.json"
	metadataFileName = "report.ixi.metadata"
)

// ErrInvalidConfig indicates the configuration cannot be used.
var ErrInvalidConfig = errors.New("config: invalid configuration")

var nameFormat = regexp.MustCompile(`^.+\s\(ict-\d+\)$`)

// Neighbor is one configured ict neighbor.
type Neighbor struct {
	// Address is the neighbor's ict host:port; only the host is used.
	Address string `json:"address"`
	// ReportPort is the neighbor's Report.ixi port.
	ReportPort int `json:"report_port,omitempty"`
}

// Config contains persistent agent settings.
type Config struct {
	Name                  string     `json:"name"`
	Host                  string     `json:"host"`
	ReportPort            int        `json:"report_port"`
	RCSHost               string     `json:"rcs_host"`
	RCSPort               int        `json:"rcs_port"`
	Neighbors             []Neighbor `json:"neighbors"`
	MetadataPath          string     `json:"metadata_path"`
	Ed25519PrivateKeyPath string     `json:"ed25519_private_key_path"`
	DatabasePath          string     `json:"database_path"`
	MetricsAddress        string     `json:"metrics_address"`
	LogLevel              string     `json:"log_level"`
	BootstrapTimeout      string     `json:"bootstrap_timeout"`
	Advertise             bool       `json:"advertise"`
}

// ResolveDataDir returns the OS-aware app data directory.
//
// If REPORT_IXI_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	if override := os.Getenv(DataDirEnv); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// ConfigPath returns the full path to config.json for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// EnsureDataDirectories creates the app data directory layout if needed.
func EnsureDataDirectories(dataDir string) error {
	for _, dir := range []string{dataDir, filepath.Join(dataDir, "keys")} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Load reads and unmarshals config.json from disk.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %v", ErrInvalidConfig, err)
	}

	return &cfg, nil
}

// Save marshals and writes config.json to disk.
func Save(path string, cfg *Config) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadOrCreate ensures directories and config exist, then returns both. A
// freshly created config has no name and fails Validate until edited. An
// empty metrics_address in an existing config disables the HTTP surface.
func LoadOrCreate() (*Config, string, error) {
	dataDir, err := ResolveDataDir()
	if err != nil {
		return nil, "", err
	}
	if err := EnsureDataDirectories(dataDir); err != nil {
		return nil, "", err
	}

	cfgPath := ConfigPath(dataDir)
	cfg, err := Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}

		cfg = defaultConfig(dataDir)
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
		return cfg, cfgPath, nil
	}

	if normalizeDefaults(cfg, dataDir) {
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
	}

	return cfg, cfgPath, nil
}

func defaultConfig(dataDir string) *Config {
	cfg := &Config{
		Neighbors:      []Neighbor{},
		MetricsAddress: DefaultMetricsAddress,
	}
	normalizeDefaults(cfg, dataDir)
	return cfg
}

func normalizeDefaults(cfg *Config, dataDir string) bool {
	updated := false
	set := func(field *string, value string) {
		if *field == "" {
			*field = value
			updated = true
		}
	}

	set(&cfg.Host, DefaultHost)
	set(&cfg.MetadataPath, filepath.Join(dataDir, metadataFileName))
	set(&cfg.Ed25519PrivateKeyPath, filepath.Join(dataDir, "keys", "ed25519_private.pem"))
	set(&cfg.DatabasePath, filepath.Join(dataDir, storage.DefaultDBFileName))
	set(&cfg.LogLevel, "info")
	set(&cfg.BootstrapTimeout, DefaultBootstrapTimeout.String())

	if cfg.ReportPort == 0 {
		cfg.ReportPort = DefaultReportPort
		updated = true
	}
	for i := range cfg.Neighbors {
		if cfg.Neighbors[i].ReportPort == 0 {
			cfg.Neighbors[i].ReportPort = DefaultReportPort
			updated = true
		}
	}

	return updated
}

// Validate checks the settings needed to start the agent.
func (c *Config) Validate() error {
	if !nameFormat.MatchString(c.Name) {
		return fmt.Errorf("%w: name %q must follow '<name> (ict-<number>)'", ErrInvalidConfig, c.Name)
	}
	if err := validPort("report_port", c.ReportPort); err != nil {
		return err
	}
	if c.RCSHost == "" {
		return fmt.Errorf("%w: rcs_host is required", ErrInvalidConfig)
	}
	if err := validPort("rcs_port", c.RCSPort); err != nil {
		return err
	}
	for i, n := range c.Neighbors {
		if n.Address == "" {
			return fmt.Errorf("%w: neighbors[%d].address is required", ErrInvalidConfig, i)
		}
		if _, err := models.ParseAddress(n.Address); err != nil {
			return fmt.Errorf("%w: neighbors[%d].address: %v", ErrInvalidConfig, i, err)
		}
		if err := validPort(fmt.Sprintf("neighbors[%d].report_port", i), n.ReportPort); err != nil {
			return err
		}
	}
	if _, err := c.BootstrapWait(); err != nil {
		return err
	}
	return nil
}

// BootstrapWait parses the bootstrap timeout.
func (c *Config) BootstrapWait() (time.Duration, error) {
	if c.BootstrapTimeout == "" {
		return DefaultBootstrapTimeout, nil
	}
	d, err := time.ParseDuration(c.BootstrapTimeout)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: bootstrap_timeout %q", ErrInvalidConfig, c.BootstrapTimeout)
	}
	return d, nil
}

// ListenAddress is the local host:port the report socket binds to.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.ReportPort))
}

// Resolver looks up the IP addresses of a host.
type Resolver func(host string) ([]net.IP, error)

// NeighborAddresses resolves every neighbor to its report address, in
// configuration order.
func (c *Config) NeighborAddresses(resolve Resolver) ([]models.Address, error) {
	if resolve == nil {
		resolve = net.LookupIP
	}

	out := make([]models.Address, 0, len(c.Neighbors))
	for i, n := range c.Neighbors {
		ictAddress, err := models.ParseAddress(n.Address)
		if err != nil {
			return nil, fmt.Errorf("%w: neighbors[%d]: %v", ErrInvalidConfig, i, err)
		}
		port := n.ReportPort
		if port == 0 {
			port = DefaultReportPort
		}
		addr, err := resolveAddress(resolve, ictAddress.Host(), port)
		if err != nil {
			return nil, fmt.Errorf("neighbors[%d]: %w", i, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// RCSAddress resolves the collector endpoint.
func (c *Config) RCSAddress(resolve Resolver) (models.Address, error) {
	if resolve == nil {
		resolve = net.LookupIP
	}
	addr, err := resolveAddress(resolve, c.RCSHost, c.RCSPort)
	if err != nil {
		return models.Address{}, fmt.Errorf("rcs: %w", err)
	}
	return addr, nil
}

func resolveAddress(resolve Resolver, host string, port int) (models.Address, error) {
	ips, err := resolve(host)
	if err != nil {
		return models.Address{}, fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(ips) == 0 {
		return models.Address{}, fmt.Errorf("resolve %s: no addresses", host)
	}
	ip := ips[0]
	for _, candidate := range ips {
		if candidate.To4() != nil {
			ip = candidate
			break
		}
	}
	return models.NewAddress(ip.String(), port)
}

func validPort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%w: %s %d out of range", ErrInvalidConfig, name, port)
	}
	return nil
}
