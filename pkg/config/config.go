// Package config loads webrtckit settings from a TOML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pion/logging"

	"github.com/thesyncim/webrtckit/internal/ffi"
	"github.com/thesyncim/webrtckit/pkg/pc"
)

// EnvLogLevel overrides [log] level.
const EnvLogLevel = "WEBRTCKIT_LOG_LEVEL"

// Engine names accepted in [bridge] engine.
const (
	EnginePion   = "pion"
	EngineNative = "native"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the top-level configuration.
type Config struct {
	Log    LogConfig            `toml:"log"`
	Bridge BridgeConfig         `toml:"bridge"`
	Peer   PeerConnectionConfig `toml:"peer_connection"`
}

// LogConfig sets the default level of every logger scope.
type LogConfig struct {
	// Level is one of disabled, error, warn, info, debug, trace.
	Level string `toml:"level"`
}

// BridgeConfig selects the engine.
type BridgeConfig struct {
	// Engine is "pion" for the in-process engine or "native" for the
	// bridge library.
	Engine string `toml:"engine"`

	// LibraryPath locates the native bridge library. Empty searches the
	// default locations.
	LibraryPath string `toml:"library_path,omitempty"`
}

// ICEServerConfig is one [[peer_connection.ice_servers]] entry.
type ICEServerConfig struct {
	URLs       []string `toml:"urls"`
	Username   string   `toml:"username,omitempty"`
	Credential string   `toml:"credential,omitempty"`
}

// PeerConnectionConfig is the default configuration for new peer
// connections.
type PeerConnectionConfig struct {
	ICEServers           []ICEServerConfig `toml:"ice_servers"`
	ICETransportPolicy   string            `toml:"ice_transport_policy"`
	BundlePolicy         string            `toml:"bundle_policy"`
	RTCPMuxPolicy        string            `toml:"rtcp_mux_policy"`
	SDPSemantics         string            `toml:"sdp_semantics"`
	ICECandidatePoolSize int               `toml:"ice_candidate_pool_size"`
}

// Default returns a Config matching pc.DefaultConfiguration.
func Default() *Config {
	d := pc.DefaultConfiguration()
	cfg := &Config{
		Log:    LogConfig{Level: "info"},
		Bridge: BridgeConfig{Engine: EnginePion},
		Peer: PeerConnectionConfig{
			ICETransportPolicy:   d.ICETransportPolicy,
			BundlePolicy:         d.BundlePolicy,
			RTCPMuxPolicy:        d.RTCPMuxPolicy,
			SDPSemantics:         d.SDPSemantics,
			ICECandidatePoolSize: d.ICECandidatePoolSize,
		},
	}
	for _, s := range d.ICEServers {
		cfg.Peer.ICEServers = append(cfg.Peer.ICEServers, ICEServerConfig{
			URLs:       append([]string(nil), s.URLs...),
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return cfg
}

// DefaultPath returns $XDG_CONFIG_HOME/webrtckit/config.toml, falling back
// to ~/.config.
func DefaultPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("determining home directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "webrtckit", "config.toml"), nil
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		servers := cfg.clearServers()
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file not found: %w", err)
			}
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: unknown keys %v in %s", ErrInvalid, undecoded, path)
		}
		cfg.restoreServers(md, servers)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML text over the defaults. Environment overrides are
// not applied.
func Parse(data string) (*Config, error) {
	cfg := Default()
	servers := cfg.clearServers()
	md, err := toml.Decode(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.restoreServers(md, servers)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as TOML, creating parent directories.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// clearServers empties the ICE server list before decoding. The decoder
// merges [[peer_connection.ice_servers]] entries into existing elements, so
// a listed server would otherwise inherit fields of the default one.
func (c *Config) clearServers() []ICEServerConfig {
	servers := c.Peer.ICEServers
	c.Peer.ICEServers = nil
	return servers
}

func (c *Config) restoreServers(md toml.MetaData, servers []ICEServerConfig) {
	if !md.IsDefined("peer_connection", "ice_servers") {
		c.Peer.ICEServers = servers
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(ffi.EnvLibraryPath); v != "" {
		c.Bridge.LibraryPath = v
	}
}

// Validate checks enumerated values.
func (c *Config) Validate() error {
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Bridge.Engine {
	case EnginePion, EngineNative:
	default:
		return fmt.Errorf("%w: bridge engine %q", ErrInvalid, c.Bridge.Engine)
	}

	p := c.Peer
	checks := []struct {
		name, value string
		allowed     []string
	}{
		{"ice_transport_policy", p.ICETransportPolicy, []string{"all", "relay"}},
		{"bundle_policy", p.BundlePolicy, []string{"balanced", "max-compat", "max-bundle"}},
		{"rtcp_mux_policy", p.RTCPMuxPolicy, []string{"require", "negotiate"}},
		{"sdp_semantics", p.SDPSemantics, []string{"unified-plan", "plan-b"}},
	}
	for _, ch := range checks {
		if !contains(ch.allowed, ch.value) {
			return fmt.Errorf("%w: %s %q", ErrInvalid, ch.name, ch.value)
		}
	}
	if p.ICECandidatePoolSize < 0 {
		return fmt.Errorf("%w: ice_candidate_pool_size %d", ErrInvalid, p.ICECandidatePoolSize)
	}
	for i, s := range p.ICEServers {
		if len(s.URLs) == 0 {
			return fmt.Errorf("%w: ice_servers[%d] has no urls", ErrInvalid, i)
		}
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// PeerConnection converts the [peer_connection] table.
func (c *Config) PeerConnection() pc.Configuration {
	p := c.Peer
	out := pc.Configuration{
		ICETransportPolicy:   p.ICETransportPolicy,
		BundlePolicy:         p.BundlePolicy,
		RTCPMuxPolicy:        p.RTCPMuxPolicy,
		SDPSemantics:         p.SDPSemantics,
		ICECandidatePoolSize: p.ICECandidatePoolSize,
	}
	for _, s := range p.ICEServers {
		out.ICEServers = append(out.ICEServers, pc.ICEServer{
			URLs:       append([]string(nil), s.URLs...),
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return out
}

// LoggerFactory returns a pion logger factory at the configured level.
func (c *Config) LoggerFactory() logging.LoggerFactory {
	f := logging.NewDefaultLoggerFactory()
	if lvl, err := parseLevel(c.Log.Level); err == nil {
		f.DefaultLogLevel = lvl
	}
	return f
}

func parseLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(s) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info", "":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	}
	return 0, fmt.Errorf("%w: log level %q", ErrInvalid, s)
}
