package fork

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ForkGo/global"
)

// Config holds the immutable-once-loaded per-fork policy parameters,
// expressed in Go-native durations. A *Config is handed to
// Create and read-only from then on;
// reloading config (via the HTTP PATCH /api/v1/config endpoint) swaps
// in a new *Config for contexts created afterward, it never mutates
// one a running ForkContext already holds.
type Config struct {
	DeliveryTimeout     time.Duration
	UrgentTimeout       time.Duration
	PushResponseTimeout time.Duration

	ForkLate             bool
	ForkOneResponse      bool
	ForkNoGlobalDecline  bool
	TreatDeclineAsUrgent bool
	RemoveToTag          bool

	// UrgentCodes are status codes worth forwarding upstream before all
	// branches have answered. Loading a config file with
	// treat-decline-as-urgent set appends 603; setting
	// TreatDeclineAsUrgent on a Config directly leaves UrgentCodes as
	// it is.
	UrgentCodes []int
}

// jsonConfig is Config's wire shape.
type jsonConfig struct {
	DeliveryTimeoutSec     int   `json:"delivery-timeout"`
	UrgentTimeoutSec       int   `json:"urgent-timeout"`
	PushResponseTimeoutSec int   `json:"push-response-timeout"`
	ForkLate               bool  `json:"fork-late"`
	ForkOneResponse        bool  `json:"fork-one-response"`
	ForkNoGlobalDecline    bool  `json:"fork-no-global-decline"`
	TreatDeclineAsUrgent   bool  `json:"treat-decline-as-urgent"`
	RemoveToTag            bool  `json:"remove-to-tag"`
	UrgentCodes            []int `json:"urgent-codes"`
}

// DefaultUrgentCodes are worth forwarding early: auth challenges and a
// handful of client failures that usually mean "try a different
// contact, don't wait for it."
var DefaultUrgentCodes = []int{401, 407, 415, 420, 423, 480, 486, 487, 489, 493}

// DefaultConfig returns conservative defaults: no late forking, full
// response aggregation, global 6xx decline honored.
func DefaultConfig() *Config {
	return &Config{
		DeliveryTimeout:     30 * time.Second,
		UrgentTimeout:       5 * time.Second,
		PushResponseTimeout: 20 * time.Second,
		UrgentCodes:         append([]int(nil), DefaultUrgentCodes...),
	}
}

func (c *Config) toJSON() jsonConfig {
	return jsonConfig{
		DeliveryTimeoutSec:     int(c.DeliveryTimeout / time.Second),
		UrgentTimeoutSec:       int(c.UrgentTimeout / time.Second),
		PushResponseTimeoutSec: int(c.PushResponseTimeout / time.Second),
		ForkLate:               c.ForkLate,
		ForkOneResponse:        c.ForkOneResponse,
		ForkNoGlobalDecline:    c.ForkNoGlobalDecline,
		TreatDeclineAsUrgent:   c.TreatDeclineAsUrgent,
		RemoveToTag:            c.RemoveToTag,
		UrgentCodes:            c.UrgentCodes,
	}
}

func fromJSON(jc jsonConfig) *Config {
	c := &Config{
		DeliveryTimeout:      time.Duration(jc.DeliveryTimeoutSec) * time.Second,
		UrgentTimeout:        time.Duration(jc.UrgentTimeoutSec) * time.Second,
		PushResponseTimeout:  time.Duration(jc.PushResponseTimeoutSec) * time.Second,
		ForkLate:             jc.ForkLate,
		ForkOneResponse:      jc.ForkOneResponse,
		ForkNoGlobalDecline:  jc.ForkNoGlobalDecline,
		TreatDeclineAsUrgent: jc.TreatDeclineAsUrgent,
		RemoveToTag:          jc.RemoveToTag,
		UrgentCodes:          jc.UrgentCodes,
	}
	if len(c.UrgentCodes) == 0 {
		c.UrgentCodes = append([]int(nil), DefaultUrgentCodes...)
	}
	if c.TreatDeclineAsUrgent {
		c.UrgentCodes = append(c.UrgentCodes, 603)
	}
	return c
}

// IsUrgent reports whether sc is one of this config's urgent codes.
func (c *Config) IsUrgent(sc int) bool {
	for _, u := range c.UrgentCodes {
		if u == sc {
			return true
		}
	}
	return false
}

// ConfigStore holds the live Config, reloadable from a JSON file
// without restarting the process. Modeled on sip.RoutingEngine: a
// mutex-protected pointer swapped wholesale on ReloadConfig, read via
// Get under RLock.
type ConfigStore struct {
	mu   sync.RWMutex
	path string
	cfg  *Config
}

// NewConfigStore returns a store seeded with DefaultConfig, reading
// path relative to the executable if it exists.
func NewConfigStore(path string) *ConfigStore {
	s := &ConfigStore{path: path, cfg: DefaultConfig()}
	s.ReloadConfig()
	return s
}

// Get returns the current Config. Callers must not mutate it.
func (s *ConfigStore) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// ReloadConfig re-reads the config file from disk, logging and keeping
// the previous Config on any read or parse error.
func (s *ConfigStore) ReloadConfig() {
	data, err := os.ReadFile(s.resolvePath())
	if err != nil {
		global.LogWarning(global.LTConfiguration, fmt.Sprintf("config file not read (%v) - keeping current config", err))
		return
	}
	s.ReadConfig(data)
}

// ReadConfig parses data as JSON config and swaps it in on success.
func (s *ConfigStore) ReadConfig(data []byte) {
	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		global.LogWarning(global.LTConfiguration, fmt.Sprintf("invalid config JSON: %v - skipped", err))
		return
	}
	cfg := fromJSON(jc)
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	global.LogInfo(global.LTConfiguration, "fork config reloaded")
}

// MarshalJSON dumps the current config, for GET /api/v1/config.
func (s *ConfigStore) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s.cfg.toJSON())
}

func (s *ConfigStore) resolvePath() string {
	if filepath.IsAbs(s.path) {
		return s.path
	}
	exePath, err := os.Executable()
	if err != nil {
		return s.path
	}
	return filepath.Join(filepath.Dir(exePath), s.path)
}
