package service

import (
	"fmt"
	"sort"
	"sync"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/utils"
)

// AppRegistration pairs an application id with its crypto configuration.
type AppRegistration struct {
	AppID  string              `json:"appId" yaml:"appId"`
	Config models.CryptoConfig `json:"config" yaml:"config"`
}

// ConfigRegistry maps application ids to their CryptoConfig. It is an explicitly
// owned object: callers construct one at startup and hand it to consumers.
// Writes are expected during startup and configuration; reads dominate afterwards.
// ConfigRegistry 将应用程序 ID 映射到其 CryptoConfig。
type ConfigRegistry struct {
	mu         sync.RWMutex
	byApp      map[string]models.CryptoConfig
	namespaces map[string]string // storage namespace -> app id
}

// NewConfigRegistry creates an empty registry.
func NewConfigRegistry() *ConfigRegistry {
	return &ConfigRegistry{
		byApp:      make(map[string]models.CryptoConfig),
		namespaces: make(map[string]string),
	}
}

// Register inserts or replaces the config for appID. It fails with DuplicateNamespace
// when another application already holds cfg.StorageNamespace.
func (r *ConfigRegistry) Register(appID string, cfg models.CryptoConfig) error {
	return r.register(appID, cfg, true)
}

// Insert is Register without replacement: an appID that is already registered
// fails with AppExists and its config is left untouched.
// Insert 仅插入新的应用配置，已注册的应用返回 AppExists。
func (r *ConfigRegistry) Insert(appID string, cfg models.CryptoConfig) error {
	return r.register(appID, cfg, false)
}

func (r *ConfigRegistry) register(appID string, cfg models.CryptoConfig, replace bool) error {
	if !utils.ValidIdentifier(appID) {
		return errors.InvalidConfig(fmt.Sprintf("appId %q is not a valid identifier", appID))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.byApp[appID]
	if exists && !replace {
		return errors.AppExists(appID)
	}
	if holder, ok := r.namespaces[cfg.StorageNamespace]; ok && holder != appID {
		return errors.DuplicateNamespace(cfg.StorageNamespace, holder)
	}
	if exists && prev.StorageNamespace != cfg.StorageNamespace {
		delete(r.namespaces, prev.StorageNamespace)
	}
	r.byApp[appID] = cfg
	r.namespaces[cfg.StorageNamespace] = appID
	return nil
}

// Resolve returns the config registered for appID.
func (r *ConfigRegistry) Resolve(appID string) (models.CryptoConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.byApp[appID]
	if !ok {
		return models.CryptoConfig{}, errors.UnknownApplication(appID)
	}
	return cfg, nil
}

// IsRegistered reports whether appID has a config.
func (r *ConfigRegistry) IsRegistered(appID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byApp[appID]
	return ok
}

// Apps returns a snapshot of every registration sorted by app id.
func (r *ConfigRegistry) Apps() []AppRegistration {
	r.mu.RLock()
	out := make([]AppRegistration, 0, len(r.byApp))
	for id, cfg := range r.byApp {
		out = append(out, AppRegistration{AppID: id, Config: cfg})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AppID < out[j].AppID })
	return out
}
