package config

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
	"github.com/turtacn/credcore/pkg/utils"
)

// RegistryFile is the on-disk form of application registrations:
//
//	apps:
//	  identity-app:
//	    keySize: 256
//	    algorithm: Ed25519
//	    hashAlgorithm: SHA256
//	    storageKey: ns-a
type RegistryFile struct {
	Apps map[string]models.CryptoConfig `yaml:"apps"`
}

// AppIDs returns the application ids in sorted order.
func (f *RegistryFile) AppIDs() []string {
	ids := make([]string, 0, len(f.Apps))
	for id := range f.Apps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ParseRegistry decodes a registry document. Unknown fields anywhere in the
// document are an error, as is an app id that HTTP registration would refuse and
// every entry that fails CryptoConfig validation.
func ParseRegistry(r io.Reader) (*RegistryFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f RegistryFile
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return &RegistryFile{Apps: map[string]models.CryptoConfig{}}, nil
		}
		return nil, errors.InvalidConfig("invalid registry document").WithCause(err)
	}
	if f.Apps == nil {
		f.Apps = map[string]models.CryptoConfig{}
	}
	for _, id := range f.AppIDs() {
		if !utils.ValidIdentifier(id) {
			return nil, errors.InvalidConfig(fmt.Sprintf("registry entry %q is not a valid application id", id))
		}
		if err := f.Apps[id].Validate(); err != nil {
			return nil, errors.InvalidConfig("registry entry "+id+" is invalid").WithCause(err)
		}
	}
	return &f, nil
}

// LoadRegistryFile reads and parses the registry document at path.
func LoadRegistryFile(path string) (*RegistryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.InvalidConfig("failed to read registry file").WithCause(err)
	}
	return ParseRegistry(bytes.NewReader(data))
}

// ApplyRegistry registers the entries of f in sorted order. With onlyNew set,
// applications already known to reg are left untouched. It stops at the first
// failing registration and returns the ids registered before it.
func ApplyRegistry(reg *service.ConfigRegistry, f *RegistryFile, onlyNew bool) ([]string, error) {
	var added []string
	for _, id := range f.AppIDs() {
		if onlyNew && reg.IsRegistered(id) {
			continue
		}
		if err := reg.Register(id, f.Apps[id]); err != nil {
			return added, err
		}
		added = append(added, id)
	}
	return added, nil
}

// RegistryWatcher registers applications added to the registry file while the
// service runs. Existing registrations are never replaced from the file.
type RegistryWatcher struct {
	path     string
	registry *service.ConfigRegistry
	logger   logger.Logger
	onAdd    func(appIDs []string)
}

// NewRegistryWatcher creates a watcher for path. onAdd, when set, is called with the
// ids registered by each reload.
func NewRegistryWatcher(path string, reg *service.ConfigRegistry, log logger.Logger, onAdd func([]string)) *RegistryWatcher {
	return &RegistryWatcher{path: path, registry: reg, logger: log.WithComponent("registry-watcher"), onAdd: onAdd}
}

// Run watches until ctx is cancelled. The parent directory is watched so that
// editors replacing the file by rename are picked up.
func (w *RegistryWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Internal("failed to create file watcher", err)
	}
	defer watcher.Close()

	target := filepath.Clean(w.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return errors.Internal("failed to watch registry directory", err)
	}
	w.logger.Info(ctx, "Watching application registry", logger.String("path", target))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			w.Reload(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "Registry watcher error", logger.String("error", err.Error()))
		}
	}
}

// Reload applies new entries from the file once.
func (w *RegistryWatcher) Reload(ctx context.Context) {
	f, err := LoadRegistryFile(w.path)
	if err != nil {
		w.logger.Error(ctx, "Failed to reload application registry", err, logger.String("path", w.path))
		return
	}
	added, err := ApplyRegistry(w.registry, f, true)
	if err != nil {
		w.logger.Error(ctx, "Failed to register application from registry file", err)
	}
	if len(added) > 0 {
		w.logger.Info(ctx, "Registered applications from registry file", logger.Any("app_ids", added))
		if w.onAdd != nil {
			w.onAdd(added)
		}
	}
}
