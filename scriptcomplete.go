// scriptcomplete.go
// Package scriptcomplete provides autocompletion of $variable and $variable.member
// references inside templated documents.
package scriptcomplete

import (
	"context"
	"errors"
	"fmt"
	stdslog "log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/ristretto"
)

// Core type definitions are in scriptcomplete_types.go.
// Exported error variables are in scriptcomplete_errors.go.

// =============================================================================
// Interfaces for Components
// =============================================================================

// ContentLocator isolates the scriptable region of a document around an offset.
type ContentLocator interface {
	// Locate returns the script content holding offset and the cursor position
	// inside it. Non-script regions are reported with ContentTypeOther.
	Locate(ctx context.Context, text, syntaxID string, offset int) (TargetContent, error)
}

// MethodFinder lists candidate members of a runtime type.
type MethodFinder interface {
	// FindMethods returns every accessible method of desc whose raw name, or
	// the property name derived from it, starts with prefix (case-sensitive).
	FindMethods(ctx context.Context, desc TypeDescriptor, prefix string) ([]MethodDescriptor, error)
}

// NamespaceRegistry is a bound value that maps namespaces to service names.
// Member completion on such a value lists names instead of introspecting it.
type NamespaceRegistry interface {
	Names(namespace string) []string
}

// =============================================================================
// Configuration Loading
// =============================================================================

// LoadConfig loads configuration from standard locations, merges with defaults,
// validates, and attempts to write a default config if needed.
func LoadConfig(logger *stdslog.Logger) (Config, error) {
	if logger == nil {
		logger = stdslog.Default()
	}
	cfg := getDefaultConfig()
	var loadedFromFile bool
	var loadErrors []error
	var configParseError error

	primaryPath, secondaryPath, pathErr := GetConfigPaths(logger)
	if pathErr != nil {
		loadErrors = append(loadErrors, pathErr)
		logger.Warn("Could not determine config paths, using defaults", "error", pathErr)
	}

	if primaryPath != "" {
		logger.Debug("Attempting to load config", "path", primaryPath)
		loaded, loadErr := LoadAndMergeConfig(primaryPath, &cfg, logger)
		if loadErr != nil {
			if strings.Contains(loadErr.Error(), "parsing config file JSON") {
				configParseError = loadErr
			}
			loadErrors = append(loadErrors, fmt.Errorf("loading %s failed: %w", primaryPath, loadErr))
			logger.Warn("Failed to load or merge config", "path", primaryPath, "error", loadErr)
		} else if loaded {
			loadedFromFile = true
			logger.Info("Loaded config", "path", primaryPath)
		}
	}

	primaryNotFoundOrFailed := !loadedFromFile || configParseError != nil
	if primaryNotFoundOrFailed && secondaryPath != "" && secondaryPath != primaryPath {
		logger.Debug("Attempting to load config from secondary path", "path", secondaryPath)
		loaded, loadErr := LoadAndMergeConfig(secondaryPath, &cfg, logger)
		if loadErr != nil {
			if configParseError == nil && strings.Contains(loadErr.Error(), "parsing config file JSON") {
				configParseError = loadErr
			}
			loadErrors = append(loadErrors, fmt.Errorf("loading %s failed: %w", secondaryPath, loadErr))
			logger.Warn("Failed to load or merge config", "path", secondaryPath, "error", loadErr)
		} else if loaded && !loadedFromFile {
			loadedFromFile = true
			logger.Info("Loaded config", "path", secondaryPath)
		}
	}

	loadSucceeded := loadedFromFile && configParseError == nil
	if !loadSucceeded {
		writePath := primaryPath
		if writePath == "" {
			writePath = secondaryPath
		}
		if writePath != "" {
			if configParseError != nil {
				logger.Warn("Existing config file failed to parse. Attempting to write default.", "path", writePath, "error", configParseError)
			} else {
				logger.Info("No valid config file found. Attempting to write default.", "path", writePath)
			}
			if err := WriteDefaultConfig(writePath, getDefaultConfig(), logger); err != nil {
				logger.Warn("Failed to write default config", "path", writePath, "error", err)
				loadErrors = append(loadErrors, fmt.Errorf("writing default config failed: %w", err))
			}
		} else {
			logger.Warn("Cannot determine path to write default config.")
			loadErrors = append(loadErrors, errors.New("cannot determine default config path"))
		}
		cfg = getDefaultConfig()
		logger.Info("Using default configuration values.")
	}

	finalCfg := cfg
	if err := finalCfg.Validate(logger); err != nil {
		logger.Error("Final configuration is invalid, falling back to pure defaults.", "error", err)
		loadErrors = append(loadErrors, fmt.Errorf("post-load config validation failed: %w", err))
		pureDefault := getDefaultConfig()
		if valErr := pureDefault.Validate(logger); valErr != nil {
			logger.Error("FATAL: Default config definition is invalid", "error", valErr)
			return pureDefault, fmt.Errorf("default config definition is invalid: %w", valErr)
		}
		finalCfg = pureDefault
	}

	if len(loadErrors) > 0 {
		return finalCfg, fmt.Errorf("%w: %w", ErrConfig, errors.Join(loadErrors...))
	}
	return finalCfg, nil
}

// =============================================================================
// Completion Engine
// =============================================================================

// Engine computes hints for one request. It holds no per-request state and
// never mutates the bindings it is given, so one Engine may serve concurrent
// requests as long as its collaborators are safe for concurrent use.
type Engine struct {
	locator  ContentLocator
	resolver *Resolver
	logger   *stdslog.Logger
}

// NewEngine wires an engine from its collaborators. namespace selects the
// registry sub-namespace listed for NamespaceRegistry values.
func NewEngine(locator ContentLocator, finder MethodFinder, namespace string, logger *stdslog.Logger) *Engine {
	if logger == nil {
		logger = stdslog.Default()
	}
	return &Engine{
		locator:  locator,
		resolver: NewResolver(finder, namespace, logger),
		logger:   logger.With("component", "Engine"),
	}
}

// GetHints returns the sorted hints for the cursor at offset in text.
// An offset outside [0, len(text)] fails with ErrInvalidOffset before any
// collaborator is called. Locator and finder errors are returned unmodified.
// Everything else that does not resolve yields an empty collection.
func (e *Engine) GetHints(ctx context.Context, env Bindings, offset int, syntaxID, text string) (Hints, error) {
	if offset < 0 || offset > len(text) {
		return Hints{}, fmt.Errorf("%w: offset %d, length %d", ErrInvalidOffset, offset, len(text))
	}

	target, err := e.locator.Locate(ctx, text, syntaxID, offset)
	if err != nil {
		return Hints{}, err
	}
	if target.Type != ContentTypeScript {
		return Hints{}, nil
	}

	cc := Classify(target.Content, target.LocalOffset)
	e.logger.Debug("Classified completion context", "syntax", syntaxID, "offset", offset, "kind", cc.Kind.String())

	switch cc.Kind {
	case BindingReference:
		return e.resolver.BindingNames(env, cc.Prefix), nil
	case MemberReference:
		if env == nil {
			return Hints{}, nil
		}
		value, ok := env.Lookup(cc.RootName)
		if !ok {
			return Hints{}, nil
		}
		return e.resolver.Members(ctx, value, cc.MemberPrefix)
	default:
		return Hints{}, nil
	}
}

// =============================================================================
// Completer Service
// =============================================================================

// Completer owns the configuration, the finders and caches, and the current
// binding environment loaded from the bindings file.
type Completer struct {
	config   Config
	configMu sync.RWMutex // Guards config, engine, packages and bindingsPath.

	engine       *Engine
	finders      *FinderSet
	catalog      *CatalogMethodFinder
	packages     *PackageMethodFinder
	cache        *MemoryCache
	store        *CatalogStore
	bindingsPath string

	env    atomic.Pointer[Environment]
	logger *stdslog.Logger
}

// NewCompleter creates a Completer from the configuration in the standard
// locations. A non-fatal ErrConfig is returned alongside a usable Completer.
func NewCompleter(logger *stdslog.Logger) (*Completer, error) {
	if logger == nil {
		logger = stdslog.Default()
	}
	serviceLogger := logger.With("service", "Completer")

	cfg, configErr := LoadConfig(serviceLogger)
	if configErr != nil && !errors.Is(configErr, ErrConfig) {
		serviceLogger.Error("Fatal error during initial config load", "error", configErr)
		return nil, configErr
	}
	c, err := NewCompleterWithConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	if configErr != nil {
		return c, configErr
	}
	return c, nil
}

// NewCompleterWithConfig creates a Completer with a specific config. A bindings
// file that fails to load is logged and leaves the environment empty.
func NewCompleterWithConfig(config Config, logger *stdslog.Logger) (*Completer, error) {
	if logger == nil {
		logger = stdslog.Default()
	}
	serviceLogger := logger.With("service", "Completer")

	config = config.clone()
	if err := config.Validate(serviceLogger); err != nil {
		return nil, fmt.Errorf("provided config validation failed: %w", err)
	}

	cache, err := NewMemoryCache(config.MemoryCacheTTL, serviceLogger)
	if err != nil {
		serviceLogger.Warn("Failed to create memory cache, in-memory caching disabled.", "error", err)
		cache = nil
	}

	var store *CatalogStore
	if config.UseDiskCache {
		if storePath, pathErr := DefaultCatalogStorePath(); pathErr != nil {
			serviceLogger.Warn("Could not determine catalog cache path, disk caching disabled.", "error", pathErr)
		} else if store, err = OpenCatalogStore(storePath, serviceLogger); err != nil {
			serviceLogger.Warn("Failed to open catalog cache, disk caching disabled.", "path", storePath, "error", err)
			store = nil
		}
	}

	c := &Completer{
		config:  config,
		catalog: NewCatalogMethodFinder(nil),
		cache:   cache,
		store:   store,
		logger:  serviceLogger,
	}
	c.packages = NewPackageMethodFinder(config.PackagesDir, serviceLogger)
	c.finders = NewFinderSet().
		Register(TypeKindCatalog, c.catalog).
		Register(TypeKindPackage, c.packages)
	c.engine = c.buildEngine(config)
	c.bindingsPath = ResolveBindingsPath(config, serviceLogger)
	c.env.Store(NewEnvironment(nil))

	if c.bindingsPath != "" {
		if err := c.ReloadBindings(); err != nil {
			serviceLogger.Warn("Initial bindings load failed, starting with an empty environment", "path", c.bindingsPath, "error", err)
		}
	}
	return c, nil
}

func (c *Completer) buildEngine(cfg Config) *Engine {
	finder := NewCachedMethodFinder(c.finders, c.cache, cfg.MemoryCacheTTL, c.logger)
	locator := NewMacroContentLocator(cfg, false, c.logger)
	return NewEngine(locator, finder, cfg.RegistryNamespace, c.logger)
}

// Close releases the caches. It is safe to call more than once.
func (c *Completer) Close() error {
	c.logger.Info("Closing Completer service")
	c.cache.Close()
	if err := c.store.Close(); err != nil {
		return fmt.Errorf("closing catalog cache: %w", err)
	}
	return nil
}

// GetHints computes hints against the current environment.
func (c *Completer) GetHints(ctx context.Context, offset int, syntaxID, text string) (Hints, error) {
	c.configMu.RLock()
	engine := c.engine
	c.configMu.RUnlock()
	return engine.GetHints(ctx, c.Environment(), offset, syntaxID, text)
}

// Environment returns the current binding environment. The returned value is
// replaced, never modified, on reload.
func (c *Completer) Environment() *Environment {
	return c.env.Load()
}

// SetEnvironment replaces the binding environment, e.g. for embedders that
// bind live Go values instead of using a bindings file.
func (c *Completer) SetEnvironment(env *Environment) {
	if env == nil {
		env = NewEnvironment(nil)
	}
	c.env.Store(env)
}

// BindingsPath returns the resolved bindings file path, empty when none.
func (c *Completer) BindingsPath() string {
	c.configMu.RLock()
	defer c.configMu.RUnlock()
	return c.bindingsPath
}

// ReloadBindings re-reads the bindings file and swaps in the new environment
// and catalog. On failure the previous environment stays active.
func (c *Completer) ReloadBindings() error {
	path := c.BindingsPath()
	if path == "" {
		return fmt.Errorf("%w: no bindings file configured", ErrBindingsFile)
	}
	spec, err := LoadBindings(path, c.store, c.logger)
	if err != nil {
		return err
	}
	env, catalog, err := BuildEnvironment(spec)
	if err != nil {
		return err
	}

	c.configMu.RLock()
	packages := c.packages
	c.configMu.RUnlock()

	c.catalog.Replace(catalog)
	packages.Forget()
	c.cache.Clear()
	c.env.Store(env)
	c.logger.Info("Bindings reloaded", "path", path, "names", len(env.Names()), "types", len(catalog))
	return nil
}

// WatchBindings reloads the bindings file on change until ctx is cancelled.
// It returns nil immediately when no bindings file is configured.
func (c *Completer) WatchBindings(ctx context.Context) error {
	path := c.BindingsPath()
	if path == "" {
		return nil
	}
	w, err := NewBindingsWatcher(path, bindingsReloadDelay, c.ReloadBindings, c.logger)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

// UpdateConfig validates newConfig and swaps it in, rebuilding the engine and
// reloading bindings when the bindings file changed.
func (c *Completer) UpdateConfig(newConfig Config) error {
	newConfig = newConfig.clone()
	if err := newConfig.Validate(c.logger); err != nil {
		c.logger.Error("Invalid configuration provided for update", "error", err)
		return fmt.Errorf("invalid configuration update: %w", err)
	}
	newPath := ResolveBindingsPath(newConfig, c.logger)

	c.configMu.Lock()
	oldPath := c.bindingsPath
	if newConfig.PackagesDir != c.config.PackagesDir {
		c.packages = NewPackageMethodFinder(newConfig.PackagesDir, c.logger)
		c.finders.Register(TypeKindPackage, c.packages)
	}
	c.config = newConfig
	c.bindingsPath = newPath
	c.engine = c.buildEngine(newConfig)
	c.configMu.Unlock()

	c.cache.SetTTL(newConfig.MemoryCacheTTL)
	c.cache.Clear()

	c.logger.Info("Completer configuration updated",
		stdslog.Group("new_config",
			stdslog.String("log_level", newConfig.LogLevel),
			stdslog.Any("markup_syntaxes", newConfig.MarkupSyntaxes),
			stdslog.Any("script_syntaxes", newConfig.ScriptSyntaxes),
			stdslog.Any("script_macros", newConfig.ScriptMacros),
			stdslog.String("registry_namespace", newConfig.RegistryNamespace),
			stdslog.String("bindings_file", newPath),
			stdslog.Int("memory_cache_ttl_seconds", newConfig.MemoryCacheTTLSeconds),
		),
	)

	if newPath != oldPath {
		if newPath == "" {
			c.env.Store(NewEnvironment(nil))
			c.catalog.Replace(nil)
			return nil
		}
		if err := c.ReloadBindings(); err != nil {
			return fmt.Errorf("reloading bindings after config update: %w", err)
		}
	}
	return nil
}

// GetCurrentConfig returns a thread-safe copy of the current configuration.
func (c *Completer) GetCurrentConfig() Config {
	c.configMu.RLock()
	defer c.configMu.RUnlock()
	return c.config.clone()
}

// SyntaxForLanguage maps an editor language id to a syntax id using the
// configured table, falling back to the language id itself.
func (c *Completer) SyntaxForLanguage(languageID string) string {
	c.configMu.RLock()
	defer c.configMu.RUnlock()
	if syntax, ok := c.config.LanguageSyntaxes[languageID]; ok {
		return syntax
	}
	return languageID
}

// MemoryCacheMetrics returns the finder cache counters, nil when disabled.
func (c *Completer) MemoryCacheMetrics() *ristretto.Metrics {
	return c.cache.Metrics()
}

// CatalogStore returns the disk cache, nil when disabled.
func (c *Completer) CatalogStore() *CatalogStore {
	return c.store
}
