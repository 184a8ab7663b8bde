// scriptcomplete/types.go
// Contains core type definitions used throughout the scriptcomplete package.
package scriptcomplete

import (
	"errors"
	"fmt"
	stdslog "log/slog"
	"net"
	"reflect"
	"slices"
	"strings"
	"time"
)

// =============================================================================
// Configuration Types & Constants
// =============================================================================

const (
	defaultLogLevel           = "info"
	defaultRegistryNamespace  = "script"
	defaultHTTPAddr           = "localhost:8089"
	defaultMemoryCacheTTLSecs = 300                // Default TTL for memory cache items (5 minutes).
	defaultConfigFileName     = "config.json"      // Default config file name.
	defaultBindingsFileName   = "bindings.yaml"    // Looked up next to the config file.
	configDirName             = "scriptcomplete"   // Subdirectory name for config/data.
	cacheSchemaVersion        = 1                  // Bump to invalidate persisted catalogs.
	bindingsReloadDelay       = 250 * time.Millisecond
)

// Config holds the active configuration for the completion service.
type Config struct {
	LogLevel              string            `json:"log_level"`
	MarkupSyntaxes        []string          `json:"markup_syntaxes"`   // Syntaxes embedding script macros.
	ScriptSyntaxes        []string          `json:"script_syntaxes"`   // Syntaxes whose whole document is script.
	ScriptMacros          []string          `json:"script_macros"`     // Macro names whose body is script.
	LanguageSyntaxes      map[string]string `json:"language_syntaxes"` // LSP languageId -> syntax id.
	RegistryNamespace     string            `json:"registry_namespace"`
	BindingsFile          string            `json:"bindings_file"`
	WatchBindings         bool              `json:"watch_bindings"`
	MemoryCacheTTLSeconds int               `json:"memory_cache_ttl_seconds"`
	MemoryCacheTTL        time.Duration     `json:"-"` // Derived duration, not from file.
	UseDiskCache          bool              `json:"use_disk_cache"`
	HTTPAddr              string            `json:"http_addr"`
	PackagesDir           string            `json:"packages_dir"` // Working directory for go/packages lookups.
}

// FileConfig represents the structure of the JSON config file for unmarshalling.
// Uses pointers to distinguish between unset fields and zero-value fields.
type FileConfig struct {
	LogLevel              *string            `json:"log_level"`
	MarkupSyntaxes        *[]string          `json:"markup_syntaxes"`
	ScriptSyntaxes        *[]string          `json:"script_syntaxes"`
	ScriptMacros          *[]string          `json:"script_macros"`
	LanguageSyntaxes      *map[string]string `json:"language_syntaxes"`
	RegistryNamespace     *string            `json:"registry_namespace"`
	BindingsFile          *string            `json:"bindings_file"`
	WatchBindings         *bool              `json:"watch_bindings"`
	MemoryCacheTTLSeconds *int               `json:"memory_cache_ttl_seconds"`
	UseDiskCache          *bool              `json:"use_disk_cache"`
	HTTPAddr              *string            `json:"http_addr"`
	PackagesDir           *string            `json:"packages_dir"`
}

// getDefaultConfig returns a new instance of the default configuration.
func getDefaultConfig() Config {
	return Config{
		LogLevel:              defaultLogLevel,
		MarkupSyntaxes:        []string{"xwiki/2.0", "xwiki/2.1"},
		ScriptSyntaxes:        []string{"velocity"},
		ScriptMacros:          []string{"velocity"},
		LanguageSyntaxes:      map[string]string{"xwiki": "xwiki/2.1", "velocity": "velocity"},
		RegistryNamespace:     defaultRegistryNamespace,
		WatchBindings:         true,
		MemoryCacheTTLSeconds: defaultMemoryCacheTTLSecs,
		MemoryCacheTTL:        time.Duration(defaultMemoryCacheTTLSecs) * time.Second,
		UseDiskCache:          true,
		HTTPAddr:              defaultHTTPAddr,
	}
}

// mergeFileConfig copies every field set in fc onto cfg and reports how many were applied.
func mergeFileConfig(cfg *Config, fc FileConfig) int {
	merged := 0
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
		merged++
	}
	if fc.MarkupSyntaxes != nil {
		cfg.MarkupSyntaxes = slices.Clone(*fc.MarkupSyntaxes)
		merged++
	}
	if fc.ScriptSyntaxes != nil {
		cfg.ScriptSyntaxes = slices.Clone(*fc.ScriptSyntaxes)
		merged++
	}
	if fc.ScriptMacros != nil {
		cfg.ScriptMacros = slices.Clone(*fc.ScriptMacros)
		merged++
	}
	if fc.LanguageSyntaxes != nil {
		cfg.LanguageSyntaxes = make(map[string]string, len(*fc.LanguageSyntaxes))
		for k, v := range *fc.LanguageSyntaxes {
			cfg.LanguageSyntaxes[k] = v
		}
		merged++
	}
	if fc.RegistryNamespace != nil {
		cfg.RegistryNamespace = *fc.RegistryNamespace
		merged++
	}
	if fc.BindingsFile != nil {
		cfg.BindingsFile = *fc.BindingsFile
		merged++
	}
	if fc.WatchBindings != nil {
		cfg.WatchBindings = *fc.WatchBindings
		merged++
	}
	if fc.MemoryCacheTTLSeconds != nil {
		cfg.MemoryCacheTTLSeconds = *fc.MemoryCacheTTLSeconds
		merged++
	}
	if fc.UseDiskCache != nil {
		cfg.UseDiskCache = *fc.UseDiskCache
		merged++
	}
	if fc.HTTPAddr != nil {
		cfg.HTTPAddr = *fc.HTTPAddr
		merged++
	}
	if fc.PackagesDir != nil {
		cfg.PackagesDir = *fc.PackagesDir
		merged++
	}
	return merged
}

// clone returns a deep copy so callers cannot mutate shared slices or maps.
func (c Config) clone() Config {
	out := c
	out.MarkupSyntaxes = slices.Clone(c.MarkupSyntaxes)
	out.ScriptSyntaxes = slices.Clone(c.ScriptSyntaxes)
	out.ScriptMacros = slices.Clone(c.ScriptMacros)
	if c.LanguageSyntaxes != nil {
		out.LanguageSyntaxes = make(map[string]string, len(c.LanguageSyntaxes))
		for k, v := range c.LanguageSyntaxes {
			out.LanguageSyntaxes[k] = v
		}
	}
	return out
}

// Validate checks if configuration values are valid, applying defaults for some fields.
func (c *Config) Validate(logger *stdslog.Logger) error {
	var validationErrors []error
	if logger == nil {
		logger = stdslog.Default()
	}
	tempDefault := getDefaultConfig()

	if len(c.MarkupSyntaxes) == 0 && len(c.ScriptSyntaxes) == 0 {
		validationErrors = append(validationErrors, errors.New("at least one of markup_syntaxes or script_syntaxes must be set"))
	}
	if len(c.MarkupSyntaxes) > 0 && len(c.ScriptMacros) == 0 {
		logger.Warn("Config validation: script_macros is empty, applying default.", "default", tempDefault.ScriptMacros)
		c.ScriptMacros = slices.Clone(tempDefault.ScriptMacros)
	}
	for _, m := range c.ScriptMacros {
		if strings.TrimSpace(m) == "" || strings.ContainsAny(m, " {}/") {
			validationErrors = append(validationErrors, fmt.Errorf("invalid script macro name %q", m))
		}
	}
	if c.LanguageSyntaxes == nil {
		c.LanguageSyntaxes = tempDefault.LanguageSyntaxes
	}
	if strings.TrimSpace(c.RegistryNamespace) == "" {
		logger.Warn("Config validation: registry_namespace is empty, applying default.", "default", defaultRegistryNamespace)
		c.RegistryNamespace = defaultRegistryNamespace
	}
	if c.MemoryCacheTTLSeconds <= 0 {
		logger.Warn("Config validation: memory_cache_ttl_seconds is not positive, applying default.", "configured_value", c.MemoryCacheTTLSeconds, "default", tempDefault.MemoryCacheTTLSeconds)
		c.MemoryCacheTTLSeconds = tempDefault.MemoryCacheTTLSeconds
	}
	// Derive the time.Duration from the seconds value after validation/defaulting
	c.MemoryCacheTTL = time.Duration(c.MemoryCacheTTLSeconds) * time.Second

	if strings.TrimSpace(c.HTTPAddr) == "" {
		c.HTTPAddr = defaultHTTPAddr
	} else if _, _, err := net.SplitHostPort(c.HTTPAddr); err != nil {
		validationErrors = append(validationErrors, fmt.Errorf("invalid http_addr %q: %w", c.HTTPAddr, err))
	}

	if c.LogLevel == "" {
		logger.Warn("Config validation: log_level is empty, applying default.", "default", defaultLogLevel)
		c.LogLevel = defaultLogLevel
	} else if _, err := ParseLogLevel(c.LogLevel); err != nil {
		logger.Warn("Config validation: Invalid log_level found, applying default.", "configured_value", c.LogLevel, "default", defaultLogLevel, "error", err)
		validationErrors = append(validationErrors, fmt.Errorf("invalid log_level '%s': %w", c.LogLevel, err))
		c.LogLevel = defaultLogLevel
	}

	if len(validationErrors) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(validationErrors...))
	}
	return nil
}

// =============================================================================
// Hint & Context Types
// =============================================================================

// Hint is a single completion suggestion. Name is the text to insert,
// Signature the human readable description shown next to it.
type Hint struct {
	Name      string `json:"name" yaml:"name"`
	Signature string `json:"signature" yaml:"signature"`
}

// ContextKind tags the variants of CompletionContext.
type ContextKind int

const (
	NoMatch ContextKind = iota
	BindingReference
	MemberReference
)

func (k ContextKind) String() string {
	switch k {
	case BindingReference:
		return "BindingReference"
	case MemberReference:
		return "MemberReference"
	default:
		return "NoMatch"
	}
}

// CompletionContext is the classification of the text before the cursor.
// Prefix is set for BindingReference; RootName and MemberPrefix for MemberReference.
type CompletionContext struct {
	Kind         ContextKind
	Prefix       string
	RootName     string
	MemberPrefix string
}

// =============================================================================
// Collaborator Types
// =============================================================================

// ContentType tells whether located content is script the engine understands.
type ContentType int

const (
	ContentTypeOther ContentType = iota
	ContentTypeScript
)

func (t ContentType) String() string {
	if t == ContentTypeScript {
		return "SCRIPT"
	}
	return "OTHER"
}

// TargetContent is the scriptable region around the cursor.
type TargetContent struct {
	Content     string
	LocalOffset int // Cursor offset inside Content, in bytes.
	Type        ContentType
}

// TypeKind selects which MethodFinder serves a TypeDescriptor.
type TypeKind string

const (
	TypeKindReflect TypeKind = "reflect"
	TypeKindCatalog TypeKind = "catalog"
	TypeKindPackage TypeKind = "package"
)

// TypeDescriptor identifies the runtime type of a bound value.
type TypeDescriptor struct {
	Kind    TypeKind
	Name    string
	PkgPath string
	Reflect reflect.Type `json:"-"`
}

// Key is a stable identifier used for cache keys and logging.
func (d TypeDescriptor) Key() string {
	if d.PkgPath != "" {
		return fmt.Sprintf("%s:%s.%s", d.Kind, d.PkgPath, d.Name)
	}
	return fmt.Sprintf("%s:%s", d.Kind, d.Name)
}

// MethodDescriptor describes one callable member found by a MethodFinder.
// An empty ReturnType means the method returns nothing.
type MethodDescriptor struct {
	Name           string `yaml:"name" toml:"name"`
	ParameterCount int    `yaml:"params" toml:"params"`
	ReturnType     string `yaml:"returns" toml:"returns"`
}

// =============================================================================
// Cache Types
// =============================================================================

// CachedCatalogEntry is the bbolt record for a parsed bindings file.
type CachedCatalogEntry struct {
	SchemaVersion int    // Version of the cache structure itself.
	FileHash      string // SHA-256 of the bindings file when cached.
	CatalogBlob   []byte // zstd-compressed, gob-encoded BindingsSpec.
}
