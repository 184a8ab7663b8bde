// scriptcomplete/utils.go
// Contains utility functions for config files, paths, positions and hashing.
package scriptcomplete

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// ============================================================================
// Logging Helpers
// ============================================================================

// ParseLogLevel converts a level name (debug, info, warn, error) to a slog.Level.
func ParseLogLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "err":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", levelStr)
	}
}

// ============================================================================
// Configuration File Helpers
// ============================================================================

// GetConfigPaths returns the primary (XDG) and secondary (~/.config) config file paths.
func GetConfigPaths(logger *slog.Logger) (primary, secondary string, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	var pathErrors []error
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		primary = filepath.Join(xdg, configDirName, defaultConfigFileName)
	} else if dir, cfgErr := os.UserConfigDir(); cfgErr == nil {
		primary = filepath.Join(dir, configDirName, defaultConfigFileName)
	} else {
		logger.Debug("Could not determine user config dir", "error", cfgErr)
		pathErrors = append(pathErrors, cfgErr)
	}
	if home, homeErr := os.UserHomeDir(); homeErr == nil {
		secondary = filepath.Join(home, ".config", configDirName, defaultConfigFileName)
	} else {
		logger.Debug("Could not determine home dir", "error", homeErr)
		pathErrors = append(pathErrors, homeErr)
	}
	if primary == "" && secondary == "" {
		return "", "", fmt.Errorf("%w: cannot determine config directory: %w", ErrConfig, errors.Join(pathErrors...))
	}
	return primary, secondary, nil
}

// LoadAndMergeConfig reads the JSON file at path and merges set fields onto cfg.
// A missing file is not an error and reports loaded=false.
func LoadAndMergeConfig(path string, cfg *Config, logger *slog.Logger) (loaded bool, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("Config file not found", "path", path)
			return false, nil
		}
		return false, fmt.Errorf("reading config file %q: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		logger.Warn("Config file is empty, ignoring", "path", path)
		return false, nil
	}
	var fileCfg FileConfig
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return false, fmt.Errorf("parsing config file JSON %q: %w", path, err)
	}
	merged := mergeFileConfig(cfg, fileCfg)
	logger.Debug("Merged config file", "path", path, "fields_merged", merged)
	return true, nil
}

// WriteDefaultConfig writes cfg as indented JSON, creating parent directories.
// An existing file is left untouched.
func WriteDefaultConfig(path string, cfg Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(path); err == nil {
		logger.Debug("Config file already exists, not overwriting", "path", path)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating config dir for %q: %w", path, err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("writing default config %q: %w", path, err)
	}
	logger.Info("Wrote default config", "path", path)
	return nil
}

// ResolveBindingsPath returns the configured bindings file, or bindings.yaml
// next to the primary config file when that exists. Empty means none.
func ResolveBindingsPath(cfg Config, logger *slog.Logger) string {
	if cfg.BindingsFile != "" {
		if abs, err := filepath.Abs(cfg.BindingsFile); err == nil {
			return abs
		}
		return cfg.BindingsFile
	}
	primary, secondary, err := GetConfigPaths(logger)
	if err != nil {
		return ""
	}
	for _, p := range []string{primary, secondary} {
		if p == "" {
			continue
		}
		candidate := filepath.Join(filepath.Dir(p), defaultBindingsFileName)
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate
		}
	}
	return ""
}

// ============================================================================
// URI Helpers
// ============================================================================

// ValidateAndGetFilePath converts a file:// URI (or a plain path) to a cleaned absolute path.
func ValidateAndGetFilePath(uriOrPath string, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if uriOrPath == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidURI)
	}
	path := uriOrPath
	if strings.Contains(uriOrPath, "://") {
		u, err := url.Parse(uriOrPath)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidURI, err)
		}
		if u.Scheme != "file" {
			return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURI, u.Scheme)
		}
		path = u.Path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		logger.Warn("Could not make path absolute", "path", path, "error", err)
		return "", fmt.Errorf("%w: %w", ErrInvalidURI, err)
	}
	return filepath.Clean(abs), nil
}

// ============================================================================
// LSP Position Conversion Helpers
// ============================================================================

// LSPPosition represents a 0-based line/character offset (LSP standard: UTF-16).
type LSPPosition struct {
	Line      uint32 `json:"line"`      // 0-based
	Character uint32 `json:"character"` // 0-based, UTF-16 offset
}

// LspPositionToBytePosition converts 0-based LSP line/character (UTF-16) to
// 1-based line/column (bytes) and 0-based byte offset.
func LspPositionToBytePosition(content []byte, lspPos LSPPosition, logger *slog.Logger) (line, col, byteOffset int, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if content == nil {
		return 0, 0, -1, fmt.Errorf("%w: file content is nil", ErrPositionConversion)
	}
	targetLine := int(lspPos.Line)
	targetUTF16Char := int(lspPos.Character)

	currentLine := 0
	currentByteOffset := 0
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), len(content)+1)
	for scanner.Scan() {
		lineTextBytes := scanner.Bytes()
		lineLengthBytes := len(lineTextBytes)
		if currentLine == targetLine {
			byteOffsetInLine, convErr := Utf16OffsetToBytes(lineTextBytes, targetUTF16Char)
			if convErr != nil {
				if errors.Is(convErr, ErrPositionOutOfRange) { // Clamp to line end on out-of-range error.
					logger.Warn("UTF16 offset out of range, clamping to line end",
						"line", targetLine,
						"char", targetUTF16Char,
						"error", convErr)
					byteOffsetInLine = lineLengthBytes
				} else {
					return 0, 0, -1, fmt.Errorf("failed converting UTF16 to byte offset on line %d: %w", currentLine, convErr)
				}
			}
			return currentLine + 1, byteOffsetInLine + 1, currentByteOffset + byteOffsetInLine, nil
		}
		currentByteOffset += lineLengthBytes + 1 // Assume \n
		currentLine++
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, -1, fmt.Errorf("%w: error scanning file content: %w", ErrPositionConversion, err)
	}

	// Cursor on the line after the last line of content.
	if currentLine == targetLine {
		if targetUTF16Char == 0 {
			if currentByteOffset > len(content) {
				currentByteOffset = len(content)
			}
			return currentLine + 1, 1, currentByteOffset, nil
		}
		return 0, 0, -1, fmt.Errorf("%w: invalid character offset %d on line %d (after last line with content)", ErrPositionOutOfRange, targetUTF16Char, targetLine)
	}
	return 0, 0, -1, fmt.Errorf("%w: LSP line %d not found in file (total lines scanned %d)", ErrPositionOutOfRange, targetLine, currentLine)
}

// Utf16OffsetToBytes converts a 0-based UTF-16 offset within a line to a 0-based byte offset.
func Utf16OffsetToBytes(line []byte, utf16Offset int) (int, error) {
	if utf16Offset < 0 {
		return 0, fmt.Errorf("%w: invalid utf16Offset: %d (must be >= 0)", ErrInvalidPositionInput, utf16Offset)
	}
	if utf16Offset == 0 {
		return 0, nil
	}

	byteOffset := 0
	currentUTF16Offset := 0
	for byteOffset < len(line) {
		r, size := utf8.DecodeRune(line[byteOffset:])
		if r == utf8.RuneError && size <= 1 {
			return byteOffset, fmt.Errorf("%w at byte offset %d", ErrInvalidUTF8, byteOffset)
		}
		utf16Units := 1
		if r > 0xFFFF {
			utf16Units = 2
		} // Surrogate pairs require 2 units.
		if currentUTF16Offset+utf16Units > utf16Offset {
			break
		}
		currentUTF16Offset += utf16Units
		byteOffset += size
		if currentUTF16Offset == utf16Offset {
			break
		}
	}
	if currentUTF16Offset < utf16Offset && byteOffset >= len(line) {
		return len(line), fmt.Errorf("%w: utf16Offset %d is beyond the line length in UTF-16 units (%d)", ErrPositionOutOfRange, utf16Offset, currentUTF16Offset)
	}
	return byteOffset, nil
}

// LineColToByteOffset converts a 1-based line and 1-based byte column to a byte offset.
func LineColToByteOffset(content []byte, line, col int) (int, error) {
	if line <= 0 {
		return -1, fmt.Errorf("%w: line number %d must be >= 1", ErrInvalidPositionInput, line)
	}
	if col <= 0 {
		return -1, fmt.Errorf("%w: column number %d must be >= 1", ErrInvalidPositionInput, col)
	}
	offset := 0
	for l := 1; l < line; l++ {
		idx := bytes.IndexByte(content[offset:], '\n')
		if idx < 0 {
			return -1, fmt.Errorf("%w: line number %d exceeds file line count %d", ErrPositionOutOfRange, line, l)
		}
		offset += idx + 1
	}
	lineEnd := len(content)
	if idx := bytes.IndexByte(content[offset:], '\n'); idx >= 0 {
		lineEnd = offset + idx
	}
	target := offset + col - 1
	if target > lineEnd {
		return -1, fmt.Errorf("%w: column %d beyond end of line %d", ErrPositionOutOfRange, col, line)
	}
	return target, nil
}

// ============================================================================
// Hash Helpers
// ============================================================================

// hashFileContent calculates the SHA256 hash of a single file.
func hashFileContent(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
