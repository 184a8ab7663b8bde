// scriptcomplete/scriptcomplete_utils_test.go
package scriptcomplete

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{" INFO ", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"err", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.want, got)
		})
	}
}

// ============================================================================
// Position Conversion
// ============================================================================

func TestLineColToByteOffset(t *testing.T) {
	content := []byte("ab\ncd\n")
	tests := []struct {
		name      string
		line, col int
		want      int
		wantErr   error
	}{
		{"Start", 1, 1, 0, nil},
		{"End of first line", 1, 3, 2, nil},
		{"Second line", 2, 2, 4, nil},
		{"Empty last line", 3, 1, 6, nil},
		{"Line past end", 4, 1, -1, ErrPositionOutOfRange},
		{"Column past end", 1, 4, -1, ErrPositionOutOfRange},
		{"Zero line", 0, 1, -1, ErrInvalidPositionInput},
		{"Zero column", 1, 0, -1, ErrInvalidPositionInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LineColToByteOffset(content, tt.line, tt.col)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUtf16OffsetToBytes(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		offset  int
		want    int
		wantErr error
	}{
		{"ASCII start", "hello", 0, 0, nil},
		{"ASCII middle", "hello", 2, 2, nil},
		{"ASCII end", "hello", 5, 5, nil},
		{"ASCII past end", "hello", 6, 5, ErrPositionOutOfRange},
		{"Negative", "hello", -1, 0, ErrInvalidPositionInput},
		{"2-byte before", "héllo", 1, 1, nil},
		{"2-byte after", "héllo", 2, 3, nil},
		{"2-byte end", "héllo", 5, 6, nil},
		{"2-byte past end", "héllo", 6, 6, ErrPositionOutOfRange},
		{"3-byte after", "€ euro", 1, 3, nil},
		{"3-byte end", "€ euro", 6, 8, nil},
		{"3-byte past end", "€ euro", 7, 8, ErrPositionOutOfRange},
		{"Inside surrogate pair", "\U0001F602笑", 1, 0, nil},
		{"After surrogate pair", "\U0001F602笑", 2, 4, nil},
		{"After second rune", "\U0001F602笑", 3, 7, nil},
		{"Surrogate line past end", "\U0001F602笑", 4, 7, ErrPositionOutOfRange},
		{"Empty line start", "", 0, 0, nil},
		{"Empty line past end", "", 1, 0, ErrPositionOutOfRange},
		{"Invalid UTF-8", "a\xffb", 2, 1, ErrInvalidUTF8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Utf16OffsetToBytes([]byte(tt.line), tt.offset)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLspPositionToBytePosition(t *testing.T) {
	content := []byte("line one\ntwo é \U0001F602\nthree €\n")
	tests := []struct {
		name                           string
		content                        []byte
		pos                            LSPPosition
		wantLine, wantCol, wantByteOff int
		wantErr                        error
	}{
		{"Start of file", content, LSPPosition{0, 0}, 1, 1, 0, nil},
		{"Middle line 1", content, LSPPosition{0, 5}, 1, 6, 5, nil},
		{"Before accent", content, LSPPosition{1, 4}, 2, 5, 13, nil},
		{"After accent", content, LSPPosition{1, 5}, 2, 7, 15, nil},
		{"Inside surrogate pair", content, LSPPosition{1, 7}, 2, 8, 16, nil},
		{"End line 2", content, LSPPosition{1, 8}, 2, 12, 20, nil},
		{"End line 3", content, LSPPosition{2, 7}, 3, 10, 30, nil},
		{"Line after trailing newline", content, LSPPosition{3, 0}, 4, 1, 31, nil},
		{"Clamps past line end", content, LSPPosition{0, 10}, 1, 9, 8, nil},
		{"Clamps past line end with surrogates", content, LSPPosition{1, 9}, 2, 12, 20, nil},
		{"Char on line after last", content, LSPPosition{3, 1}, 0, 0, -1, ErrPositionOutOfRange},
		{"Line past end", content, LSPPosition{4, 0}, 0, 0, -1, ErrPositionOutOfRange},
		{"Empty content", []byte(""), LSPPosition{0, 0}, 1, 1, 0, nil},
		{"Nil content", nil, LSPPosition{0, 0}, 0, 0, -1, ErrPositionConversion},
		{"Invalid UTF-8", []byte("a\xffb"), LSPPosition{0, 2}, 0, 0, -1, ErrInvalidUTF8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, col, off, err := LspPositionToBytePosition(tt.content, tt.pos, nil)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantLine, line)
			assert.Equal(t, tt.wantCol, col)
			assert.Equal(t, tt.wantByteOff, off)
		})
	}
}

// ============================================================================
// Paths and Files
// ============================================================================

func TestValidateAndGetFilePath(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"File URI", "file:///tmp/pages/../Main.vm", "/tmp/Main.vm", false},
		{"Escaped file URI", "file:///tmp/My%20Page.xwiki", "/tmp/My Page.xwiki", false},
		{"Absolute path", "/tmp/a/./b.vm", "/tmp/a/b.vm", false},
		{"Relative path", "page.vm", filepath.Join(cwd, "page.vm"), false},
		{"Other scheme", "https://example.com/page.vm", "", true},
		{"Empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateAndGetFilePath(tt.in, nil)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidURI)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveBindingsPath(t *testing.T) {
	home := isolateUserDirs(t)
	cfg := getDefaultConfig()

	assert.Empty(t, ResolveBindingsPath(cfg, nil))

	next := filepath.Join(home, ".config", configDirName, defaultBindingsFileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(next), 0755))
	require.NoError(t, os.WriteFile(next, []byte("bindings: {}\n"), 0644))
	assert.Equal(t, next, ResolveBindingsPath(cfg, nil))

	cfg.BindingsFile = "/srv/wiki/../bindings.toml"
	assert.Equal(t, "/srv/bindings.toml", ResolveBindingsPath(cfg, nil))
}

func TestConfigFileHelpers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", defaultConfigFileName)

	require.NoError(t, WriteDefaultConfig(path, getDefaultConfig(), nil))
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(written), `"registry_namespace": "script"`)

	// An existing file is never overwritten.
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level": "debug"}`), 0644))
	require.NoError(t, WriteDefaultConfig(path, getDefaultConfig(), nil))

	cfg := getDefaultConfig()
	loaded, err := LoadAndMergeConfig(path, &cfg, nil)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, "debug", cfg.LogLevel)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0644))
	loaded, err = LoadAndMergeConfig(empty, &cfg, nil)
	assert.NoError(t, err)
	assert.False(t, loaded)

	loaded, err = LoadAndMergeConfig(filepath.Join(dir, "missing.json"), &cfg, nil)
	assert.NoError(t, err)
	assert.False(t, loaded)
}

func TestHashFileContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0644))
	h1, err := hashFileContent(path)
	require.NoError(t, err)
	assert.Equal(t, "ca978112ca1bbdcafac231b39a23dc4da786eff8147c4e72b9807785afee48bb", h1)

	require.NoError(t, os.WriteFile(path, []byte("b"), 0644))
	h2, err := hashFileContent(path)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	_, err = hashFileContent(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
