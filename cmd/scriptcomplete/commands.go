package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/shehackedyou/scriptcomplete"
)

const shutdownTimeout = 5 * time.Second

// ============================================================================
// hints
// ============================================================================

var (
	hintsOffset int
	hintsLine   int
	hintsCol    int
	hintsSyntax string
	hintsJSON   bool
)

var hintsCmd = &cobra.Command{
	Use:   "hints [file]",
	Short: "Print completion hints at a position",
	Long:  `Print the completion hints at a byte offset, or at a 1-based line and column, of a file. With no file (or "-") the document is read from stdin.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHints,
}

func init() {
	hintsCmd.Flags().IntVar(&hintsOffset, "offset", -1, "Byte offset of the cursor")
	hintsCmd.Flags().IntVar(&hintsLine, "line", 0, "Line of the cursor (1-based)")
	hintsCmd.Flags().IntVar(&hintsCol, "col", 0, "Column of the cursor in bytes (1-based)")
	hintsCmd.Flags().StringVar(&hintsSyntax, "syntax", "", "Syntax id of the document (default: from the file extension, else velocity)")
	hintsCmd.Flags().BoolVar(&hintsJSON, "json", false, "Print hints as JSON")
}

func runHints(cmd *cobra.Command, args []string) error {
	path := "-"
	if len(args) == 1 {
		path = args[0]
	}
	content, err := readDocument(path)
	if err != nil {
		return err
	}

	offset, err := cursorOffset(content)
	if err != nil {
		return err
	}

	completer, logger, err := newCompleter()
	if err != nil {
		return err
	}
	defer completer.Close()

	syntax := hintsSyntax
	if syntax == "" {
		syntax = syntaxForPath(completer, path)
	}
	logger.Debug("Computing hints", "path", path, "offset", offset, "syntax", syntax)

	hints, err := completer.GetHints(cmd.Context(), offset, syntax, string(content))
	if err != nil {
		return fmt.Errorf("computing hints: %w", err)
	}

	if hintsJSON {
		out, err := json.MarshalIndent(hints, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}
	if hints.IsEmpty() {
		pterm.Info.Println("No hints at this position")
		return nil
	}
	data := pterm.TableData{{"Name", "Signature"}}
	for _, h := range hints.Items() {
		data = append(data, []string{h.Name, h.Signature})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func readDocument(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return content, nil
}

// cursorOffset resolves --offset or --line/--col; exactly one form is required.
func cursorOffset(content []byte) (int, error) {
	byLineCol := hintsLine != 0 || hintsCol != 0
	switch {
	case hintsOffset >= 0 && byLineCol:
		return 0, errors.New("use either --offset or --line/--col, not both")
	case hintsOffset >= 0:
		return hintsOffset, nil
	case byLineCol:
		return scriptcomplete.LineColToByteOffset(content, hintsLine, hintsCol)
	default:
		return 0, errors.New("a cursor position is required: --offset or --line/--col")
	}
}

// syntaxForPath maps the file extension through the configured language table.
func syntaxForPath(completer *scriptcomplete.Completer, path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" || path == "-" {
		return "velocity"
	}
	switch ext {
	case "vm", "vtl":
		ext = "velocity"
	}
	return completer.SyntaxForLanguage(ext)
}

// ============================================================================
// bindings
// ============================================================================

var bindingsCmd = &cobra.Command{
	Use:   "bindings",
	Short: "List the names bound by the bindings file",
	RunE: func(cmd *cobra.Command, args []string) error {
		completer, _, err := newCompleter()
		if err != nil {
			return err
		}
		defer completer.Close()

		if completer.BindingsPath() == "" {
			pterm.Warning.Println("No bindings file configured")
			return nil
		}
		pterm.DefaultHeader.WithFullWidth().Printf("Bindings: %s", completer.BindingsPath())
		pterm.Println()

		env := completer.Environment()
		local := make(map[string]bool)
		for _, name := range env.LocalNames() {
			local[name] = true
		}
		data := pterm.TableData{{"Name", "Scope", "Type"}}
		for _, name := range env.Names() {
			value, _ := env.Lookup(name)
			scope := "global"
			if local[name] {
				scope = "local"
			}
			data = append(data, []string{name, scope, scriptcomplete.DescribeValue(value).Key()})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

// ============================================================================
// serve
// ============================================================================

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve hints over HTTP",
	Long:  `Serve GET/POST /hints. The bindings file is reloaded on change when watch_bindings is enabled.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config http_addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	completer, logger, err := newCompleter()
	if err != nil {
		return err
	}
	defer completer.Close()

	cfg := completer.GetCurrentConfig()
	addr := cfg.HTTPAddr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.WatchBindings && completer.BindingsPath() != "" {
		go func() {
			if err := completer.WatchBindings(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Bindings watcher stopped", "error", err)
			}
		}()
	}

	srv := scriptcomplete.NewHTTPServer(addr, completer, logger)
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()
	pterm.Success.Printf("Serving hints on http://%s/hints\n", addr)

	select {
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	pterm.Info.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// ============================================================================
// catalog
// ============================================================================

var catalogPath string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect or clear the on-disk bindings catalog cache",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached bindings files",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCatalog()
		if err != nil {
			return err
		}
		defer store.Close()

		keys, err := store.Keys()
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			pterm.Info.Printf("Catalog cache %s is empty\n", store.Path())
			return nil
		}
		data := pterm.TableData{{"#", "Bindings file"}}
		for i, key := range keys {
			data = append(data, []string{strconv.Itoa(i + 1), key})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var catalogClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached bindings catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCatalog()
		if err != nil {
			return err
		}
		defer store.Close()

		spinner, _ := pterm.DefaultSpinner.Start("Clearing catalog cache...")
		if err := store.Clear(); err != nil {
			if spinner != nil {
				spinner.Fail(err.Error())
			}
			return err
		}
		if spinner != nil {
			spinner.Success(fmt.Sprintf("Cleared %s", store.Path()))
		}
		return nil
	},
}

func init() {
	catalogCmd.PersistentFlags().StringVar(&catalogPath, "path", "", "Catalog cache database (default: user cache dir)")
	catalogCmd.AddCommand(catalogListCmd, catalogClearCmd)
}

func openCatalog() (*scriptcomplete.CatalogStore, error) {
	logger := newLogger(logLevelFlag)
	path := catalogPath
	if path == "" {
		var err error
		if path, err = scriptcomplete.DefaultCatalogStorePath(); err != nil {
			return nil, err
		}
	}
	return scriptcomplete.OpenCatalogStore(path, logger)
}
