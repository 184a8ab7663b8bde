// scriptcomplete/helpers_locator.go
// Locates the script region around the cursor inside a host document.
package scriptcomplete

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// ============================================================================
// Macro Content Locator
// ============================================================================

// MacroContentLocator finds script content either as the whole document (for
// script syntaxes) or as the body of a script macro such as
// {{velocity}}...{{/velocity}} embedded in a markup syntax.
type MacroContentLocator struct {
	markupSyntaxes []string
	scriptSyntaxes []string
	macros         []string
	strict         bool
	logger         *slog.Logger
}

// NewMacroContentLocator builds a locator from the syntax and macro lists of cfg.
// A strict locator returns ErrUnsupportedSyntax for syntaxes it does not know
// instead of reporting non-script content.
func NewMacroContentLocator(cfg Config, strict bool, logger *slog.Logger) *MacroContentLocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &MacroContentLocator{
		markupSyntaxes: slices.Clone(cfg.MarkupSyntaxes),
		scriptSyntaxes: slices.Clone(cfg.ScriptSyntaxes),
		macros:         slices.Clone(cfg.ScriptMacros),
		strict:         strict,
		logger:         logger.With("component", "MacroContentLocator"),
	}
}

// Locate implements ContentLocator.
func (l *MacroContentLocator) Locate(ctx context.Context, text, syntaxID string, offset int) (TargetContent, error) {
	if err := ctx.Err(); err != nil {
		return TargetContent{}, err
	}
	if offset < 0 || offset > len(text) {
		return TargetContent{}, fmt.Errorf("%w: offset %d, length %d", ErrInvalidOffset, offset, len(text))
	}
	switch {
	case slices.Contains(l.scriptSyntaxes, syntaxID):
		return TargetContent{Content: text, LocalOffset: offset, Type: ContentTypeScript}, nil
	case slices.Contains(l.markupSyntaxes, syntaxID):
		return l.locateMacro(text, offset), nil
	case l.strict:
		return TargetContent{}, fmt.Errorf("%w: %q", ErrUnsupportedSyntax, syntaxID)
	default:
		l.logger.Debug("Syntax not handled, reporting non-script content", "syntax", syntaxID)
		return TargetContent{Type: ContentTypeOther}, nil
	}
}

type openMacro struct {
	name         string
	contentStart int
}

// locateMacro finds the innermost script macro whose body contains offset.
func (l *MacroContentLocator) locateMacro(text string, offset int) TargetContent {
	var stack []openMacro
	for i := 0; i < offset; {
		idx := strings.Index(text[i:], "{{")
		if idx < 0 || i+idx >= offset {
			break
		}
		start := i + idx
		tag, ok := parseMacroTag(text, start)
		if !ok || !slices.Contains(l.macros, tag.name) {
			i = start + 2
			continue
		}
		switch {
		case tag.closing:
			for j := len(stack) - 1; j >= 0; j-- {
				if stack[j].name == tag.name {
					stack = stack[:j]
					break
				}
			}
		case tag.selfClosing:
		default:
			if tag.end > offset {
				// Cursor is inside the opening tag itself.
				return TargetContent{Type: ContentTypeOther}
			}
			stack = append(stack, openMacro{name: tag.name, contentStart: tag.end})
		}
		i = tag.end
	}
	if len(stack) == 0 {
		return TargetContent{Type: ContentTypeOther}
	}

	inner := stack[len(stack)-1]
	contentEnd := l.findClose(text, offset, inner.name)
	return TargetContent{
		Content:     text[inner.contentStart:contentEnd],
		LocalOffset: offset - inner.contentStart,
		Type:        ContentTypeScript,
	}
}

// findClose returns the start of the closing tag for name at or after from,
// skipping nested macros of the same name, or len(text) when unclosed.
func (l *MacroContentLocator) findClose(text string, from int, name string) int {
	depth := 0
	for i := from; i < len(text); {
		idx := strings.Index(text[i:], "{{")
		if idx < 0 {
			break
		}
		start := i + idx
		tag, ok := parseMacroTag(text, start)
		if !ok || tag.name != name {
			i = start + 2
			continue
		}
		switch {
		case tag.closing && depth == 0:
			return start
		case tag.closing:
			depth--
		case !tag.selfClosing:
			depth++
		}
		i = tag.end
	}
	return len(text)
}

type macroTag struct {
	name        string
	closing     bool
	selfClosing bool
	end         int // Offset just past "}}".
}

// parseMacroTag parses {{name ...}}, {{name/}} or {{/name}} starting at start.
func parseMacroTag(text string, start int) (macroTag, bool) {
	pos := start + 2
	tag := macroTag{}
	if pos < len(text) && text[pos] == '/' {
		tag.closing = true
		pos++
	}
	nameStart := pos
	for pos < len(text) && isMacroNameByte(text[pos]) {
		pos++
	}
	if pos == nameStart || pos >= len(text) {
		return macroTag{}, false
	}
	tag.name = text[nameStart:pos]

	switch c := text[pos]; {
	case c == '}', c == '/', c == ' ', c == '\t', c == '\n', c == '\r':
	default:
		return macroTag{}, false
	}
	closeIdx := strings.Index(text[pos:], "}}")
	if closeIdx < 0 {
		return macroTag{}, false
	}
	tag.end = pos + closeIdx + 2
	if tag.closing {
		if strings.TrimSpace(text[pos:pos+closeIdx]) != "" {
			return macroTag{}, false
		}
		return tag, true
	}
	tag.selfClosing = strings.HasSuffix(strings.TrimRight(text[pos:pos+closeIdx], " \t"), "/")
	return tag, true
}

func isMacroNameByte(c byte) bool {
	return isIdentByte(c) || c == '-'
}
