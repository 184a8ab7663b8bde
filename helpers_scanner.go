// scriptcomplete/helpers_scanner.go
// Classifies the text before the cursor into a completion context.
package scriptcomplete

import "strings"

// ============================================================================
// Reference Scanner
// ============================================================================

// Classify scans text leftward from cursor and reports whether the cursor sits
// inside a variable reference ($name, $!name, ${name, $!{name) or a single
// member access on one ($name.mem). Anything else is NoMatch.
func Classify(text string, cursor int) CompletionContext {
	if cursor < 0 || cursor > len(text) {
		return CompletionContext{Kind: NoMatch}
	}

	// Collect the identifier/dot run ending at the cursor.
	start := cursor
	for start > 0 && (isIdentByte(text[start-1]) || text[start-1] == '.') {
		start--
	}
	segment := text[start:cursor]

	// Sigil, read right to left: optional '{', optional '!', then '$'.
	pos := start
	if pos > 0 && text[pos-1] == '{' {
		pos--
	}
	if pos > 0 && text[pos-1] == '!' {
		pos--
	}
	if pos == 0 || text[pos-1] != '$' {
		return CompletionContext{Kind: NoMatch}
	}
	dollar := pos - 1
	if dollar > 0 {
		prev := text[dollar-1]
		// \$name is an escaped literal; a$b is not a reference start.
		if prev == '\\' || isIdentByte(prev) {
			return CompletionContext{Kind: NoMatch}
		}
	}

	switch strings.Count(segment, ".") {
	case 0:
		if segment != "" && !isIdentStart(segment[0]) {
			return CompletionContext{Kind: NoMatch}
		}
		return CompletionContext{Kind: BindingReference, Prefix: segment}
	case 1:
		root, member, _ := strings.Cut(segment, ".")
		if root == "" || !isIdentStart(root[0]) {
			return CompletionContext{Kind: NoMatch}
		}
		if member != "" && !isIdentStart(member[0]) {
			return CompletionContext{Kind: NoMatch}
		}
		return CompletionContext{Kind: MemberReference, RootName: root, MemberPrefix: member}
	default:
		// Chained access beyond one hop is not resolved.
		return CompletionContext{Kind: NoMatch}
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentByte(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
