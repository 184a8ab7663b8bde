// scriptcomplete/helpers_scanner_test.go
package scriptcomplete

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		cursor int // -1 means end of text
		want   CompletionContext
	}{
		{"No sigil", "whatever", -1, CompletionContext{Kind: NoMatch}},
		{"Empty text", "", -1, CompletionContext{Kind: NoMatch}},
		{"Sigil alone", "$", -1, CompletionContext{Kind: BindingReference, Prefix: ""}},
		{"Partial name", "$k", -1, CompletionContext{Kind: BindingReference, Prefix: "k"}},
		{"Quiet sigil", "$!ke", -1, CompletionContext{Kind: BindingReference, Prefix: "ke"}},
		{"Braced sigil", "${ke", -1, CompletionContext{Kind: BindingReference, Prefix: "ke"}},
		{"Quiet braced sigil", "$!{", -1, CompletionContext{Kind: BindingReference, Prefix: ""}},
		{"After other text", "Hello $us", -1, CompletionContext{Kind: BindingReference, Prefix: "us"}},
		{"Cursor mid text", "$key and more", 3, CompletionContext{Kind: BindingReference, Prefix: "ke"}},
		{"Dot with empty member", "$key.", -1, CompletionContext{Kind: MemberReference, RootName: "key", MemberPrefix: ""}},
		{"Dot with member prefix", "$key.do", -1, CompletionContext{Kind: MemberReference, RootName: "key", MemberPrefix: "do"}},
		{"Braced member", "${key.doW", -1, CompletionContext{Kind: MemberReference, RootName: "key", MemberPrefix: "doW"}},
		{"Quiet member", "#set($x = $!services.t", -1, CompletionContext{Kind: MemberReference, RootName: "services", MemberPrefix: "t"}},
		{"Trailing space", "$k ", -1, CompletionContext{Kind: NoMatch}},
		{"Escaped sigil", `\$key`, -1, CompletionContext{Kind: NoMatch}},
		{"Sigil inside identifier", "a$b", -1, CompletionContext{Kind: NoMatch}},
		{"Digit start", "$1abc", -1, CompletionContext{Kind: NoMatch}},
		{"Empty root before dot", "$.foo", -1, CompletionContext{Kind: NoMatch}},
		{"Member starting with digit", "$key.1", -1, CompletionContext{Kind: NoMatch}},
		{"Two hops", "$key.foo.bar", -1, CompletionContext{Kind: NoMatch}},
		{"Closed brace", "${key}", -1, CompletionContext{Kind: NoMatch}},
		{"Method call parens", "$key.foo()", -1, CompletionContext{Kind: NoMatch}},
		{"Negative cursor", "$key", -2, CompletionContext{Kind: NoMatch}},
		{"Cursor past end", "$key", 10, CompletionContext{Kind: NoMatch}},
		{"Text after cursor ignored", "$ke", 2, CompletionContext{Kind: BindingReference, Prefix: "k"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cursor := tt.cursor
			if cursor == -1 {
				cursor = len(tt.text)
			}
			assert.Equal(t, tt.want, Classify(tt.text, cursor))
		})
	}
}

func TestClassify_NoSigilIgnoresTextAfterCursor(t *testing.T) {
	for _, suffix := range []string{"", "$key", ".foo", "${x}"} {
		text := "plain words" + suffix
		assert.Equal(t, NoMatch, Classify(text, len("plain words")).Kind, "suffix %q", suffix)
	}
}

func TestContextKindString(t *testing.T) {
	assert.Equal(t, "NoMatch", NoMatch.String())
	assert.Equal(t, "BindingReference", BindingReference.String())
	assert.Equal(t, "MemberReference", MemberReference.String())
}
