// scriptcomplete/helpers_hints.go
// Contains the immutable, sorted hint collection returned by the engine.
package scriptcomplete

import (
	"github.com/goccy/go-json"
	"github.com/tidwall/btree"
)

// ============================================================================
// Hint Collection
// ============================================================================

// Hints is an immutable set of Hint values kept sorted by Name (byte order),
// ties broken by Signature. Fully equal hints are stored once.
// The zero value is an empty collection.
type Hints struct {
	items []Hint
}

func hintLess(a, b Hint) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.Signature < b.Signature
}

// NewHints builds a collection from the given hints.
func NewHints(hints ...Hint) Hints {
	return Hints{}.With(hints...)
}

// With returns a new collection holding the receiver's hints plus the given ones.
func (h Hints) With(hints ...Hint) Hints {
	if len(hints) == 0 {
		return h
	}
	tree := btree.NewBTreeG[Hint](hintLess)
	for _, existing := range h.items {
		tree.Set(existing)
	}
	for _, hint := range hints {
		tree.Set(hint)
	}
	items := make([]Hint, 0, tree.Len())
	tree.Scan(func(item Hint) bool {
		items = append(items, item)
		return true
	})
	return Hints{items: items}
}

// Merge returns the union of two collections.
func (h Hints) Merge(other Hints) Hints {
	return h.With(other.items...)
}

// Items returns a copy of the sorted hints.
func (h Hints) Items() []Hint {
	out := make([]Hint, len(h.items))
	copy(out, h.items)
	return out
}

// Len returns the number of hints.
func (h Hints) Len() int { return len(h.items) }

// IsEmpty reports whether the collection holds no hints.
func (h Hints) IsEmpty() bool { return len(h.items) == 0 }

type hintsJSON struct {
	Hints []Hint `json:"hints"`
}

// MarshalJSON encodes the collection as {"hints":[...]}, never null.
func (h Hints) MarshalJSON() ([]byte, error) {
	return json.Marshal(hintsJSON{Hints: h.Items()})
}

// UnmarshalJSON decodes {"hints":[...]} and re-establishes ordering.
func (h *Hints) UnmarshalJSON(data []byte) error {
	var raw hintsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*h = NewHints(raw.Hints...)
	return nil
}
