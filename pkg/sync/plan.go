package sync

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind says whether a plan entry is a file or a directory.
type Kind string

const (
	KindFile Kind = "file"
	KindDir  Kind = "dir"
)

// Entry is one pending operation within a plan.
type Entry struct {
	// Path is relative to the source root, forward-slash separated.
	// Directory paths end in "/".
	Path string
	Kind Kind
}

// Plan is an ordered mapping from relative path to entry kind. The same
// shape serves as the local manifest (scan order), the execution plan, and
// the retry plan. Plans serialize as a JSON object whose key order is the
// insertion order, matching what the scanner produced.
type Plan struct {
	order []string
	kinds map[string]Kind
}

// NewPlan returns an empty plan.
func NewPlan() *Plan {
	return &Plan{kinds: map[string]Kind{}}
}

// Add appends an entry. Re-adding a path updates its kind but keeps its
// original position.
func (plan *Plan) Add(path string, kind Kind) {
	if _, ok := plan.kinds[path]; !ok {
		plan.order = append(plan.order, path)
	}
	plan.kinds[path] = kind
}

// Get returns the kind recorded for path.
func (plan *Plan) Get(path string) (Kind, bool) {
	kind, ok := plan.kinds[path]
	return kind, ok
}

// Len returns the number of entries.
func (plan *Plan) Len() int {
	return len(plan.order)
}

// Entries returns the entries in insertion order.
func (plan *Plan) Entries() []Entry {
	entries := make([]Entry, 0, len(plan.order))
	for _, path := range plan.order {
		entries = append(entries, Entry{Path: path, Kind: plan.kinds[path]})
	}
	return entries
}

// MarshalJSON writes the plan as a JSON object in insertion order.
func (plan *Plan) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, path := range plan.order {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(path)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		value, err := json.Marshal(string(plan.kinds[path]))
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, preserving its key order. The standard
// map decoding would lose the order, so the object is walked token by token.
func (plan *Plan) UnmarshalJSON(data []byte) error {
	plan.order = nil
	plan.kinds = map[string]Kind{}

	decoder := json.NewDecoder(bytes.NewReader(data))
	tok, err := decoder.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("plan must be a JSON object, got %v", tok)
	}

	for decoder.More() {
		keyTok, err := decoder.Token()
		if err != nil {
			return err
		}
		path, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("invalid plan key %v", keyTok)
		}

		valueTok, err := decoder.Token()
		if err != nil {
			return err
		}
		value, ok := valueTok.(string)
		if !ok {
			return fmt.Errorf("invalid kind for %q: %v", path, valueTok)
		}

		kind := Kind(value)
		if kind != KindFile && kind != KindDir {
			return fmt.Errorf("invalid kind for %q: %q", path, value)
		}
		plan.Add(path, kind)
	}

	// Consume the closing brace.
	if _, err := decoder.Token(); err != nil {
		return err
	}
	return nil
}
