package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint is the stored value of one tracked section. A scalar fingerprint
// is a digest or nil (section missing); a list fingerprint holds item identifiers.
// Which one it is comes from the JSON value type, there is no version tag.
type Fingerprint struct {
	Hash  *string
	Items []string
	list  bool
}

func HashFingerprint(hash *string) Fingerprint {
	return Fingerprint{Hash: hash}
}

func ItemsFingerprint(items []string) Fingerprint {
	if items == nil {
		items = []string{}
	}
	return Fingerprint{Items: items, list: true}
}

func (f Fingerprint) IsList() bool { return f.list }

// Equal compares two scalar fingerprints; nil only equals nil.
func (f Fingerprint) Equal(o Fingerprint) bool {
	if f.list || o.list {
		if f.list != o.list || len(f.Items) != len(o.Items) {
			return false
		}
		for i := range f.Items {
			if f.Items[i] != o.Items[i] {
				return false
			}
		}
		return true
	}
	if f.Hash == nil || o.Hash == nil {
		return f.Hash == nil && o.Hash == nil
	}
	return *f.Hash == *o.Hash
}

func (f Fingerprint) MarshalJSON() ([]byte, error) {
	if f.list {
		items := f.Items
		if items == nil {
			items = []string{}
		}
		return json.Marshal(items)
	}
	return json.Marshal(f.Hash)
}

func (f *Fingerprint) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("fingerprint: empty value")
	}
	switch data[0] {
	case 'n':
		*f = Fingerprint{}
		return nil
	case '"':
		var h string
		if err := json.Unmarshal(data, &h); err != nil {
			return err
		}
		*f = HashFingerprint(&h)
		return nil
	case '[':
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*f = ItemsFingerprint(items)
		return nil
	}
	return fmt.Errorf("fingerprint: unexpected JSON value %.20s", data)
}

type Shape int

const (
	ShapeEmpty Shape = iota
	ShapeScalar
	ShapeSet
	ShapeMixed
)

func (s Shape) String() string {
	switch s {
	case ShapeScalar:
		return "scalar"
	case ShapeSet:
		return "set"
	case ShapeMixed:
		return "mixed"
	default:
		return "empty"
	}
}

// Snapshot maps section labels to fingerprints and remembers insertion order,
// which is the tracked-section declaration order for freshly built snapshots.
// Callers must not modify a snapshot after it has been handed to the diff or the store.
type Snapshot struct {
	labels []string
	values map[string]Fingerprint
}

func NewSnapshot() *Snapshot {
	return &Snapshot{values: make(map[string]Fingerprint)}
}

// Put sets label to fp. A label put twice keeps its first position.
func (s *Snapshot) Put(label string, fp Fingerprint) {
	if s.values == nil {
		s.values = make(map[string]Fingerprint)
	}
	if _, ok := s.values[label]; !ok {
		s.labels = append(s.labels, label)
	}
	s.values[label] = fp
}

func (s *Snapshot) Get(label string) (Fingerprint, bool) {
	fp, ok := s.values[label]
	return fp, ok
}

func (s *Snapshot) Labels() []string {
	out := make([]string, len(s.labels))
	copy(out, s.labels)
	return out
}

func (s *Snapshot) Len() int { return len(s.labels) }

func (s *Snapshot) Shape() Shape {
	var scalars, lists int
	for _, fp := range s.values {
		if fp.IsList() {
			lists++
		} else {
			scalars++
		}
	}
	switch {
	case scalars == 0 && lists == 0:
		return ShapeEmpty
	case lists == 0:
		return ShapeScalar
	case scalars == 0:
		return ShapeSet
	default:
		return ShapeMixed
	}
}

// Canonical returns a copy whose list values are sorted with SortIdentifiers.
func (s *Snapshot) Canonical() *Snapshot {
	out := NewSnapshot()
	for _, label := range s.labels {
		fp := s.values[label]
		if fp.IsList() {
			items := make([]string, len(fp.Items))
			copy(items, fp.Items)
			SortIdentifiers(items)
			fp = ItemsFingerprint(items)
		}
		out.Put(label, fp)
	}
	return out
}

func (s *Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, label := range s.labels {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(label)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s.values[label])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON keeps the key order of the document.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("snapshot: expected JSON object")
	}

	*s = Snapshot{values: make(map[string]Fingerprint)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		label, ok := tok.(string)
		if !ok {
			return fmt.Errorf("snapshot: expected label, got %v", tok)
		}
		var fp Fingerprint
		if err := dec.Decode(&fp); err != nil {
			return fmt.Errorf("snapshot: label %q: %w", label, err)
		}
		s.Put(label, fp)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// SortIdentifiers orders ids ascending by their trailing run of digits compared
// as numbers; ids without digits sort first, ties fall back to plain string order.
func SortIdentifiers(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := numericKey(ids[i]), numericKey(ids[j])
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		if a != b {
			return a < b
		}
		return ids[i] < ids[j]
	})
}

func numericKey(id string) string {
	end := len(id)
	start := end
	for start > 0 && id[start-1] >= '0' && id[start-1] <= '9' {
		start--
	}
	return strings.TrimLeft(id[start:end], "0")
}
