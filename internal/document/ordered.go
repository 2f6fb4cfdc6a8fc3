package document

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OrderedMap is a string-keyed mapping that remembers insertion order. It
// serializes as a plain JSON object; readers address values by key and must
// not depend on the order.
//
// The zero value is an empty map ready to use.
type OrderedMap[V any] struct {
	keys    []string
	entries map[string]V
}

// ContentMap maps document id to its title and text.
type ContentMap = OrderedMap[Content]

// NoteLists maps document id to the notes attached to it.
type NoteLists = OrderedMap[[]Note]

func (m *OrderedMap[V]) Get(key string) (V, bool) {
	value, ok := m.entries[key]
	return value, ok
}

func (m *OrderedMap[V]) Has(key string) bool {
	_, ok := m.entries[key]
	return ok
}

// Set inserts or overwrites key. Overwriting keeps the original position.
func (m *OrderedMap[V]) Set(key string, value V) {
	if m.entries == nil {
		m.entries = make(map[string]V)
	}
	if _, ok := m.entries[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.entries[key] = value
}

func (m *OrderedMap[V]) Delete(key string) bool {
	if _, ok := m.entries[key]; !ok {
		return false
	}
	delete(m.entries, key)
	for i, existing := range m.keys {
		if existing == key {
			m.keys = append(m.keys[:i:i], m.keys[i+1:]...)
			break
		}
	}
	return true
}

func (m *OrderedMap[V]) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *OrderedMap[V]) Len() int {
	return len(m.keys)
}

// Clone returns a copy whose key list and entry table are independent of m.
// Values are copied shallowly; callers holding slices must copy them.
func (m *OrderedMap[V]) Clone() OrderedMap[V] {
	out := OrderedMap[V]{
		keys:    make([]string, len(m.keys)),
		entries: make(map[string]V, len(m.entries)),
	}
	copy(out.keys, m.keys)
	for key, value := range m.entries {
		out.entries[key] = value
	}
	return out
}

func (m OrderedMap[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		encodedValue, err := json.Marshal(m.entries[key])
		if err != nil {
			return nil, fmt.Errorf("encode entry %q: %w", key, err)
		}
		buf.Write(encodedKey)
		buf.WriteByte(':')
		buf.Write(encodedValue)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *OrderedMap[V]) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	token, err := decoder.Token()
	if err != nil {
		return err
	}
	if token == nil {
		*m = OrderedMap[V]{}
		return nil
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("ordered map: expected JSON object")
	}

	next := OrderedMap[V]{}
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return err
		}
		key, ok := keyToken.(string)
		if !ok {
			return fmt.Errorf("ordered map: expected string key")
		}
		var value V
		if err := decoder.Decode(&value); err != nil {
			return fmt.Errorf("decode entry %q: %w", key, err)
		}
		next.Set(key, value)
	}
	if _, err := decoder.Token(); err != nil {
		return err
	}
	*m = next
	return nil
}
