// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"bytes"
	"encoding/json"
	"reflect"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Options is the insertion-ordered option mapping of a Request.
// The zero value is an empty mapping and encodes as {}.
//
// Values are stored in their decoded JSON form: numbers become float64,
// slices []any and structs or maps map[string]any. A value read back from
// the wire is therefore equal to the one that was set.
type Options struct {
	m *orderedmap.OrderedMap[string, any]
}

// NewOptions builds Options from alternating key, value arguments.
// Non-string keys are skipped.
func NewOptions(kv ...any) Options {
	var o Options
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		o = o.With(k, kv[i+1])
	}
	return o
}

// With returns options with key set to value. The receiver is not modified;
// an existing key keeps its position.
func (o Options) With(key string, value any) Options {
	c := o.clone()
	c.m.Set(key, normalize(value))
	return c
}

// normalize returns v as encoding/json decodes it into an any. A value
// that cannot be marshaled is kept as is and fails at encode time.
func normalize(v any) any {
	switch v.(type) {
	case nil, string, bool, float64:
		return v
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// Get returns the value stored under key.
func (o Options) Get(key string) (any, bool) {
	if o.m == nil {
		return nil, false
	}
	return o.m.Get(key)
}

// GetString returns the string stored under key, or "".
func (o Options) GetString(key string) string {
	v, _ := o.Get(key)
	s, _ := v.(string)
	return s
}

// Len returns the number of keys.
func (o Options) Len() int {
	if o.m == nil {
		return 0
	}
	return o.m.Len()
}

// Keys returns keys in insertion order.
func (o Options) Keys() []string {
	if o.m == nil {
		return nil
	}
	keys := make([]string, 0, o.m.Len())
	for pair := o.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Equal reports whether o and other hold equal pairs in the same order.
func (o Options) Equal(other Options) bool {
	if o.Len() != other.Len() {
		return false
	}
	if o.Len() == 0 {
		return true
	}
	a, b := o.m.Oldest(), other.m.Oldest()
	for ; a != nil && b != nil; a, b = a.Next(), b.Next() {
		if a.Key != b.Key || !reflect.DeepEqual(a.Value, b.Value) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the options as a JSON object in insertion order.
func (o Options) MarshalJSON() ([]byte, error) {
	if o.m == nil || o.m.Len() == 0 {
		return []byte("{}"), nil
	}
	return o.m.MarshalJSON()
}

// UnmarshalJSON decodes a JSON object keeping key order. null decodes as
// an empty mapping.
func (o *Options) UnmarshalJSON(data []byte) error {
	m := orderedmap.New[string, any]()
	if !bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		if err := m.UnmarshalJSON(data); err != nil {
			return err
		}
	}
	o.m = m
	return nil
}

func (o Options) clone() Options {
	m := orderedmap.New[string, any]()
	if o.m != nil {
		for pair := o.m.Oldest(); pair != nil; pair = pair.Next() {
			m.Set(pair.Key, pair.Value)
		}
	}
	return Options{m: m}
}
