package autocomplete

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Results is the ordered provider -> payloads mapping a suggest call
// returns. It marshals to a JSON object whose keys follow provider
// registration order, or to a plain JSON array when flattening applies
// (single result type). Skipped providers do not appear at all.
type Results struct {
	order    []string
	payloads map[string][]json.RawMessage
	flat     bool
}

func newResults(flat bool) *Results {
	return &Results{
		payloads: make(map[string][]json.RawMessage),
		flat:     flat,
	}
}

func (r *Results) add(provider string, payloads []json.RawMessage) {
	if _, ok := r.payloads[provider]; !ok {
		r.order = append(r.order, provider)
	}
	r.payloads[provider] = payloads
}

// Providers returns the provider names present in the result, in order.
func (r *Results) Providers() []string { return r.order }

// Provider returns the ranked payloads of one provider.
func (r *Results) Provider(name string) []json.RawMessage { return r.payloads[name] }

// Flattened reports whether the result marshals as a plain list.
func (r *Results) Flattened() bool { return r.flat }

// Len is the total number of payloads across all providers.
func (r *Results) Len() int {
	n := 0
	for _, p := range r.payloads {
		n += len(p)
	}
	return n
}

// Flat returns all payloads in provider order.
func (r *Results) Flat() []json.RawMessage {
	out := make([]json.RawMessage, 0, r.Len())
	for _, name := range r.order {
		out = append(out, r.payloads[name]...)
	}
	return out
}

func (r *Results) MarshalJSON() ([]byte, error) {
	if r.flat {
		return json.Marshal(r.Flat())
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		list, err := json.Marshal(r.payloads[name])
		if err != nil {
			return nil, err
		}
		buf.Write(list)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeResults reconstructs a Results value from its serialized form
// (a cache entry). A leading '[' means a flattened single-provider
// result; providerOrder supplies the key ordering for the object form.
func decodeResults(raw []byte, providerOrder []string) (*Results, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty cached result")
	}

	if trimmed[0] == '[' {
		var payloads []json.RawMessage
		if err := json.Unmarshal(trimmed, &payloads); err != nil {
			return nil, fmt.Errorf("decode flattened result: %w", err)
		}
		r := newResults(true)
		name := ""
		if len(providerOrder) > 0 {
			name = providerOrder[0]
		}
		r.add(name, payloads)
		return r, nil
	}

	var byProvider map[string][]json.RawMessage
	if err := json.Unmarshal(trimmed, &byProvider); err != nil {
		return nil, fmt.Errorf("decode result map: %w", err)
	}
	r := newResults(false)
	for _, name := range providerOrder {
		if payloads, ok := byProvider[name]; ok {
			r.add(name, payloads)
		}
	}
	return r, nil
}
