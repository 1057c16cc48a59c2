package astrodata

import "encoding/json"

// Reserved header keys carrying the identity of a loaded extension.
const (
	KeyExtName = "EXTNAME"
	KeyExtVer  = "EXTVER"
)

// A Card is a single header entry.
type Card struct {
	Key     string      `json:"key"`
	Value   interface{} `json:"value"`
	Comment string      `json:"comment,omitempty"`
}

// A Header is an ordered mapping from keys to values. Setting an
// existing key updates it in place; setting a new key appends it.
// Iteration and serialization preserve insertion order.
type Header struct {
	cards []Card
}

// NewHeader returns a new, empty header.
func NewHeader() *Header {
	return &Header{}
}

// Len returns the number of cards in the header.
func (h *Header) Len() int {
	return len(h.cards)
}

// Get returns the value stored under key, if any.
func (h *Header) Get(key string) (interface{}, bool) {
	for i := range h.cards {
		if h.cards[i].Key == key {
			return h.cards[i].Value, true
		}
	}
	return nil, false
}

// GetString returns the value under key if it is a string.
func (h *Header) GetString(key string) (string, bool) {
	v, ok := h.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt returns the value under key as an int. Numeric values arriving
// through JSON decode as float64, so those are accepted too.
func (h *Header) GetInt(key string) (int, bool) {
	v, ok := h.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// Set stores value under key, keeping the key's position if it already
// exists and appending it otherwise.
func (h *Header) Set(key string, value interface{}) {
	for i := range h.cards {
		if h.cards[i].Key == key {
			h.cards[i].Value = value
			return
		}
	}
	h.cards = append(h.cards, Card{Key: key, Value: value})
}

// SetComment stores value under key along with a comment.
func (h *Header) SetComment(key string, value interface{}, comment string) {
	for i := range h.cards {
		if h.cards[i].Key == key {
			h.cards[i].Value = value
			h.cards[i].Comment = comment
			return
		}
	}
	h.cards = append(h.cards, Card{Key: key, Value: value, Comment: comment})
}

// Del removes the card under key. It returns false if the key was not
// present.
func (h *Header) Del(key string) bool {
	for i := range h.cards {
		if h.cards[i].Key == key {
			h.cards = append(h.cards[:i], h.cards[i+1:]...)
			return true
		}
	}
	return false
}

// Keys returns the header's keys in insertion order.
func (h *Header) Keys() []string {
	result := make([]string, len(h.cards))
	for i := range h.cards {
		result[i] = h.cards[i].Key
	}
	return result
}

// Cards returns a copy of the header's cards in insertion order.
func (h *Header) Cards() []Card {
	result := make([]Card, len(h.cards))
	copy(result, h.cards)
	return result
}

// Clone returns a deep copy of the header.
func (h *Header) Clone() *Header {
	if h == nil {
		return NewHeader()
	}
	c := &Header{cards: make([]Card, len(h.cards))}
	copy(c.cards, h.cards)
	return c
}

// MarshalJSON serializes the header as an ordered list of cards.
func (h *Header) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.cards)
}

// UnmarshalJSON restores a header from an ordered list of cards.
func (h *Header) UnmarshalJSON(data []byte) error {
	h.cards = nil
	return json.Unmarshal(data, &h.cards)
}
