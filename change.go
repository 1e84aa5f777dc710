package keywatch

// KV is an ordered key/value pair.
//
// Pair sequences are applied in order, so duplicate keys resolve to
// "last write wins". Use [WithPairs] or [Store.AssignPairs] when write
// order matters; use plain maps otherwise.
type KV struct {
	Key   string
	Value any
}

// Change describes one committed mutation of a single key.
//
// A Change is delivered to every live observer subscribed to Key, once per
// subscription, each time the key's value actually changes. Value is the
// new value after the write.
type Change struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}
