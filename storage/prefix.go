package storage

// PrefixedKV scopes a parent KV to keys under a fixed prefix. Several
// accounts share one database this way.
type PrefixedKV struct {
	parent KV
	prefix []byte
}

var _ KV = (*PrefixedKV)(nil)

// Prefixed returns a view of parent restricted to keys starting with prefix.
// Closing the view leaves parent open.
func Prefixed(parent KV, prefix string) *PrefixedKV {
	return &PrefixedKV{parent: parent, prefix: []byte(prefix)}
}

func (p *PrefixedKV) key(k []byte) []byte {
	return append(append(make([]byte, 0, len(p.prefix)+len(k)), p.prefix...), k...)
}

func (p *PrefixedKV) Get(key []byte) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return p.parent.Get(p.key(key))
}

func (p *PrefixedKV) Put(key, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return p.parent.Put(p.key(key), value)
}

func (p *PrefixedKV) Delete(key []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return p.parent.Delete(p.key(key))
}

func (p *PrefixedKV) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	n := len(p.prefix)
	return p.parent.ForEach(p.key(prefix), func(key, value []byte) error {
		return fn(key[n:], value)
	})
}

// Close is a no-op; the parent owns the database.
func (p *PrefixedKV) Close() error { return nil }
