package mlog

// Store holds append-only keyed logs and committed offsets. It is not
// thread-safe; the owning actor loop is the only accessor.
type Store struct {
	logs      map[string][]int64
	committed map[string]int64
}

// NewStore creates an empty log store.
func NewStore() *Store {
	return &Store{
		logs:      make(map[string][]int64),
		committed: make(map[string]int64),
	}
}

// Append appends msg to the log for key and returns its offset. Offsets are
// dense and start at zero.
func (s *Store) Append(key string, msg int64) int64 {
	offset := int64(len(s.logs[key]))
	s.logs[key] = append(s.logs[key], msg)
	return offset
}

// Read returns [offset, msg] pairs for key starting at offset from. Returns
// an empty slice for an unknown key or an offset past the end.
func (s *Store) Read(key string, from int64) [][2]int64 {
	log := s.logs[key]

	out := make([][2]int64, 0)
	for offset, msg := range log {
		if int64(offset) >= from {
			out = append(out, [2]int64{int64(offset), msg})
		}
	}
	return out
}

// Commit records client-committed offsets, overwriting previous values.
func (s *Store) Commit(offsets map[string]int64) {
	for key, offset := range offsets {
		s.committed[key] = offset
	}
}

// Committed returns committed offsets for the keys that have one.
func (s *Store) Committed(keys []string) map[string]int64 {
	out := make(map[string]int64)
	for _, key := range keys {
		if offset, ok := s.committed[key]; ok {
			out[key] = offset
		}
	}
	return out
}
