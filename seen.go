package politecrawl

// seenSet remembers normalized URLs already visited in this session. Memory
// is bounded: once the capacity is exceeded the oldest entry is evicted, so
// long-running crawls do not grow without limit.
type seenSet struct {
	capacity int
	entries  map[string]struct{}
	order    []string
	head     int
}

func newSeenSet(capacity int) *seenSet {
	if capacity <= 0 {
		capacity = 10000
	}
	return &seenSet{
		capacity: capacity,
		entries:  make(map[string]struct{}, capacity),
		order:    make([]string, capacity),
	}
}

func (s *seenSet) Has(url string) bool {
	_, ok := s.entries[url]
	return ok
}

// Add records a URL, evicting the oldest entry once the cap is reached.
// Returns false if the URL was already present.
func (s *seenSet) Add(url string) bool {
	if s.Has(url) {
		return false
	}
	if len(s.entries) >= s.capacity {
		oldest := s.order[s.head]
		delete(s.entries, oldest)
	}
	s.entries[url] = struct{}{}
	s.order[s.head] = url
	s.head = (s.head + 1) % s.capacity
	return true
}

func (s *seenSet) Len() int {
	return len(s.entries)
}
