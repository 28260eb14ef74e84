// Package mapping builds the read-only head -> link lookup a follower runs
// against.
package mapping

import "linkedsongs/models"

// Snapshot maps head song URIs to the URIs of their link songs, in insertion
// order. It is never mutated after Build returns, so a running follower can
// read it without locking. Edits made to the store afterwards are only seen
// by a new snapshot.
type Snapshot struct {
	links map[string][]string
}

// Build indexes links by head ordinal, then walks the heads once. Heads
// without links are present with an empty sequence.
func Build(heads []models.HeadSong, links []models.LinkSong) *Snapshot {
	byHead := make(map[int64][]string, len(heads))
	for _, link := range links {
		byHead[link.HeadNumber] = append(byHead[link.HeadNumber], link.URI)
	}

	s := &Snapshot{links: make(map[string][]string, len(heads))}
	for _, head := range heads {
		uris := s.links[head.URI]
		if uris == nil {
			uris = []string{}
		}
		s.links[head.URI] = append(uris, byHead[head.HeadNumber]...)
	}
	return s
}

// Links returns a copy of the link URIs for head and whether head is tracked.
func (s *Snapshot) Links(head string) ([]string, bool) {
	if s == nil {
		return nil, false
	}
	uris, ok := s.links[head]
	if !ok {
		return nil, false
	}
	out := make([]string, len(uris))
	copy(out, uris)
	return out, true
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.links)
}

// Heads returns the tracked head URIs in no particular order.
func (s *Snapshot) Heads() []string {
	if s == nil {
		return nil
	}
	heads := make([]string, 0, len(s.links))
	for head := range s.links {
		heads = append(heads, head)
	}
	return heads
}
