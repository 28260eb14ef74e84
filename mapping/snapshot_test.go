package mapping

import (
	"reflect"
	"testing"

	"linkedsongs/models"
)

func TestBuild(t *testing.T) {
	heads := []models.HeadSong{
		{HeadNumber: 1, URI: "A"},
		{HeadNumber: 2, URI: "B"},
		{HeadNumber: 3, URI: "C"},
	}
	links := []models.LinkSong{
		{LinkNumber: 10, URI: "X", HeadNumber: 1},
		{LinkNumber: 11, URI: "Z", HeadNumber: 3},
		{LinkNumber: 12, URI: "Y", HeadNumber: 1},
		{LinkNumber: 13, URI: "orphan", HeadNumber: 99},
	}

	s := Build(heads, links)

	tests := []struct {
		head   string
		want   []string
		wantOK bool
	}{
		{"A", []string{"X", "Y"}, true},
		{"B", []string{}, true},
		{"C", []string{"Z"}, true},
		{"D", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.head, func(t *testing.T) {
			got, ok := s.Links(tt.head)
			if ok != tt.wantOK {
				t.Fatalf("Links(%q) ok = %v, want %v", tt.head, ok, tt.wantOK)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Links(%q) = %#v, want %#v", tt.head, got, tt.want)
			}
		})
	}

	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
}

func TestBuildHeadsWithoutLinks(t *testing.T) {
	heads := []models.HeadSong{{HeadNumber: 1, URI: "A"}, {HeadNumber: 2, URI: "B"}}
	s := Build(heads, nil)

	for _, h := range heads {
		got, ok := s.Links(h.URI)
		if !ok {
			t.Errorf("head %s missing from snapshot", h.URI)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("Links(%s) = %#v, want empty non-nil", h.URI, got)
		}
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	heads := []models.HeadSong{{HeadNumber: 1, URI: "A"}}
	links := []models.LinkSong{{URI: "X", HeadNumber: 1}, {URI: "Y", HeadNumber: 1}}
	s := Build(heads, links)

	got, _ := s.Links("A")
	got[0] = "mutated"

	// edits to the inputs after Build are not observed either
	links[1].URI = "changed"
	heads[0].URI = "changed"

	again, _ := s.Links("A")
	if !reflect.DeepEqual(again, []string{"X", "Y"}) {
		t.Errorf("snapshot changed after build: %v", again)
	}
}

func TestNilSnapshot(t *testing.T) {
	var s *Snapshot
	if _, ok := s.Links("A"); ok {
		t.Error("nil snapshot should not track anything")
	}
	if s.Len() != 0 || s.Heads() != nil {
		t.Error("nil snapshot should be empty")
	}
}
