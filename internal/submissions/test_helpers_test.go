package submissions

import "testing"

func mustCallID(t *testing.T, value string) CallID {
	t.Helper()
	id, err := NewCallID(value)
	if err != nil {
		t.Fatalf("unexpected call id error: %v", err)
	}
	return id
}

func mustArtistID(t *testing.T, value string) ArtistID {
	t.Helper()
	id, err := NewArtistID(value)
	if err != nil {
		t.Fatalf("unexpected artist id error: %v", err)
	}
	return id
}

func validContent() Content {
	return Content{
		Title:       "Tidal Study IV",
		Description: "Cyanotype series on cotton rag",
		MediaRefs:   []string{"https://blobs.example/works/tidal-4.jpg"},
	}
}
