package main

import (
	"errors"
	"fmt"
	"testing"
)

func testItems(names ...string) []MediaItem {
	items := make([]MediaItem, 0, len(names))
	for _, n := range names {
		items = append(items, NewMediaItem(n, "/media/"+n+".mp4"))
	}
	return items
}

func TestPlaylist_NextWrapsAfterNCalls(t *testing.T) {
	for n := 1; n <= 5; n++ {
		for start := 0; start < n; start++ {
			t.Run(fmt.Sprintf("n=%d/start=%d", n, start), func(t *testing.T) {
				names := make([]string, n)
				for i := range names {
					names[i] = fmt.Sprintf("item%d", i)
				}
				p := NewPlaylist(testItems(names...)...)
				if err := p.Select(start); err != nil {
					t.Fatalf("Select(%d): %v", start, err)
				}

				for i := 0; i < n; i++ {
					if _, err := p.Next(); err != nil {
						t.Fatalf("Next: %v", err)
					}
				}
				if got := p.CurrentIndex(); got != start {
					t.Fatalf("after %d Next calls index=%d, want %d", n, got, start)
				}
			})
		}
	}
}

func TestPlaylist_PreviousUndoesNext(t *testing.T) {
	p := NewPlaylist(testItems("a", "b", "c", "d")...)
	for start := 0; start < p.Len(); start++ {
		_ = p.Select(start)
		if _, err := p.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
		if _, err := p.Previous(); err != nil {
			t.Fatalf("Previous: %v", err)
		}
		if got := p.CurrentIndex(); got != start {
			t.Fatalf("start=%d: next+previous landed on %d", start, got)
		}
	}
}

func TestPlaylist_ScenarioNextWrapsABC(t *testing.T) {
	p := NewPlaylist(testItems("A", "B", "C")...)
	if p.CurrentIndex() != 0 {
		t.Fatalf("expected cursor 0 after first append, got %d", p.CurrentIndex())
	}

	want := []string{"B", "C", "A"}
	for _, name := range want {
		idx, err := p.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		cur, ok := p.Current()
		if !ok || cur.DisplayName != name {
			t.Fatalf("Next -> %d (%q), want %q", idx, cur.DisplayName, name)
		}
	}
}

func TestPlaylist_EmptyNextPrevious(t *testing.T) {
	p := NewPlaylist()

	for name, move := range map[string]func() (int, error){"next": p.Next, "previous": p.Previous} {
		idx, err := move()
		if !errors.Is(err, ErrEmptyPlaylist) {
			t.Fatalf("%s on empty: err=%v, want ErrEmptyPlaylist", name, err)
		}
		if idx != -1 || p.CurrentIndex() != -1 {
			t.Fatalf("%s on empty: idx=%d cursor=%d, want -1", name, idx, p.CurrentIndex())
		}
	}
}

func TestPlaylist_FromNoSelection(t *testing.T) {
	p := &Playlist{items: testItems("a", "b", "c"), current: -1}

	if idx, _ := p.Next(); idx != 0 {
		t.Fatalf("Next from -1 = %d, want 0", idx)
	}

	p.current = -1
	if idx, _ := p.Previous(); idx != 2 {
		t.Fatalf("Previous from -1 = %d, want 2", idx)
	}
}

func TestPlaylist_RemoveAtCursorRules(t *testing.T) {
	tests := []struct {
		name       string
		items      int
		current    int
		remove     int
		wantCursor int
		wantLen    int
	}{
		{name: "before cursor shifts down", items: 3, current: 2, remove: 0, wantCursor: 1, wantLen: 2},
		{name: "after cursor keeps it", items: 3, current: 0, remove: 2, wantCursor: 0, wantLen: 2},
		{name: "current takes successor", items: 3, current: 1, remove: 1, wantCursor: 1, wantLen: 2},
		{name: "current last wraps to zero", items: 3, current: 2, remove: 2, wantCursor: 0, wantLen: 2},
		{name: "singleton empties", items: 1, current: 0, remove: 0, wantCursor: -1, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			names := make([]string, tt.items)
			for i := range names {
				names[i] = fmt.Sprintf("m%d", i)
			}
			p := NewPlaylist(testItems(names...)...)
			_ = p.Select(tt.current)

			if _, err := p.RemoveAt(tt.remove); err != nil {
				t.Fatalf("RemoveAt: %v", err)
			}
			if p.CurrentIndex() != tt.wantCursor {
				t.Fatalf("cursor=%d, want %d", p.CurrentIndex(), tt.wantCursor)
			}
			if p.Len() != tt.wantLen {
				t.Fatalf("len=%d, want %d", p.Len(), tt.wantLen)
			}
		})
	}
}

func TestPlaylist_RemoveAtOutOfRange(t *testing.T) {
	p := NewPlaylist(testItems("a")...)

	_, err := p.RemoveAt(3)
	if !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("err=%v, want ErrIndexOutOfRange", err)
	}
	var idxErr *IndexError
	if !errors.As(err, &idxErr) || idxErr.Index != 3 || idxErr.Len != 1 {
		t.Fatalf("expected IndexError{3,1}, got %#v", err)
	}
	if p.Len() != 1 || p.CurrentIndex() != 0 {
		t.Fatalf("failed remove mutated playlist")
	}
}

func TestPlaylist_DuplicatesKeepDistinctIDs(t *testing.T) {
	p := NewPlaylist()
	a := NewMediaItem("", "/media/clip.mp4")
	b := NewMediaItem("", "/media/clip.mp4")
	p.Append(a)
	p.Append(b)

	items := p.Items()
	if items[0].ID == items[1].ID {
		t.Fatalf("duplicate locators share an ID")
	}
	if items[0].DisplayName != "clip.mp4" {
		t.Fatalf("display name fallback = %q", items[0].DisplayName)
	}

	// Items is a copy.
	items[0].DisplayName = "changed"
	if cur, _ := p.Current(); cur.DisplayName != "clip.mp4" {
		t.Fatalf("Items leaked internal slice")
	}
}
