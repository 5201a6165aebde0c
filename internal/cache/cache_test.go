package cache

import "testing"

func TestCache_SetGetDelete(t *testing.T) {
	c := New()

	if _, ok := c.Get(DetailKey("abc")); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Set(DetailKey("abc"), []byte(`{"id":"abc"}`))
	v, ok := c.Get(DetailKey("abc"))
	if !ok {
		t.Fatal("expected hit after set")
	}
	if string(v) != `{"id":"abc"}` {
		t.Errorf("got %s", v)
	}

	c.Delete(DetailKey("abc"))
	if _, ok := c.Get(DetailKey("abc")); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestCache_InvalidateJob(t *testing.T) {
	c := New()
	c.Set(DetailKey("j1"), []byte("detail"))
	c.Set(ListKey(`{"page":1}`), []byte("list-a"))
	c.Set(ListKey(`{"page":2}`), []byte("list-b"))

	c.InvalidateJob(DetailKey("j1"))

	if _, ok := c.Get(DetailKey("j1")); ok {
		t.Error("detail key should be invalidated")
	}
	if _, ok := c.Get(ListKey(`{"page":1}`)); ok {
		t.Error("list key page 1 should be invalidated")
	}
	if _, ok := c.Get(ListKey(`{"page":2}`)); ok {
		t.Error("list key page 2 should be invalidated")
	}
}

func TestCache_Stats(t *testing.T) {
	c := New()
	c.Set(DetailKey("a"), []byte("x"))
	c.Get(DetailKey("a"))
	c.Get(DetailKey("missing"))

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Sets != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if s.HitRate != 0.5 {
		t.Errorf("expected hit rate 0.5, got %v", s.HitRate)
	}
}
