package weather

import "testing"

func TestCacheGetBeforeSet(t *testing.T) {
	c := NewCache()
	if _, _, ok := c.Get(); ok {
		t.Fatal("expected ok=false before any Set call")
	}
}

func TestCacheSetThenGet(t *testing.T) {
	c := NewCache()
	c.Set(48.2, 16.37)
	lat, lon, ok := c.Get()
	if !ok || lat != 48.2 || lon != 16.37 {
		t.Errorf("Get() = %v, %v, %v", lat, lon, ok)
	}
}
