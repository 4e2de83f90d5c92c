package cache

import "testing"

func TestRPsKeyAndCQsKey_NamespaceByDatabase(t *testing.T) {
	if got, want := RPsKey("sppmon"), "sppmon:rps:sppmon"; got != want {
		t.Fatalf("RPsKey() = %q, want %q", got, want)
	}
	if got, want := CQsKey("sppmon"), "sppmon:cqs:sppmon"; got != want {
		t.Fatalf("CQsKey() = %q, want %q", got, want)
	}
	if RPsKey("a") == CQsKey("a") {
		t.Fatal("RPsKey and CQsKey must not collide for the same database")
	}
}
