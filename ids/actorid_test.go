package ids

import "testing"

func TestActorIdHashStable(t *testing.T) {
	a := NewClientId("alice")
	b := NewClientId("alice")
	if a.Hash() != b.Hash() {
		t.Fatalf("same key should hash identically: %d != %d", a.Hash(), b.Hash())
	}
}

func TestActorIdHashDiffersByKey(t *testing.T) {
	a := NewClientId("alice")
	b := NewClientId("bob")
	if a.Hash() == b.Hash() {
		t.Fatalf("distinct keys should not collide in this small sample: %d", a.Hash())
	}
}

func TestIsSystemTarget(t *testing.T) {
	sys := NewSystemTargetId("directory")
	if !sys.IsSystemTarget() {
		t.Fatal("expected system target id to report IsSystemTarget")
	}
	client := NewClientId("alice")
	if client.IsSystemTarget() {
		t.Fatal("client id must not report IsSystemTarget")
	}
}

func TestEndpointEquality(t *testing.T) {
	a := NewEndpoint("10.0.0.1:1234", 1)
	b := NewEndpoint("10.0.0.1:1234", 1)
	c := NewEndpoint("10.0.0.1:1234", 2)

	if a != b {
		t.Fatal("identical address+generation should be equal")
	}
	if a == c {
		t.Fatal("differing generation must not be equal, even with same address")
	}
}

func TestEndpointIsZero(t *testing.T) {
	var e Endpoint
	if !e.IsZero() {
		t.Fatal("zero-value Endpoint should report IsZero")
	}
	if NewEndpoint("x", 0).IsZero() {
		t.Fatal("endpoint with an address should not report IsZero")
	}
}
