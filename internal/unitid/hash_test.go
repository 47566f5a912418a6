package unitid

import "testing"

func TestHashStableAcrossMapOrder(t *testing.T) {
	a := Spec{
		Command: "/bin/sh -c true",
		Env:     map[string]string{"A": "1", "B": "2"},
	}
	b := Spec{
		Command: "/bin/sh -c true",
		Env:     map[string]string{"B": "2", "A": "1"},
	}
	if Hash(a) != Hash(b) {
		t.Fatalf("hash depends on map iteration order")
	}
}

func TestHashChangesWithCommand(t *testing.T) {
	a := Hash(Spec{Command: "one"})
	b := Hash(Spec{Command: "two"})
	if a == b {
		t.Fatalf("expected different hashes for different commands")
	}
}

func TestHashStableAcrossCapabilityOrder(t *testing.T) {
	a := Hash(Spec{Command: "x", Capabilities: []string{"CAP_NET_BIND_SERVICE", "CAP_SYS_NICE"}})
	b := Hash(Spec{Command: "x", Capabilities: []string{"CAP_SYS_NICE", "CAP_NET_BIND_SERVICE"}})
	if a != b {
		t.Fatalf("hash depends on capability slice order")
	}
}
