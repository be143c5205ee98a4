package checksum

import (
	"strings"
	"testing"
)

func TestCompute_Deterministic(t *testing.T) {
	e := New(nil)
	a := e.Compute([]byte(`{"balance":1500}`))
	b := e.Compute([]byte(`{"balance":1500}`))
	if a != b {
		t.Errorf("same input produced different digests: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "sha256:") {
		t.Errorf("expected sha256 prefix, got %s", a)
	}
}

func TestCompute_Keyed(t *testing.T) {
	e := New([]byte("server-secret"))
	d := e.Compute([]byte("payload"))
	if !strings.HasPrefix(d, "hmac-sha256:") {
		t.Errorf("expected hmac-sha256 prefix, got %s", d)
	}

	// A different key must produce a different digest.
	other := New([]byte("other-secret")).Compute([]byte("payload"))
	if d == other {
		t.Error("different keys produced identical digests")
	}
}

func TestVerify(t *testing.T) {
	e := New([]byte("server-secret"))
	payload := []byte(`{"a":1}`)
	d := e.Compute(payload)

	if !e.Verify(d, payload) {
		t.Error("digest should verify against original bytes")
	}
	if e.Verify(d, []byte(`{"a":2}`)) {
		t.Error("digest should not verify against altered bytes")
	}
}

func TestVerify_SchemeMigration(t *testing.T) {
	// Entries written before a key was provisioned carry plain sha256
	// digests; a keyed engine must still verify them by scheme prefix.
	unkeyed := New(nil)
	payload := []byte("legacy entry")
	legacy := unkeyed.Compute(payload)

	keyed := New([]byte("new-key"))
	if !keyed.Verify(legacy, payload) {
		t.Error("keyed engine should verify legacy sha256 digests")
	}
}

func TestVerify_MalformedDigest(t *testing.T) {
	e := New(nil)
	if e.Verify("not-a-digest", []byte("x")) {
		t.Error("malformed digest must not verify")
	}
	if e.Verify("md5:abcd", []byte("x")) {
		t.Error("unknown scheme must not verify")
	}
	// hmac digest with no key configured cannot be recomputed.
	if e.Verify("hmac-sha256:00ff", []byte("x")) {
		t.Error("keyed digest must not verify on an unkeyed engine")
	}
}
