package channel

import (
	"bytes"
	"testing"
)

func TestDeriveDeterministic(t *testing.T) {
	a := Derive("0x0-123-4567-8901", "a3f9")
	b := Derive("0x0-123-4567-8901", "a3f9")
	if !bytes.Equal(a[:], b[:]) {
		t.Fatalf("identical inputs produced different secrets")
	}
	if len(a) != SecretSize {
		t.Fatalf("expected %d bytes, got %d", SecretSize, len(a))
	}
}

func TestDeriveSensitivity(t *testing.T) {
	base := Derive("0x0-123-4567-8901", "a3f9")
	otherNumber := Derive("0x0-999-9999-9999", "a3f9")
	otherPin := Derive("0x0-123-4567-8901", "b72e")
	if bytes.Equal(base[:], otherNumber[:]) {
		t.Fatalf("changing the number did not change the secret")
	}
	if bytes.Equal(base[:], otherPin[:]) {
		t.Fatalf("changing the pin did not change the secret")
	}
}

func TestTopicHidesSecret(t *testing.T) {
	secret := Derive("0x0-123-4567-8901", "a3f9")
	topic := Topic(secret)
	if bytes.Equal(topic[:], secret[:]) {
		t.Fatal("topic must not expose the secret")
	}
	if again := Topic(secret); !bytes.Equal(topic[:], again[:]) {
		t.Fatal("topic not deterministic")
	}
	other := Topic(Derive("0x0-123-4567-8901", "b72e"))
	if bytes.Equal(topic[:], other[:]) {
		t.Fatal("different secrets share a topic")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	secret := Derive("0x0-123-4567-8901", "a3f9")
	plain := []byte(`{"v":"1","type":"message","content":"hello"}`)

	sealed := Seal(secret, plain)
	if bytes.Contains(sealed, []byte("hello")) {
		t.Fatal("plaintext visible in sealed payload")
	}
	got, err := Open(secret, sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestOpenRejectsForeignAndTampered(t *testing.T) {
	secret := Derive("0x0-123-4567-8901", "a3f9")
	sealed := Seal(secret, []byte("payload"))

	if _, err := Open(Derive("0x0-999-9999-9999", "a3f9"), sealed); err == nil {
		t.Fatal("payload opened under the wrong secret")
	}
	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0x01
	if _, err := Open(secret, tampered); err == nil {
		t.Fatal("tampered payload accepted")
	}
	if _, err := Open(secret, sealed[:4]); err == nil {
		t.Fatal("truncated payload accepted")
	}
}

func TestShortKey(t *testing.T) {
	if got := ShortKey("abc123def456abc123def456"); got != "abc123def456abc1" {
		t.Fatalf("unexpected short key %q", got)
	}
	if got := ShortKey("abcd"); got != "abcd" {
		t.Fatalf("short input should pass through, got %q", got)
	}
}
