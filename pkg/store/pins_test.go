package store

import (
	"errors"
	"testing"
	"time"

	"zerozero/pkg/models"
)

func newTestPins(t *testing.T) *Pins {
	t.Helper()
	p, err := NewPins(newTestStore(t))
	if err != nil {
		t.Fatalf("new pins: %v", err)
	}
	return p
}

func TestPinCreateAndFind(t *testing.T) {
	p := newTestPins(t)
	pin, err := p.Create(CreateParams{Value: "a1b2c3", Label: "work"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if pin.Type != models.PinDirect || !pin.IsActive {
		t.Fatalf("unexpected pin: %+v", pin)
	}
	got, err := p.FindByValue("a1b2c3")
	if err != nil || got.ID != pin.ID {
		t.Fatalf("find by value: %v %+v", err, got)
	}
	if _, err := p.FindByValue("deadbeef"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPinCreateRejectsBadGrammar(t *testing.T) {
	p := newTestPins(t)
	for _, v := range []string{"", "abc", "XYZ123", "0123456789abcdef0"} {
		if _, err := p.Create(CreateParams{Value: v}); err == nil {
			t.Fatalf("value %q should be rejected", v)
		}
	}
}

func TestPinDuplicateValueRejected(t *testing.T) {
	p := newTestPins(t)
	if _, err := p.Create(CreateParams{Value: "cafe01"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := p.Create(CreateParams{Value: "cafe01"}); !errors.Is(err, ErrDuplicatePin) {
		t.Fatalf("want ErrDuplicatePin, got %v", err)
	}
	// revoking frees the value for reuse
	pin, _ := p.FindByValue("cafe01")
	if !p.Revoke(pin.ID) {
		t.Fatal("revoke failed")
	}
	if _, err := p.Create(CreateParams{Value: "cafe01"}); err != nil {
		t.Fatalf("reuse after revoke: %v", err)
	}
}

func TestPinRevokeIdempotent(t *testing.T) {
	p := newTestPins(t)
	pin, _ := p.Create(CreateParams{Value: "beef99"})
	if !p.Revoke(pin.ID) || !p.Revoke(pin.ID) {
		t.Fatal("revoke should be idempotent")
	}
	if p.Revoke("pin-nope") {
		t.Fatal("unknown id should report false")
	}
	if got := p.GetActive(); len(got) != 0 {
		t.Fatalf("revoked pin still active: %+v", got)
	}
}

func TestPinRotateKeepsID(t *testing.T) {
	p := newTestPins(t)
	pin, _ := p.Create(CreateParams{Value: "111111"})
	rotated, err := p.Rotate(pin.ID, "222222")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.ID != pin.ID || rotated.Value != "222222" || rotated.RotatedAt == 0 {
		t.Fatalf("unexpected rotate result: %+v", rotated)
	}
	if _, err := p.FindByValue("111111"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old value should be gone, got %v", err)
	}
}

func TestPinExpiryEnforcedAtRead(t *testing.T) {
	p := newTestPins(t)
	past := time.Now().Add(-time.Hour).UnixMilli()
	if _, err := p.Create(CreateParams{Value: "dddddd", Expiry: "1h", ExpiresAt: past}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := p.GetActive(); len(got) != 0 {
		t.Fatalf("expired pin listed as active: %+v", got)
	}
	// still findable for history views
	if _, err := p.FindByValue("dddddd"); err != nil {
		t.Fatalf("expired pin should remain findable: %v", err)
	}
}

func TestPinsReloadFromDisk(t *testing.T) {
	s := newTestStore(t)
	p, err := NewPins(s)
	if err != nil {
		t.Fatalf("new pins: %v", err)
	}
	pin, _ := p.Create(CreateParams{Value: "abcdef", Label: "main"})

	p2, err := NewPins(s)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, err := p2.FindByID(pin.ID)
	if err != nil || got.Value != "abcdef" || got.Label != "main" {
		t.Fatalf("reloaded pin mismatch: %v %+v", err, got)
	}
}
