package store

import (
	"errors"
	"testing"
)

func TestContactCreateValidates(t *testing.T) {
	c := NewContacts(newTestStore(t))
	if _, err := c.Create("not-a-number", "abc123", ""); err == nil {
		t.Fatal("bad number accepted")
	}
	if _, err := c.Create("0x0-123-4567-8901", "XYZ", ""); err == nil {
		t.Fatal("bad pin accepted")
	}
	contact, err := c.Create("0x0-123-4567-8901", "abc123", "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if contact.Label != "alice" || contact.CreatedAt == 0 {
		t.Fatalf("unexpected contact: %+v", contact)
	}
}

func TestContactUpdatePin(t *testing.T) {
	c := NewContacts(newTestStore(t))
	contact, _ := c.Create("0x0-123-4567-8901", "abc123", "")
	updated, err := c.UpdatePin(contact.ID, "def456")
	if err != nil || updated.TheirPin != "def456" {
		t.Fatalf("update pin: %v %+v", err, updated)
	}
	if _, err := c.UpdatePin(contact.ID, "NOPE"); err == nil {
		t.Fatal("bad replacement pin accepted")
	}
	if _, err := c.UpdatePin("contact-missing", "abc123"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestContactFindByPublicKey(t *testing.T) {
	c := NewContacts(newTestStore(t))
	contact, _ := c.Create("0x0-123-4567-8901", "abc123", "")
	if _, err := c.FindByPublicKey("feedface"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := c.UpdatePublicKey(contact.ID, "feedface"); err != nil {
		t.Fatalf("update key: %v", err)
	}
	got, err := c.FindByPublicKey("feedface")
	if err != nil || got.ID != contact.ID {
		t.Fatalf("find by key: %v %+v", err, got)
	}
}

func TestContactRemove(t *testing.T) {
	c := NewContacts(newTestStore(t))
	contact, _ := c.Create("0x0-123-4567-8901", "abc123", "")
	if err := c.Remove(contact.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := c.FindByID(contact.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("contact still present: %v", err)
	}
	if err := c.Remove(contact.ID); err != nil {
		t.Fatalf("remove twice: %v", err)
	}
}
