package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
)

func TestGeneratorRawIDIsVersion7(t *testing.T) {
	t.Parallel()

	id, err := New().NewRawID()
	if err != nil {
		t.Fatalf("NewRawID() error = %v", err)
	}
	parsed, err := goUUID.Parse(id.String())
	if err != nil {
		t.Fatalf("id not valid UUID: %v", err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
}

func TestGeneratorRawIDsAreOrdered(t *testing.T) {
	t.Parallel()

	gen := New()
	first, err := gen.NewRawID()
	if err != nil {
		t.Fatalf("NewRawID() error = %v", err)
	}
	second, err := gen.NewRawID()
	if err != nil {
		t.Fatalf("NewRawID() error = %v", err)
	}
	if first.String() >= second.String() {
		t.Fatalf("expected %s < %s", first, second)
	}
}
