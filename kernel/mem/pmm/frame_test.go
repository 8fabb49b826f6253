package pmm

import (
	"testing"

	"github.com/nyxkernel/core/kernel/mem"
)

func TestNumberAddressRoundTrip(t *testing.T) {
	n := Number(42)
	if got := NumberFromAddress(n.Address()); got != n {
		t.Fatalf("NumberFromAddress(n.Address()) = %d; want %d", got, n)
	}
}

func TestInvalidNumber(t *testing.T) {
	if InvalidNumber.IsValid() {
		t.Fatalf("InvalidNumber must never be valid")
	}
	if !Number(0).IsValid() {
		t.Fatalf("frame 0 must be valid")
	}
}

func TestDescriptorLinkHygiene(t *testing.T) {
	a := &Descriptor{number: 0}
	b := &Descriptor{number: 1}

	a.SetLink(b)
	if a.Link() != b {
		t.Fatalf("expected a to link to b")
	}

	a.ResetLink()
	if a.Link() != nil {
		t.Fatalf("expected a to be unlinked after ResetLink")
	}

	// relinking after reset must succeed
	a.SetLink(nil)
}

func TestDescriptorSetLinkPanicsWhenAlreadyLinked(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected SetLink on a linked descriptor to panic")
		}
	}()

	a := &Descriptor{}
	a.SetLink(&Descriptor{})
	a.SetLink(&Descriptor{}) // must panic: a is still linked
}

func TestDescriptorOrderState(t *testing.T) {
	d := &Descriptor{}
	d.SetOrder(mem.PageOrder(3))
	d.SetState(Free)

	if d.Order() != 3 || d.State() != Free {
		t.Fatalf("unexpected descriptor state: %+v", d)
	}
}
