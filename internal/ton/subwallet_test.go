package ton

import (
	"testing"

	"github.com/google/uuid"
)

func TestDeriveSubwalletID(t *testing.T) {
	id := uuid.New()

	a := DeriveSubwalletID(id)
	b := DeriveSubwalletID(id)
	if a != b {
		t.Fatalf("derivation not stable: %d != %d", a, b)
	}

	if a <= DefaultSubwalletID {
		t.Errorf("derived id %d collides with the default subwallet range", a)
	}
	if a > DefaultSubwalletID+subwalletSpan {
		t.Errorf("derived id %d outside the fixed range", a)
	}

	other := DeriveSubwalletID(uuid.New())
	if other == a {
		t.Log("two random deals mapped to the same subwallet (possible but unlikely)")
	}
}
