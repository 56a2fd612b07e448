package accounts

import "testing"

func TestDefaultWorkableSet(t *testing.T) {
	w := DefaultWorkableSet()
	for _, s := range []Status{StatusNew, StatusActive, StatusNoContact, StatusSkip} {
		if !w.Includes(s) {
			t.Fatalf("expected %s included", s)
		}
	}
	for _, s := range []Status{StatusDeceased, StatusBankruptcy, StatusLawyer, StatusDispute, StatusPaid, StatusPaying} {
		if w.Includes(s) {
			t.Fatalf("expected %s excluded", s)
		}
	}
	if w.Includes(Status("mystery")) {
		t.Fatalf("expected unknown status excluded")
	}
}

func TestWorkableSet_IncludedOrderAndClone(t *testing.T) {
	w := DefaultWorkableSet()
	got := w.Included()
	if len(got) != 4 || got[0] != StatusNew || got[3] != StatusSkip {
		t.Fatalf("unexpected included: %v", got)
	}
	c := w.Clone()
	c[StatusDeceased] = true
	if w.Includes(StatusDeceased) {
		t.Fatalf("expected clone to be independent")
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := ParseStatus(" No_Contact "); !ok || s != StatusNoContact {
		t.Fatalf("expected no_contact, got %q %v", s, ok)
	}
	if _, ok := ParseStatus("archived"); ok {
		t.Fatalf("expected unknown status rejected")
	}
}
