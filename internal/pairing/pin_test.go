package pairing

import "testing"

func TestGenerateProducesSixDigits(t *testing.T) {
	for i := 0; i < 20; i++ {
		pin, err := Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if len(pin) != Length {
			t.Fatalf("expected %d-digit PIN, got %q", Length, pin)
		}
		for _, r := range pin {
			if r < '0' || r > '9' {
				t.Fatalf("expected all-decimal PIN, got %q", pin)
			}
		}
	}
}

func TestVerify(t *testing.T) {
	if !Verify("123456", "123456") {
		t.Fatal("expected matching PINs to verify")
	}
	if Verify("123456", "000000") {
		t.Fatal("expected mismatched PINs to fail verification")
	}
}
