package digest_test

import (
	"testing"

	"github.com/axonhq/axon/pkg/digest"
)

func TestSumAndString(t *testing.T) {
	t.Parallel()

	d := digest.Sum([]byte("hello"))

	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

	if got := d.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestParseRoundTrip(t *testing.T) {
	t.Parallel()

	d := digest.Sum([]byte("round trip"))

	parsed, err := digest.Parse(d.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if parsed != d {
		t.Fatalf("parsed = %v, want %v", parsed, d)
	}
}

func TestFromBytesInvalidLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"short", []byte{1, 2, 3}},
		{"long", make([]byte, digest.Size+1)},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := digest.FromBytes(testCase.in)
			if err == nil {
				t.Fatalf("FromBytes(%d bytes) succeeded, want error", len(testCase.in))
			}
		})
	}
}

func TestParseInvalidHex(t *testing.T) {
	t.Parallel()

	_, err := digest.Parse("not-hex")
	if err == nil {
		t.Fatal("Parse succeeded, want error")
	}
}

func TestIsZero(t *testing.T) {
	t.Parallel()

	var zero digest.SHA256

	if !zero.IsZero() {
		t.Fatal("zero value IsZero() = false, want true")
	}

	if digest.Sum([]byte("x")).IsZero() {
		t.Fatal("non-zero digest IsZero() = true, want false")
	}
}
