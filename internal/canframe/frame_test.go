package canframe

import (
	"errors"
	"testing"
)

func TestFrameValid(t *testing.T) {
	cases := []struct {
		name string
		fr   Frame
		want bool
	}{
		{"std ok", Frame{ID: MaxStandardID, DLC: 8}, true},
		{"std over", Frame{ID: MaxStandardID + 1, DLC: 0}, false},
		{"ext ok", Frame{ID: MaxExtendedID, Extended: true, DLC: 8}, true},
		{"ext over", Frame{ID: MaxExtendedID + 1, Extended: true}, false},
		{"dlc over", Frame{ID: 1, DLC: 9}, false},
		{"remote zero dlc", Frame{ID: 1, Remote: true}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.fr.Valid(); got != c.want {
				t.Fatalf("Valid() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestFrameString(t *testing.T) {
	fr := Frame{ID: 0x123, DLC: 2, Data: [8]byte{0xAA, 0xBB}}
	s := fr.String()
	if s == "" {
		t.Fatal("expected non-empty string")
	}
	rtr := Frame{ID: 0x123, Remote: true, DLC: 4}
	if got := rtr.String(); got == "" {
		t.Fatal("expected non-empty rtr string")
	}
}

func TestStatusHas(t *testing.T) {
	s := StatusBusOff | StatusWarningLevel
	if !s.Has(StatusBusOff) {
		t.Fatal("expected Has(StatusBusOff)")
	}
	if s.Has(StatusBusError) {
		t.Fatal("did not expect Has(StatusBusError)")
	}
}

func TestErrorWrapPreservesIs(t *testing.T) {
	cause := errors.New("device gone")
	wrapped := ErrResource.Wrap(cause)
	if !errors.Is(wrapped, ErrResource) {
		t.Fatal("expected errors.Is(wrapped, ErrResource) to hold")
	}
	if !errors.Is(wrapped, cause) {
		t.Fatal("expected errors.Is to still reach the wrapped cause")
	}
	if errors.Is(wrapped, ErrTimeout) {
		t.Fatal("did not expect wrapped ErrResource to match ErrTimeout")
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(nil) != CodeOK {
		t.Fatal("expected CodeOK for nil error")
	}
	if CodeOf(ErrBusOff) != CodeBusOff {
		t.Fatal("expected CodeBusOff")
	}
	if CodeOf(errors.New("other")) != CodeLibraryError {
		t.Fatal("expected CodeLibraryError for foreign error")
	}
}
