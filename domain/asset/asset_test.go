package asset

import "testing"

func issued(b byte) Asset {
	var a Asset
	a[0] = b
	return a
}

func TestNativeSentinel(t *testing.T) {
	if !Native.IsNative() {
		t.Fatal("zero value is the native sentinel")
	}
	if issued(1).IsNative() {
		t.Fatal("issued asset is not native")
	}
	if Native.String() != "NATIVE" {
		t.Errorf("native renders as NATIVE, got %q", Native.String())
	}
}

func TestStringRoundTrip(t *testing.T) {
	a := issued(0xAB)
	parsed, err := FromString(a.String())
	if err != nil || parsed != a {
		t.Errorf("round trip failed: %v", err)
	}
	if n, err := FromString("NATIVE"); err != nil || !n.IsNative() {
		t.Error("NATIVE must parse to the sentinel")
	}
	if n, err := FromString(""); err != nil || !n.IsNative() {
		t.Error("empty string must parse to the sentinel")
	}
	if _, err := FromString("!!!not-base58!!!"); err == nil {
		t.Error("garbage must not parse")
	}
}

func TestNativeSortsFirst(t *testing.T) {
	if Native.Compare(issued(1)) >= 0 {
		t.Error("native must sort before every issued asset")
	}
	if issued(1).Compare(issued(2)) >= 0 {
		t.Error("byte order must decide issued assets")
	}
}

func TestPairOrientation(t *testing.T) {
	p := NewPair(issued(2), issued(1))
	if !p.CanonicalByBytes() {
		t.Error("price below amount in byte order is canonical")
	}
	if p.Reverse().CanonicalByBytes() {
		t.Error("the reverse cannot also be canonical")
	}
	if p.Reverse().Reverse() != p {
		t.Error("double reverse is identity")
	}
	if !p.Valid() || NewPair(issued(1), issued(1)).Valid() {
		t.Error("validity is asset distinctness")
	}
}
