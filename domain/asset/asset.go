package asset

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// IDSize is the byte length of an issued asset identifier.
const IDSize = 32

// Asset identifies a tradable asset. The zero value is the native
// asset sentinel; any other value is a 32-byte issued asset id.
type Asset [IDSize]byte

// Native is the chain's native asset.
var Native Asset

func (a Asset) IsNative() bool {
	return a == Native
}

func (a Asset) String() string {
	if a.IsNative() {
		return "NATIVE"
	}
	return base58.Encode(a[:])
}

// Compare orders assets by raw bytes. The native sentinel is all
// zeroes and therefore sorts before every issued asset.
func (a Asset) Compare(b Asset) int {
	return bytes.Compare(a[:], b[:])
}

// FromString parses the textual form produced by String.
func FromString(s string) (Asset, error) {
	if s == "" || s == "NATIVE" {
		return Native, nil
	}
	raw := base58.Decode(s)
	if len(raw) != IDSize {
		return Native, fmt.Errorf("asset %q: want %d bytes, got %d", s, IDSize, len(raw))
	}
	var a Asset
	copy(a[:], raw)
	return a, nil
}

func (a Asset) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := FromString(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
