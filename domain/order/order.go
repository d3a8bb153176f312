package order

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/zeebo/blake3"

	"fenrir/domain/asset"
)

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the side a matching counter order rests on.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Side) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v {
	case "buy":
		*s = Buy
	case "sell":
		*s = Sell
	default:
		return fmt.Errorf("unknown side %q", v)
	}
	return nil
}

type (
	// ID is the content hash of an order's signing bytes.
	ID [32]byte

	// PublicKey is an ed25519 public key.
	PublicKey [ed25519.PublicKeySize]byte

	// Signature is an ed25519 signature.
	Signature [ed25519.SignatureSize]byte

	// Address is derived from the sender public key.
	Address [20]byte
)

func (id ID) String() string         { return base58.Encode(id[:]) }
func (pk PublicKey) String() string  { return base58.Encode(pk[:]) }
func (sig Signature) String() string { return base58.Encode(sig[:]) }
func (a Address) String() string     { return base58.Encode(a[:]) }

// AddressOf derives the on-ledger address of a public key.
func AddressOf(pk PublicKey) Address {
	sum := blake3.Sum256(pk[:])
	var a Address
	copy(a[:], sum[:20])
	return a
}

func ParseID(s string) (ID, error) {
	raw := base58.Decode(s)
	if len(raw) != len(ID{}) {
		return ID{}, fmt.Errorf("order id %q: bad length %d", s, len(raw))
	}
	var id ID
	copy(id[:], raw)
	return id, nil
}

func ParseAddress(s string) (Address, error) {
	raw := base58.Decode(s)
	if len(raw) != len(Address{}) {
		return Address{}, fmt.Errorf("address %q: bad length %d", s, len(raw))
	}
	var a Address
	copy(a[:], raw)
	return a, nil
}

func (id ID) MarshalJSON() ([]byte, error) { return json.Marshal(id.String()) }
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (pk PublicKey) MarshalJSON() ([]byte, error) { return json.Marshal(pk.String()) }
func (pk *PublicKey) UnmarshalJSON(data []byte) error {
	return unmarshalFixed(data, pk[:], "public key")
}

func (sig Signature) MarshalJSON() ([]byte, error) { return json.Marshal(sig.String()) }
func (sig *Signature) UnmarshalJSON(data []byte) error {
	return unmarshalFixed(data, sig[:], "signature")
}

func (a Address) MarshalJSON() ([]byte, error) { return json.Marshal(a.String()) }
func (a *Address) UnmarshalJSON(data []byte) error {
	return unmarshalFixed(data, a[:], "address")
}

func unmarshalFixed(data []byte, dst []byte, what string) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw := base58.Decode(s)
	if len(raw) != len(dst) {
		return fmt.Errorf("%s %q: bad length %d", what, s, len(raw))
	}
	copy(dst, raw)
	return nil
}

// Order is an immutable, signed limit order. The ID is derived from
// the signing bytes and is never trusted from the wire.
type Order struct {
	ID         ID         `json:"id"`
	SenderPK   PublicKey  `json:"senderPublicKey"`
	Pair       asset.Pair `json:"assetPair"`
	Side       Side       `json:"orderType"`
	Price      int64      `json:"price"`
	Amount     int64      `json:"amount"`
	Timestamp  int64      `json:"timestamp"`
	Expiration int64      `json:"expiration"`
	MatcherFee int64      `json:"matcherFee"`
	Sig        Signature  `json:"signature"`
}

// SigningBytes is the canonical byte form the sender signs and the
// ID is derived from.
func (o *Order) SigningBytes() []byte {
	buf := make([]byte, 0, 32+2*asset.IDSize+1+5*8)
	buf = append(buf, o.SenderPK[:]...)
	buf = append(buf, o.Pair.AmountAsset[:]...)
	buf = append(buf, o.Pair.PriceAsset[:]...)
	buf = append(buf, byte(o.Side))
	buf = binary.BigEndian.AppendUint64(buf, uint64(o.Price))
	buf = binary.BigEndian.AppendUint64(buf, uint64(o.Amount))
	buf = binary.BigEndian.AppendUint64(buf, uint64(o.Timestamp))
	buf = binary.BigEndian.AppendUint64(buf, uint64(o.Expiration))
	buf = binary.BigEndian.AppendUint64(buf, uint64(o.MatcherFee))
	return buf
}

// ComputeID derives the content-hash id of the order.
func (o *Order) ComputeID() ID {
	return ID(blake3.Sum256(o.SigningBytes()))
}

// Sign fills in the id and signature using the sender's private key.
func (o *Order) Sign(priv ed25519.PrivateKey) {
	o.ID = o.ComputeID()
	copy(o.Sig[:], ed25519.Sign(priv, o.SigningBytes()))
}

// Verify checks the signature against the sender public key and the
// id against the content hash.
func (o *Order) Verify() bool {
	if o.ID != o.ComputeID() {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(o.SenderPK[:]), o.SigningBytes(), o.Sig[:])
}

// SenderAddress derives the sender's address.
func (o *Order) SenderAddress() Address {
	return AddressOf(o.SenderPK)
}

// SpendAsset is the asset the sender pays with.
func (o *Order) SpendAsset() asset.Asset {
	if o.Side == Buy {
		return o.Pair.PriceAsset
	}
	return o.Pair.AmountAsset
}

// ReceiveAsset is the asset the sender acquires.
func (o *Order) ReceiveAsset() asset.Asset {
	if o.Side == Buy {
		return o.Pair.AmountAsset
	}
	return o.Pair.PriceAsset
}
