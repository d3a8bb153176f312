package order

import "crypto/ed25519"

// CancelRequest asks the matcher to remove a resident order. It must
// be signed by the same key that signed the order.
type CancelRequest struct {
	SenderPK PublicKey `json:"senderPublicKey"`
	OrderID  ID        `json:"orderId"`
	Sig      Signature `json:"signature"`
}

func (c *CancelRequest) signingBytes() []byte {
	buf := make([]byte, 0, len(c.SenderPK)+len(c.OrderID))
	buf = append(buf, c.SenderPK[:]...)
	buf = append(buf, c.OrderID[:]...)
	return buf
}

func (c *CancelRequest) Sign(priv ed25519.PrivateKey) {
	copy(c.Sig[:], ed25519.Sign(priv, c.signingBytes()))
}

func (c *CancelRequest) Verify() bool {
	return ed25519.Verify(ed25519.PublicKey(c.SenderPK[:]), c.signingBytes(), c.Sig[:])
}
