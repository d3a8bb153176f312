package settlement

import (
	"crypto/ed25519"
	"encoding/binary"
	"time"

	"github.com/zeebo/blake3"

	"fenrir/domain/order"
)

// ExchangeTransaction binds a matched buy/sell pair into one signed
// settlement-layer transaction.
type ExchangeTransaction struct {
	ID             order.ID        `json:"id"`
	BuyOrder       order.Order     `json:"buyOrder"`
	SellOrder      order.Order     `json:"sellOrder"`
	Price          int64           `json:"price"`
	Amount         int64           `json:"amount"`
	BuyMatcherFee  int64           `json:"buyMatcherFee"`
	SellMatcherFee int64           `json:"sellMatcherFee"`
	Fee            int64           `json:"fee"`
	Timestamp      int64           `json:"timestamp"`
	MatcherPK      order.PublicKey `json:"matcherPublicKey"`
	Sig            order.Signature `json:"signature"`
}

// Signer is the matcher's settlement identity, supplied by the
// wallet at startup.
type Signer struct {
	pub  order.PublicKey
	priv ed25519.PrivateKey
}

func NewSigner(priv ed25519.PrivateKey) *Signer {
	var pub order.PublicKey
	copy(pub[:], priv.Public().(ed25519.PublicKey))
	return &Signer{pub: pub, priv: priv}
}

func (s *Signer) PublicKey() order.PublicKey { return s.pub }

// BuildExchangeTx assembles and signs the transaction for one fill.
// The price is the resident counter's price; per-order matcher fees
// are charged pro rata to the filled fraction.
func (s *Signer) BuildExchangeTx(buy, sell *order.Order, price, amount, txFee int64) *ExchangeTransaction {
	tx := &ExchangeTransaction{
		BuyOrder:       *buy,
		SellOrder:      *sell,
		Price:          price,
		Amount:         amount,
		BuyMatcherFee:  order.ProRata(buy.MatcherFee, amount, buy.Amount),
		SellMatcherFee: order.ProRata(sell.MatcherFee, amount, sell.Amount),
		Fee:            txFee,
		Timestamp:      time.Now().UnixMilli(),
		MatcherPK:      s.pub,
	}
	body := tx.signingBytes()
	tx.ID = order.ID(blake3.Sum256(body))
	copy(tx.Sig[:], ed25519.Sign(s.priv, body))
	return tx
}

func (tx *ExchangeTransaction) signingBytes() []byte {
	buf := make([]byte, 0, 2*len(order.ID{})+len(tx.MatcherPK)+6*8)
	buf = append(buf, tx.BuyOrder.ID[:]...)
	buf = append(buf, tx.SellOrder.ID[:]...)
	buf = append(buf, tx.MatcherPK[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(tx.Price))
	buf = binary.BigEndian.AppendUint64(buf, uint64(tx.Amount))
	buf = binary.BigEndian.AppendUint64(buf, uint64(tx.BuyMatcherFee))
	buf = binary.BigEndian.AppendUint64(buf, uint64(tx.SellMatcherFee))
	buf = binary.BigEndian.AppendUint64(buf, uint64(tx.Fee))
	buf = binary.BigEndian.AppendUint64(buf, uint64(tx.Timestamp))
	return buf
}

// Verify checks the matcher signature.
func (tx *ExchangeTransaction) Verify() bool {
	if tx.ID != order.ID(blake3.Sum256(tx.signingBytes())) {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(tx.MatcherPK[:]), tx.signingBytes(), tx.Sig[:])
}
