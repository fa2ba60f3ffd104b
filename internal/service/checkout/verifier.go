package checkout

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Verifier проверяет подпись callback платёжного шлюза.
// Секрет задаётся один раз при создании и дальше только читается.
type Verifier struct {
	secret []byte
}

// NewVerifier создаёт проверяющего с общим секретом шлюза.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign вычисляет hex(HMAC-SHA256(secret, intent_id + "|" + payment_id)).
func (v *Verifier) Sign(intentID, paymentID string) string {
	return hex.EncodeToString(v.mac(intentID, paymentID))
}

func (v *Verifier) mac(intentID, paymentID string) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(intentID + "|" + paymentID))
	return h.Sum(nil)
}

// Verify возвращает ErrMalformedCallback при неполных данных и ErrSignatureMismatch при неверной подписи.
// Сравнение выполняется за постоянное время.
func (v *Verifier) Verify(cb domain.PaymentCallback) error {
	if !cb.Complete() {
		return domain.ErrMalformedCallback
	}

	got, err := hex.DecodeString(cb.Signature)
	if err != nil {
		return domain.ErrSignatureMismatch
	}
	if !hmac.Equal(v.mac(cb.IntentID, cb.PaymentID), got) {
		return domain.ErrSignatureMismatch
	}
	return nil
}
