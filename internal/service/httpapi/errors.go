package httpapi

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	codeUnauthorized = "unauthorized"
	codeForbidden    = "forbidden"
)

// PaymentRecordedOrderMissingMessage — текст для покупателя, у которого списаны деньги без заказа.
const PaymentRecordedOrderMissingMessage = "Payment successful, but order placement failed. Contact support."

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type kindMapping struct {
	status  int
	message string
}

var kindMappings = map[domain.ErrorKind]kindMapping{
	domain.KindEmptyCart:                   {http.StatusUnprocessableEntity, "cart is empty"},
	domain.KindGatewayUnavailable:          {http.StatusServiceUnavailable, "payment gateway is unavailable, try again later"},
	domain.KindMalformedCallback:           {http.StatusBadRequest, "payment callback is missing required fields"},
	domain.KindSignatureMismatch:           {http.StatusForbidden, "payment signature verification failed"},
	domain.KindIntentOwnerMismatch:         {http.StatusForbidden, "payment does not belong to this session"},
	domain.KindFinalizationFailed:          {http.StatusInternalServerError, "order placement failed"},
	domain.KindPaymentRecordedOrderMissing: {http.StatusInternalServerError, PaymentRecordedOrderMissingMessage},
	domain.KindIdempotencyConflict:         {http.StatusConflict, "request with this Idempotency-Key is in progress or has different parameters"},
	domain.KindInvalidArgument:             {http.StatusBadRequest, "invalid request"},
	domain.KindNotFound:                    {http.StatusNotFound, "not found"},
	domain.KindInternal:                    {http.StatusInternalServerError, "internal server error"},
}

// statusForKind возвращает HTTP-статус и безопасный текст для кода ошибки.
func statusForKind(kind domain.ErrorKind) (int, string) {
	if m, ok := kindMappings[kind]; ok {
		return m.status, m.message
	}
	m := kindMappings[domain.KindInternal]
	return m.status, m.message
}

// writeDomainError отвечает клиенту по таблице ErrorKind; текст исходной ошибки наружу не уходит.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.Classify(err)
	status, message := statusForKind(kind)
	if kind == domain.KindInternal {
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("unclassified error")
	}
	respondError(w, status, string(kind), message)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}
