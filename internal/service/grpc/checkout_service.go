package grpcsvc

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/checkout/internal/auth"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
)

const (
	authorizationHeader  = "authorization"
	idempotencyKeyHeader = "idempotency-key"
	// ReplayedHeader выставляется в header ответа, если initiate отдан из сохранённой попытки.
	ReplayedHeader = "idempotency-replayed"

	errorDomain = "checkout"

	paymentRecordedOrderMissingMessage = "Payment successful, but order placement failed. Contact support."
)

// Checkout — операции оркестратора, доступные по gRPC.
type Checkout interface {
	Initiate(ctx context.Context, userID string) (checkout.InitiateResult, error)
	InitiateIdempotent(ctx context.Context, userID, key string) (checkout.InitiateResult, bool, error)
	Verify(ctx context.Context, userID string, cb domain.PaymentCallback) (checkout.VerifyResult, error)
}

// SessionParser проверяет bearer-токен из metadata.
type SessionParser interface {
	ParseBearer(header string) (auth.Session, error)
}

// CheckoutService реализует checkout.v1.CheckoutService.
type CheckoutService struct {
	checkout Checkout
	sessions SessionParser
	logger   *log.Entry
}

// NewCheckoutService конструирует gRPC-сервис.
func NewCheckoutService(svc Checkout, sessions SessionParser, logger *log.Entry) *CheckoutService {
	if logger == nil {
		logger = log.WithField("component", "grpc-checkout")
	}
	return &CheckoutService{
		checkout: svc,
		sessions: sessions,
		logger:   logger,
	}
}

var _ CheckoutServer = (*CheckoutService)(nil)

// Initiate — фаза 1. Необязательный idempotency-key берётся из metadata.
func (s *CheckoutService) Initiate(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	session, err := s.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	var (
		res      checkout.InitiateResult
		replayed bool
	)
	if key := firstMetadata(ctx, idempotencyKeyHeader); key != "" {
		res, replayed, err = s.checkout.InitiateIdempotent(ctx, session.UserID, key)
	} else {
		res, err = s.checkout.Initiate(ctx, session.UserID)
	}
	if err != nil {
		return nil, toStatus(err)
	}

	if replayed {
		if hdrErr := grpc.SetHeader(ctx, metadata.Pairs(ReplayedHeader, "true")); hdrErr != nil {
			s.logger.WithError(hdrErr).Debug("failed to set replay header")
		}
	}

	return newStruct(map[string]any{
		"intent_id":          res.IntentID,
		"amount_minor_units": res.AmountMinor,
		"currency":           res.Currency,
		"receipt":            res.Receipt,
	})
}

// Verify — фаза 2: {intent_id, payment_id, signature}.
func (s *CheckoutService) Verify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	session, err := s.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	cb := domain.PaymentCallback{
		IntentID:  stringField(req, "intent_id"),
		PaymentID: stringField(req, "payment_id"),
		Signature: stringField(req, "signature"),
	}
	res, err := s.checkout.Verify(ctx, session.UserID, cb)
	if err != nil {
		return nil, toStatus(err)
	}

	return newStruct(map[string]any{
		"order_id":     res.Order.ID,
		"total_amount": res.Order.TotalAmount.StringFixed(2),
		"currency":     res.Order.Currency,
		"status":       string(res.Order.Status),
		"replayed":     res.Replayed,
	})
}

func (s *CheckoutService) authenticate(ctx context.Context) (auth.Session, error) {
	session, err := s.sessions.ParseBearer(firstMetadata(ctx, authorizationHeader))
	if err != nil {
		s.logger.WithError(err).Debug("unauthenticated grpc call")
		return auth.Session{}, status.Error(codes.Unauthenticated, "authentication required")
	}
	return session, nil
}

// toStatus переводит доменную ошибку в gRPC-статус с ErrorInfo.Reason = ErrorKind.
func toStatus(err error) error {
	kind := domain.Classify(err)

	var (
		code    codes.Code
		message string
	)
	switch kind {
	case domain.KindEmptyCart:
		code, message = codes.FailedPrecondition, "cart is empty"
	case domain.KindGatewayUnavailable:
		code, message = codes.Unavailable, "payment gateway is unavailable"
	case domain.KindMalformedCallback:
		code, message = codes.InvalidArgument, "intent_id, payment_id and signature are required"
	case domain.KindSignatureMismatch:
		code, message = codes.PermissionDenied, "payment signature verification failed"
	case domain.KindIntentOwnerMismatch:
		code, message = codes.PermissionDenied, "payment does not belong to this session"
	case domain.KindPaymentRecordedOrderMissing:
		code, message = codes.Internal, paymentRecordedOrderMissingMessage
	case domain.KindFinalizationFailed:
		code, message = codes.Internal, "order placement failed"
	case domain.KindIdempotencyConflict:
		if errors.Is(err, domain.ErrIdempotencyHashMismatch) {
			code, message = codes.AlreadyExists, "idempotency key is already used with different request"
		} else {
			code, message = codes.Aborted, "request with the same idempotency key is already processing"
		}
	case domain.KindInvalidArgument:
		code, message = codes.InvalidArgument, "invalid request"
	case domain.KindNotFound:
		code, message = codes.NotFound, "not found"
	default:
		code, message = codes.Internal, "internal error"
	}

	st := status.New(code, message)
	detailed, detailErr := st.WithDetails(&errdetails.ErrorInfo{
		Reason: string(kind),
		Domain: errorDomain,
	})
	if detailErr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// ErrorKindFromStatus достаёт ErrorKind из деталей статуса.
func ErrorKindFromStatus(err error) domain.ErrorKind {
	st, ok := status.FromError(err)
	if !ok {
		return domain.KindInternal
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.GetDomain() == errorDomain {
			return domain.ErrorKind(info.GetReason())
		}
	}
	return domain.KindNone
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

func stringField(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	value, ok := req.GetFields()[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(value.GetStringValue())
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}
