package app

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/checkout/internal/health"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
	"github.com/vladislavdragonenkov/checkout/internal/service/payment"
)

// initGateway выбирает платёжный шлюз. Для razorpay дополнительно возвращает
// проверку состояния circuit breaker.
func initGateway(cfg Config, logger *log.Entry) (domain.PaymentGateway, healthcheck.Checker, error) {
	switch cfg.Gateway {
	case "", GatewayMock:
		logger.Warn("using mock payment gateway")
		return payment.NewMockGateway(checkout.NewVerifier(cfg.signingSecret())), nil, nil
	case GatewayRazorpay:
		rpCfg := payment.DefaultRazorpayConfig()
		rpCfg.KeyID = cfg.GatewayKeyID
		rpCfg.KeySecret = cfg.GatewayKeySecret
		if cfg.GatewayURL != "" {
			rpCfg.BaseURL = cfg.GatewayURL
		}
		if cfg.GatewayTimeout > 0 {
			rpCfg.Timeout = cfg.GatewayTimeout
		}

		gateway, err := payment.NewRazorpayGateway(rpCfg, logger.WithField("component", "razorpay-gateway"))
		if err != nil {
			return nil, nil, err
		}
		checker := healthcheck.NewStateChecker("gateway", func() string {
			if gateway.State() == gobreaker.StateOpen {
				return "circuit breaker open"
			}
			return ""
		})
		logger.WithField("base_url", rpCfg.BaseURL).Info("using razorpay payment gateway")
		return gateway, checker, nil
	default:
		return nil, nil, fmt.Errorf("unsupported payment gateway %q", cfg.Gateway)
	}
}
