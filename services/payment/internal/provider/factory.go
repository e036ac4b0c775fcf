package provider

import (
	"fmt"

	"example.com/photo-payments/pkg/config"
)

// New создаёт провайдера по имени из конфигурации.
func New(cfg *config.Config) (Provider, error) {
	switch cfg.Payment.Provider {
	case "alipay":
		return NewAlipay(AlipayConfig{
			AppID:      cfg.Alipay.AppID,
			PrivateKey: cfg.Alipay.PrivateKey,
			PublicKey:  cfg.Alipay.PublicKey,
			ReturnURL:  cfg.Alipay.ReturnURL,
			NotifyURL:  cfg.Alipay.NotifyURL,
			Sandbox:    cfg.Alipay.Sandbox,
		})
	case "stripe":
		return NewStripe(StripeConfig{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			SuccessURL:    cfg.Stripe.SuccessURL,
			CancelURL:     cfg.Stripe.CancelURL,
		})
	case "fake":
		return NewFake(cfg.Payment.FakeAutoPay), nil
	default:
		return nil, fmt.Errorf("неизвестный платёжный провайдер: %q", cfg.Payment.Provider)
	}
}
