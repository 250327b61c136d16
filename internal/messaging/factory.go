package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/providercfg"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/LeadPipe/internal/whatsapp"
)

// FactoryOpts carries the dependencies providers may need.
type FactoryOpts struct {
	Dedup    store.DedupRepo // filters Twilio webhook retries
	StateDir string          // holds the whatsmeow device database
	HTTP     []HTTPOption
}

// RoutesFromConfig builds the services for a provider configuration, keyed
// by the channel each one serves. Twilio also serves SMS.
func RoutesFromConfig(cfg providercfg.Config, opts FactoryOpts) (map[models.ChannelType]Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	slog.Debug("RoutesFromConfig: building provider services", "provider", cfg.Provider)

	switch cfg.Provider {
	case providercfg.ProviderCloudAPI:
		svc := NewCloudAPIService(cfg.Token, cfg.PhoneNumberID, cfg.GraphAPIVersion(), opts.HTTP...)
		return map[models.ChannelType]Service{models.ChannelWhatsApp: svc}, nil

	case providercfg.Provider360Dialog:
		svc := NewDialog360Service(cfg.APIKey, opts.HTTP...)
		return map[models.ChannelType]Service{models.ChannelWhatsApp: svc}, nil

	case providercfg.ProviderTwilio:
		waClient, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(cfg.AccountSID),
			twiliowhatsapp.WithAuthToken(cfg.AuthToken),
			twiliowhatsapp.WithFrom(cfg.TwilioFrom()),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Twilio WhatsApp client: %w", err)
		}
		smsClient, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(cfg.AccountSID),
			twiliowhatsapp.WithAuthToken(cfg.AuthToken),
			twiliowhatsapp.WithFrom(cfg.FromNumber),
			twiliowhatsapp.WithSMS(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Twilio SMS client: %w", err)
		}
		return map[models.ChannelType]Service{
			models.ChannelWhatsApp: NewTwilioService(waClient, opts.Dedup),
			models.ChannelSMS:      NewTwilioService(smsClient, opts.Dedup),
		}, nil

	case providercfg.ProviderWhatsmeow:
		waOpts := []whatsapp.Option{whatsapp.WithStateDir(opts.StateDir)}
		if cfg.DBDSN != "" {
			waOpts = append(waOpts, whatsapp.WithDBDSN(cfg.DBDSN))
		}
		if cfg.QRPath != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(cfg.QRPath))
		}
		if cfg.NumericCode {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		// Linking is bounded by the client's login timeout.
		client, err := whatsapp.NewClient(context.Background(), waOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return map[models.ChannelType]Service{models.ChannelWhatsApp: NewWhatsAppService(client)}, nil
	}
	return nil, fmt.Errorf("%w: %q", providercfg.ErrUnknownProvider, cfg.Provider)
}
