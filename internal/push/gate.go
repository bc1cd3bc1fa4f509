package push

import (
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"

	"keepsake-go/internal/config"
)

// Credentials are the VAPID key pair and the contact the push service sees.
type Credentials struct {
	PublicKey  string
	PrivateKey string
	Subscriber string
}

// CredentialsFromConfig copies the VAPID settings out of cfg.
func CredentialsFromConfig(cfg config.PushConfig) Credentials {
	return Credentials{
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		Subscriber: cfg.Subscriber,
	}
}

func (c Credentials) complete() bool {
	return c.PublicKey != "" && c.PrivateKey != "" && c.Subscriber != ""
}

// Gate is the result of startup configuration. A disabled gate has no
// dispatcher and must not be used to build a scheduler.
type Gate struct {
	Enabled    bool
	Dispatcher *WebPushDispatcher
}

// Configure checks the credentials once at startup. Missing credentials
// disable reminder delivery for the lifetime of the process.
func Configure(creds Credentials) Gate {
	if !creds.complete() {
		logrus.Warn("VAPID keys or contact not configured, push notifications and reminders are disabled")
		return Gate{}
	}

	// webpush-go prefixes plain addresses with mailto: itself.
	creds.Subscriber = strings.TrimPrefix(creds.Subscriber, "mailto:")

	logrus.Info("Push notification service initialized")
	return Gate{
		Enabled:    true,
		Dispatcher: newWebPushDispatcher(creds),
	}
}

// GenerateKeys creates a fresh VAPID key pair.
func GenerateKeys() (Credentials, error) {
	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{PublicKey: publicKey, PrivateKey: privateKey}, nil
}
