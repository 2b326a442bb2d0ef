// Package push delivers web push notifications for badge verification
// outcomes, family changes, and the moderation digest.
package push

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nestlinghq/nestling/internal/model"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// ErrExpired is returned when a push subscription is no longer valid
// (410 Gone). Callers prune the subscription.
var ErrExpired = errors.New("push subscription expired")

const (
	subscriber = "mailto:noreply@nestling.app"

	// Badge and family updates are stale after a day; the push service
	// drops undelivered messages past this TTL.
	messageTTL = 86400

	defaultIcon = "/static/icons/nestling-192.png"
)

// Payload is the notification JSON handed to the service worker.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

// encode marshals the payload, filling in the app icon when the caller did
// not pick one.
func (p Payload) encode() ([]byte, error) {
	if p.Icon == "" {
		p.Icon = defaultIcon
	}
	return json.Marshal(p)
}

// Config holds the VAPID key pair. Push is disabled when either key is
// empty.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
}

// Service sends web push messages signed with the configured VAPID keys.
type Service struct {
	publicKey  string
	privateKey string
}

func NewService(publicKey, privateKey string) *Service {
	return &Service{
		publicKey:  publicKey,
		privateKey: privateKey,
	}
}

// VAPIDPublicKey returns the public key clients need to subscribe.
func (s *Service) VAPIDPublicKey() string {
	return s.publicKey
}

// Send pushes one payload to one subscription.
func (s *Service) Send(sub *model.PushSubscription, payload Payload) error {
	data, err := payload.encode()
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	resp, err := webpush.SendNotification(data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		Subscriber:      subscriber,
		TTL:             messageTTL,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}

// GenerateVAPIDKeys produces a fresh P-256 key pair in the base64url form
// VAPID requires, for first-run setup.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	pubBytes := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	publicKey = base64.RawURLEncoding.EncodeToString(pubBytes)
	privateKey = base64.RawURLEncoding.EncodeToString(key.D.Bytes())
	return publicKey, privateKey, nil
}
