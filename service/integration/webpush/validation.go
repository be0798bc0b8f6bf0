package webpush

import (
	"crypto/ecdh"
	"crypto/elliptic"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"courier/service/subscription"
)

// validate checks the endpoint and, when all three key fields are present,
// normalizes them to unpadded base64url. A partial key set is rejected.
func (req registerRequest) validate() (*subscription.WebPushSubscription, error) {
	keys := 0
	for _, k := range []*string{req.P256dh, req.Auth, req.VapidPrivateKey} {
		if k != nil && *k != "" {
			keys++
		}
	}
	if keys != 0 && keys != 3 {
		return nil, errors.New("p256dh, auth and vapidPrivateKey must be provided together")
	}
	encrypted := keys == 3

	if err := validatePushEndpoint(req.PushEndpoint, encrypted); err != nil {
		return nil, err
	}

	sub := &subscription.WebPushSubscription{Endpoint: strings.TrimSpace(req.PushEndpoint)}
	if !encrypted {
		return sub, nil
	}

	var err error
	if sub.P256dh, err = normalizeP256DH(*req.P256dh); err != nil {
		return nil, err
	}
	if sub.Auth, err = normalizeAuthSecret(*req.Auth); err != nil {
		return nil, err
	}
	if sub.VapidPrivateKey, err = normalizeVAPIDPrivateKey(*req.VapidPrivateKey); err != nil {
		return nil, err
	}
	return sub, nil
}

func validatePushEndpoint(raw string, requireHTTPS bool) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u == nil || u.Scheme == "" || u.Host == "" {
		return errors.New("invalid pushEndpoint URL")
	}

	switch {
	case u.Scheme != "https" && u.Scheme != "http":
		return errors.New("pushEndpoint must use http or https")
	case requireHTTPS && u.Scheme != "https":
		return errors.New("encrypted webpush endpoint must use https")
	}
	return nil
}

func normalizeVAPIDPrivateKey(raw string) (string, error) {
	decoded, err := decodeKey(raw, "VAPID private key", 32)
	if err != nil {
		return "", err
	}

	d := new(big.Int).SetBytes(decoded)
	if d.Sign() <= 0 || d.Cmp(elliptic.P256().Params().N) >= 0 {
		return "", errors.New("invalid VAPID private key scalar")
	}
	return base64.RawURLEncoding.EncodeToString(decoded), nil
}

func normalizeP256DH(raw string) (string, error) {
	decoded, err := decodeKey(raw, "p256dh", 65)
	if err != nil {
		return "", err
	}
	if _, err := ecdh.P256().NewPublicKey(decoded); err != nil {
		return "", errors.New("invalid p256dh point")
	}
	return base64.RawURLEncoding.EncodeToString(decoded), nil
}

func normalizeAuthSecret(raw string) (string, error) {
	decoded, err := decodeKey(raw, "auth", 16)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(decoded), nil
}

func decodeKey(raw, name string, size int) ([]byte, error) {
	key := strings.TrimSpace(raw)
	decoded, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil {
		if decoded, err = base64.URLEncoding.DecodeString(key); err != nil {
			return nil, fmt.Errorf("invalid %s encoding", name)
		}
	}
	if len(decoded) != size {
		return nil, fmt.Errorf("invalid %s length: expected %d bytes, got %d", name, size, len(decoded))
	}
	return decoded, nil
}
