package auth

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/google/uuid"

	"github.com/kpkab/nested-ad-group-to-flat-db-group/logging"
)

const (
	// Refresh the token this long before it actually expires.
	expirySkew = 60 * time.Second

	// Validity window for signed client assertions.
	assertionValidity = 5 * time.Minute

	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
)

var authLog = logging.NewLogger("auth")

// TokenSource provides bearer tokens for directory API calls.
type TokenSource interface {
	Token() (string, error)
}

// Options configures a client-credentials token source.
type Options struct {
	TokenURL string
	ClientID string
	Scope    string

	// Exactly one of ClientSecret or PrivateKeyFile must be set. When
	// PrivateKeyFile is set the request carries a signed client assertion
	// instead of the shared secret.
	ClientSecret   string
	PrivateKeyFile string

	HTTPClient *http.Client
}

// ClientCredentials acquires OAuth2 client-credentials tokens and caches them
// until shortly before expiry.
type ClientCredentials struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time

	tokenURL string
	clientID string
	scope    string
	secret   string

	privateKey *rsa.PrivateKey
	keyID      string

	client *http.Client
}

// NewClientCredentials builds a token source from the given options, loading
// the JWK private key up front when assertion-based auth is configured.
func NewClientCredentials(opts Options) (*ClientCredentials, error) {
	if opts.TokenURL == "" {
		return nil, fmt.Errorf("token URL is required")
	}
	if opts.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if opts.ClientSecret == "" && opts.PrivateKeyFile == "" {
		return nil, fmt.Errorf("either a client secret or a private key file is required")
	}

	c := &ClientCredentials{
		tokenURL: opts.TokenURL,
		clientID: opts.ClientID,
		scope:    opts.Scope,
		secret:   opts.ClientSecret,
		client:   opts.HTTPClient,
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: 30 * time.Second}
	}

	if opts.PrivateKeyFile != "" {
		key, keyID, err := loadPrivateKey(opts.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load private key: %w", err)
		}
		c.privateKey = key
		c.keyID = keyID
	}

	return c, nil
}

// Token returns a valid access token, requesting a new one if the cached
// token is missing or close to expiry.
func (c *ClientCredentials) Token() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.expiresAt.Add(-expirySkew)) {
		return c.token, nil
	}

	token, expiresAt, err := c.requestToken()
	if err != nil {
		return "", fmt.Errorf("failed to acquire access token: %w", err)
	}

	c.token = token
	c.expiresAt = expiresAt

	return token, nil
}

func (c *ClientCredentials) requestToken() (string, time.Time, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	if c.scope != "" {
		form.Set("scope", c.scope)
	}

	if c.privateKey != nil {
		assertion, err := c.signAssertion()
		if err != nil {
			return "", time.Time{}, err
		}
		form.Set("client_assertion_type", clientAssertionType)
		form.Set("client_assertion", assertion)
	} else {
		form.Set("client_secret", c.secret)
	}

	resp, err := c.client.Post(c.tokenURL, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("token response contained no access token")
	}

	expiresAt := time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	authLog.Debug("Acquired access token, expires at %s", expiresAt.Format(time.RFC3339))

	return tokenResp.AccessToken, expiresAt, nil
}

// signAssertion creates the signed JWT the token endpoint accepts in place of
// a client secret.
func (c *ClientCredentials) signAssertion() (string, error) {
	now := time.Now()

	claims := jwt.Claims{
		Subject:   c.clientID,
		Issuer:    c.clientID,
		Audience:  jwt.Audience{c.tokenURL},
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(assertionValidity)),
		NotBefore: jwt.NewNumericDate(now),
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{
			Algorithm: jose.RS256,
			Key:       c.privateKey,
		},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", c.keyID),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create assertion signer: %w", err)
	}

	assertion, err := jwt.Signed(signer).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to sign client assertion: %w", err)
	}

	return assertion, nil
}

// loadPrivateKey loads the RSA private key from a JWK file.
func loadPrivateKey(path string) (*rsa.PrivateKey, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read private key file %s: %w", path, err)
	}

	var jwk jose.JSONWebKey
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, "", fmt.Errorf("failed to parse JWK: %w", err)
	}

	privateKey, ok := jwk.Key.(*rsa.PrivateKey)
	if !ok {
		return nil, "", fmt.Errorf("JWK key is not an RSA private key")
	}

	return privateKey, jwk.KeyID, nil
}
