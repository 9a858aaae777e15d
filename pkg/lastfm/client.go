package lastfm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Endpoints holds the URLs of one audioscrobbler-compatible service.
type Endpoints struct {
	APIURL     string // API root, e.g. https://ws.audioscrobbler.com/2.0/
	AuthURL    string // Page where the user authorizes a request token
	ProfileURL string // Prefix of a user's profile page; the session name is appended
}

// Endpoint presets for the services this client is known to work with.
var (
	LastFM = Endpoints{
		APIURL:     "https://ws.audioscrobbler.com/2.0/",
		AuthURL:    "https://www.last.fm/api/auth/",
		ProfileURL: "https://www.last.fm/user/",
	}
	LibreFM = Endpoints{
		APIURL:     "https://libre.fm/2.0/",
		AuthURL:    "https://libre.fm/api/auth/",
		ProfileURL: "https://libre.fm/user/",
	}
)

const (
	// DefaultTokenTimeout bounds the auth.gettoken call.
	DefaultTokenTimeout = 10 * time.Second

	// DefaultUserAgent is sent when Config.UserAgent is empty.
	DefaultUserAgent = "webscrobbler/dev"
)

// Config holds client configuration.
type Config struct {
	Label        string        // Required: service label, e.g. "Last.fm"
	APIKey       string        // Required: API key
	APISecret    string        // Required: shared secret used for signing
	Store        DocumentStore // Required: credential document for this label
	Endpoints    Endpoints     // Optional: defaults to LastFM
	HTTPClient   *http.Client  // Optional: HTTP client (defaults to http.DefaultClient)
	TokenTimeout time.Duration // Optional: defaults to DefaultTokenTimeout
	UserAgent    string        // Optional: defaults to DefaultUserAgent
	Logger       Logger        // Optional: Logger interface for debug logging
}

// Logger is an optional interface for logging.
type Logger interface {
	// Debugf logs a debug message with format and arguments.
	Debugf(format string, args ...interface{})
}

// Client talks to one service on behalf of one label.
//
// A Client holds no session state in memory; credentials live in the
// DocumentStore so that concurrent operations and separate processes share
// them. It is safe for concurrent use.
type Client struct {
	label        string
	apiKey       string
	apiSecret    string
	store        DocumentStore
	baseURL      string
	authURL      string
	profileURL   string
	httpClient   *http.Client
	tokenTimeout time.Duration
	userAgent    string
	logger       Logger

	auth  *AuthService
	track *TrackService
}

// NewClient creates a new client.
//
// Returns an error wrapping ErrInvalidConfig if a required field is missing.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Label == "" {
		return nil, fmt.Errorf("%w: Label is required", ErrInvalidConfig)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: APIKey is required", ErrInvalidConfig)
	}
	if cfg.APISecret == "" {
		return nil, fmt.Errorf("%w: APISecret is required", ErrInvalidConfig)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: Store is required", ErrInvalidConfig)
	}

	endpoints := cfg.Endpoints
	if endpoints.APIURL == "" {
		endpoints.APIURL = LastFM.APIURL
	}
	if endpoints.AuthURL == "" {
		endpoints.AuthURL = LastFM.AuthURL
	}
	if endpoints.ProfileURL == "" {
		endpoints.ProfileURL = LastFM.ProfileURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	tokenTimeout := cfg.TokenTimeout
	if tokenTimeout <= 0 {
		tokenTimeout = DefaultTokenTimeout
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	c := &Client{
		label:        cfg.Label,
		apiKey:       cfg.APIKey,
		apiSecret:    cfg.APISecret,
		store:        cfg.Store,
		baseURL:      endpoints.APIURL,
		authURL:      endpoints.AuthURL,
		profileURL:   endpoints.ProfileURL,
		httpClient:   httpClient,
		tokenTimeout: tokenTimeout,
		userAgent:    userAgent,
		logger:       cfg.Logger,
	}

	c.auth = &AuthService{client: c}
	c.track = &TrackService{client: c}

	return c, nil
}

// Label returns the service label this client was created for.
func (c *Client) Label() string {
	return c.label
}

// StatusURL returns the profile page of the signed-in user, or "" when
// there is no session. It never touches the network.
func (c *Client) StatusURL(ctx context.Context) (string, error) {
	creds, err := c.auth.Credentials(ctx)
	if err != nil {
		return "", err
	}
	if creds.SessionID == "" || creds.SessionName == "" {
		return "", nil
	}
	return c.profileURL + url.PathEscape(creds.SessionName), nil
}

// Auth returns the authentication service.
func (c *Client) Auth() *AuthService {
	return c.auth
}

// Track returns the now-playing, scrobble and love operations.
func (c *Client) Track() *TrackService {
	return c.track
}

// logDebugf logs a debug message if a logger is configured.
func (c *Client) logDebugf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debugf(format, args...)
	}
}
