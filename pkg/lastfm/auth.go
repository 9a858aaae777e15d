package lastfm

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
)

// AuthService owns the token → authorization → session handshake.
//
// The credential document moves between three states:
//
//	unauthenticated  token="" sessionID=""
//	token pending    token!=""
//	authenticated    sessionID!="" token=""
//
// Transitions only happen inside explicit calls; nothing polls.
type AuthService struct {
	client *Client
}

// URL requests a fresh token and returns the page where the user
// authorizes it.
//
// The token is stored and any previous session is dropped. The call is
// bounded by Config.TokenTimeout.
//
// A rejected token request returns an error wrapping ErrAuth. Transport
// failures, including the timeout, wrap ErrOther (plus ErrTimeout). The
// stored token is cleared on every failure.
//
// Example:
//
//	authURL, err := client.Auth().URL(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Please visit:", authURL)
func (a *AuthService) URL(ctx context.Context) (string, error) {
	c := a.client

	token, err := a.requestToken(ctx)
	if err != nil {
		var creds Credentials
		if clearErr := c.store.Update(ctx, &creds, func() error {
			creds.Token = ""
			return nil
		}); clearErr != nil {
			c.logDebugf("lastfm: failed to clear token for %s: %v", c.label, clearErr)
		}
		return "", err
	}

	var creds Credentials
	if err := c.store.Update(ctx, &creds, func() error {
		creds = Credentials{Token: token}
		return nil
	}); err != nil {
		return "", otherError(fmt.Errorf("failed to store token: %w", err))
	}

	return c.authURL + "?" + BuildQueryString(Params{
		{Key: "api_key", Value: c.apiKey},
		{Key: "token", Value: token},
	}), nil
}

type tokenResponse struct {
	XMLName xml.Name `xml:"lfm"`
	Token   string   `xml:"token"`
}

func (a *AuthService) requestToken(ctx context.Context) (string, error) {
	c := a.client

	ctx, cancel := context.WithTimeout(ctx, c.tokenTimeout)
	defer cancel()

	env, err := c.execute(ctx, http.MethodGet, Params{{Key: "method", Value: "auth.gettoken"}}, true)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", otherError(ErrTimeout)
		}
		var apiErr *Error
		if errors.As(err, &apiErr) {
			return "", authError(apiErr)
		}
		return "", err
	}

	var resp tokenResponse
	if err := env.decode(&resp); err != nil {
		return "", otherError(fmt.Errorf("failed to parse token response: %w", err))
	}
	if resp.Token == "" {
		return "", authError(errors.New("service returned an empty token"))
	}

	return resp.Token, nil
}

// Session returns the current session, trading a pending token if needed.
//
// With a stored session it returns immediately without a network call.
// With neither token nor session it fails with ErrAuth, also without a
// network call.
//
// Otherwise the token is traded via auth.getsession. On success the
// session is stored and the single-use token dropped. On any failure the
// whole credential document is cleared and an error wrapping ErrAuth is
// returned, so the next attempt starts from scratch. The clear is skipped
// when another caller already replaced the traded token, so a trade lost to
// a concurrent winner leaves the winner's session in place.
func (a *AuthService) Session(ctx context.Context) (Session, error) {
	c := a.client

	var creds Credentials
	if err := c.store.Get(ctx, &creds); err != nil {
		return Session{}, otherError(fmt.Errorf("failed to load credentials: %w", err))
	}

	if creds.SessionID != "" {
		return Session{ID: creds.SessionID, Name: creds.SessionName}, nil
	}
	if creds.Token == "" {
		return Session{}, authError(errors.New("not authorized"))
	}

	token := creds.Token
	session, tradeErr := a.trade(ctx, token)

	// A rejected token has to be dropped even when the caller gave up.
	writeCtx := ctx
	if tradeErr != nil {
		writeCtx = context.WithoutCancel(ctx)
	}

	var stored Credentials
	err := c.store.Update(writeCtx, &stored, func() error {
		if tradeErr != nil {
			if stored.Token == token {
				stored = Credentials{}
			}
			return nil
		}
		stored = Credentials{SessionID: session.ID, SessionName: session.Name}
		return nil
	})

	if tradeErr != nil {
		if err != nil {
			c.logDebugf("lastfm: failed to clear credentials for %s: %v", c.label, err)
		}
		return Session{}, authError(tradeErr)
	}
	if err != nil {
		return Session{}, otherError(fmt.Errorf("failed to store session: %w", err))
	}

	return session, nil
}

type sessionResponse struct {
	Session struct {
		Name string `json:"name"`
		Key  string `json:"key"`
	} `json:"session"`
}

func (a *AuthService) trade(ctx context.Context, token string) (Session, error) {
	env, err := a.client.execute(ctx, http.MethodGet, Params{
		{Key: "method", Value: "auth.getsession"},
		{Key: "token", Value: token},
		{Key: "format", Value: "json"},
	}, true)
	if err != nil {
		return Session{}, err
	}

	var resp sessionResponse
	if err := env.decode(&resp); err != nil {
		return Session{}, fmt.Errorf("failed to parse session response: %w", err)
	}
	if resp.Session.Key == "" {
		return Session{}, errors.New("service returned an empty session key")
	}

	return Session{ID: resp.Session.Key, Name: resp.Session.Name}, nil
}

// SignOut forgets the stored token and session.
func (a *AuthService) SignOut(ctx context.Context) error {
	if err := a.client.store.Set(ctx, Credentials{}); err != nil {
		return otherError(fmt.Errorf("failed to clear credentials: %w", err))
	}
	return nil
}

// Credentials returns the stored credential document.
func (a *AuthService) Credentials(ctx context.Context) (Credentials, error) {
	var creds Credentials
	if err := a.client.store.Get(ctx, &creds); err != nil {
		return Credentials{}, otherError(fmt.Errorf("failed to load credentials: %w", err))
	}
	return creds, nil
}
