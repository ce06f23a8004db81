package platform

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"

	"github.com/maheshrc27/postflow/internal/apperr"
)

// refreshOAuth2 runs a refresh_token grant against tokenURL and persists the new token.
func (b *base) refreshOAuth2(ctx context.Context, tokenURL string, style oauth2.AuthStyle) error {
	refreshToken, err := b.require("refresh_token")
	if err != nil {
		return err
	}

	conf := &oauth2.Config{
		ClientID:     b.creds.GetCredential("client_id"),
		ClientSecret: b.creds.GetCredential("client_secret"),
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: style,
		},
	}

	var token *oauth2.Token
	err = b.api.track(ctx, "POST oauth token", func() error {
		octx := context.WithValue(ctx, oauth2.HTTPClient, b.deps.HTTPClient)
		var terr error
		token, terr = conf.TokenSource(octx, &oauth2.Token{RefreshToken: refreshToken}).Token()
		return terr
	})
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return apperr.Wrap(apperr.InvalidToken, err, "refresh token rejected").WithPlatform(string(b.platform))
		}
		return apperr.Wrap(apperr.TransportError, err, "refresh token request failed").WithPlatform(string(b.platform))
	}

	var expiresIn int64
	if !token.Expiry.IsZero() {
		expiresIn = int64(time.Until(token.Expiry).Seconds())
	}
	return b.persistToken(ctx, token.AccessToken, token.RefreshToken, expiresIn)
}
