package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// Validator asks the identity server whether a token is live and who it
// belongs to.
type Validator interface {
	Validate(ctx context.Context, tok *oauth2.Token) (account string, err error)
}

// UserInfoValidator validates tokens against the Google userinfo endpoint.
type UserInfoValidator struct {
	// Endpoint overrides the API base URL. Empty means Google's.
	Endpoint string
}

// Validate implements Validator. Rejections wrap ErrInvalidToken; transport
// failures wrap ErrUnreachable.
func (v *UserInfoValidator) Validate(ctx context.Context, tok *oauth2.Token) (string, error) {
	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))),
	}
	if v.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(v.Endpoint))
	}

	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create userinfo client: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && (gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden) {
			return "", fmt.Errorf("%w: %s", ErrInvalidToken, gerr.Message)
		}
		return "", fmt.Errorf("%w: userinfo: %v", ErrUnreachable, err)
	}

	if info.Email != "" {
		return info.Email, nil
	}
	return info.Id, nil
}
