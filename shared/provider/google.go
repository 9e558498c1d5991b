package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// GoogleOAuthProvider verifies Google ID tokens through the tokeninfo endpoint.
type GoogleOAuthProvider struct {
	clientID   string
	httpClient *http.Client
	endpoint   string
}

// NewGoogleOAuthProvider creates a provider that accepts ID tokens issued to clientID.
func NewGoogleOAuthProvider(clientID string, httpClient *http.Client) *GoogleOAuthProvider {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &GoogleOAuthProvider{
		clientID:   clientID,
		httpClient: httpClient,
	}
}

// ValidateIDToken checks idToken with Google and verifies its audience.
func (p *GoogleOAuthProvider) ValidateIDToken(ctx context.Context, idToken string) (*oauth2.Tokeninfo, error) {
	opts := []option.ClientOption{option.WithHTTPClient(p.httpClient)}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}

	oauth2Service, err := oauth2.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}

	tokenInfo, err := oauth2Service.Tokeninfo().IdToken(idToken).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	if tokenInfo.Audience != p.clientID {
		return nil, ErrInvalidAudience
	}

	return tokenInfo, nil
}

// FetchProfile maps a verified ID token to a profile. Unverified addresses
// are dropped so they cannot match an existing account by email.
func (p *GoogleOAuthProvider) FetchProfile(ctx context.Context, idToken string) (*RawProfile, error) {
	tokenInfo, err := p.ValidateIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}

	profile := &RawProfile{ProviderID: tokenInfo.UserId}
	if tokenInfo.VerifiedEmail {
		profile.Email = tokenInfo.Email
	}

	return profile, nil
}

// getJSON performs an authenticated GET and decodes the JSON response into out.
func getJSON(
	ctx context.Context,
	client *http.Client,
	url string,
	accessToken string,
	headers map[string]string,
	out any,
) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
