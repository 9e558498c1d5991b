package provider

import (
	"context"
	"net/http"
)

const microsoftGraphURL = "https://graph.microsoft.com/v1.0/me"

type microsoftUser struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// MicrosoftOAuthProvider reads the signed-in user from Microsoft Graph.
type MicrosoftOAuthProvider struct {
	httpClient *http.Client
	meURL      string
}

func NewMicrosoftOAuthProvider(httpClient *http.Client) *MicrosoftOAuthProvider {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &MicrosoftOAuthProvider{httpClient: httpClient, meURL: microsoftGraphURL}
}

// FetchProfile maps the Graph /me resource. Accounts without a mailbox fall
// back to the user principal name.
func (p *MicrosoftOAuthProvider) FetchProfile(ctx context.Context, accessToken string) (*RawProfile, error) {
	var user microsoftUser
	if err := getJSON(ctx, p.httpClient, p.meURL, accessToken, nil, &user); err != nil {
		return nil, err
	}

	email := user.Mail
	if email == "" {
		email = user.UserPrincipalName
	}

	return &RawProfile{
		ProviderID:  user.ID,
		Email:       email,
		DisplayName: user.DisplayName,
	}, nil
}
