package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type nextcloudResponse struct {
	OCS struct {
		Meta struct {
			Status     string `json:"status"`
			StatusCode int    `json:"statuscode"`
		} `json:"meta"`
		Data struct {
			ID          any    `json:"id"`
			DisplayName string `json:"display-name"`
			Email       string `json:"email"`
		} `json:"data"`
	} `json:"ocs"`
}

// NextcloudOAuthProvider reads the current user from a Nextcloud instance.
type NextcloudOAuthProvider struct {
	baseURL    string
	httpClient *http.Client
}

func NewNextcloudOAuthProvider(baseURL string, httpClient *http.Client) *NextcloudOAuthProvider {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &NextcloudOAuthProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (p *NextcloudOAuthProvider) FetchProfile(ctx context.Context, accessToken string) (*RawProfile, error) {
	var resp nextcloudResponse
	if err := getJSON(
		ctx,
		p.httpClient,
		p.baseURL+"/ocs/v2.php/cloud/user?format=json",
		accessToken,
		map[string]string{"OCS-APIRequest": "true"},
		&resp,
	); err != nil {
		return nil, err
	}

	if code := resp.OCS.Meta.StatusCode; code != 0 && code != http.StatusOK && code != 100 {
		return nil, fmt.Errorf("%w: ocs status %d", ErrUpstream, code)
	}

	data := resp.OCS.Data
	profile := &RawProfile{
		ProviderID:  data.ID,
		Email:       data.Email,
		DisplayName: data.DisplayName,
	}
	if data.ID != nil {
		profile.AvatarURL = fmt.Sprintf("%s/avatar/%s/128", p.baseURL, url.PathEscape(fmt.Sprint(data.ID)))
	}

	return profile, nil
}
