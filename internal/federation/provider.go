// Copyright 2026 The Devbench Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/devbench/console/internal/identity"
)

// Provider names accepted on the sign-in endpoints.
const (
	ProviderGoogle    = "google"
	ProviderGitHub    = "github"
	ProviderMicrosoft = "microsoft"
)

var ErrUnknownProvider = errors.New("unknown or disabled provider")

// ProviderCredentials is one provider's OAuth client configuration.
// A provider with missing credentials is simply omitted from the sign-in
// set; it is not a startup failure.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
}

// Provider is one configured OAuth identity provider: the oauth2 client
// config plus the provider-specific profile extraction.
type Provider struct {
	name        string
	cfg         *oauth2.Config
	userInfoURL string
	parse       func([]byte) (identity.FederatedIdentity, error)
}

// Name returns the provider's wire name ("google", "github", ...).
func (p *Provider) Name() string { return p.name }

// AuthCodeURL builds the provider's consent-screen URL for the given
// signed state parameter.
func (p *Provider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state)
}

// Exchange trades the callback's authorization code for a token.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.cfg.Exchange(ctx, code)
}

// FetchProfile retrieves and normalizes the provider's user profile. The
// returned identity may still be incomplete (e.g. a GitHub account with a
// private email); completeness is the flow's concern, not ours.
func (p *Provider) FetchProfile(ctx context.Context, token *oauth2.Token) (identity.FederatedIdentity, error) {
	client := p.cfg.Client(ctx, token)
	resp, err := client.Get(p.userInfoURL)
	if err != nil {
		return identity.FederatedIdentity{}, fmt.Errorf("fetch %s profile: %w", p.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return identity.FederatedIdentity{}, fmt.Errorf("fetch %s profile: status %d", p.name, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return identity.FederatedIdentity{}, fmt.Errorf("read %s profile: %w", p.name, err)
	}
	fid, err := p.parse(raw)
	if err != nil {
		return identity.FederatedIdentity{}, fmt.Errorf("parse %s profile: %w", p.name, err)
	}
	fid.Provider = p.name
	return fid, nil
}

// Registry holds the providers enabled by configuration.
type Registry struct {
	providers map[string]*Provider
	order     []string
}

// RegistryConfig enumerates provider credentials and the external base URL
// used to build redirect URIs.
type RegistryConfig struct {
	PublicURL       string
	Google          ProviderCredentials
	GitHub          ProviderCredentials
	Microsoft       ProviderCredentials
	MicrosoftTenant string
}

// NewRegistry builds the enabled-provider set. Order is fixed so the
// sign-in option list is stable across restarts.
func NewRegistry(cfg RegistryConfig) *Registry {
	r := &Registry{providers: make(map[string]*Provider)}

	redirect := func(name string) string {
		return cfg.PublicURL + "/auth/callback/" + name
	}

	if cfg.Google.ClientID != "" && cfg.Google.ClientSecret != "" {
		r.add(&Provider{
			name: ProviderGoogle,
			cfg: &oauth2.Config{
				ClientID:     cfg.Google.ClientID,
				ClientSecret: cfg.Google.ClientSecret,
				Endpoint:     endpoints.Google,
				RedirectURL:  redirect(ProviderGoogle),
				Scopes:       []string{"openid", "email", "profile"},
			},
			userInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
			parse:       parseGoogleProfile,
		})
	}

	if cfg.GitHub.ClientID != "" && cfg.GitHub.ClientSecret != "" {
		r.add(&Provider{
			name: ProviderGitHub,
			cfg: &oauth2.Config{
				ClientID:     cfg.GitHub.ClientID,
				ClientSecret: cfg.GitHub.ClientSecret,
				Endpoint:     endpoints.GitHub,
				RedirectURL:  redirect(ProviderGitHub),
				Scopes:       []string{"read:user", "user:email"},
			},
			userInfoURL: "https://api.github.com/user",
			parse:       parseGitHubProfile,
		})
	}

	if cfg.Microsoft.ClientID != "" && cfg.Microsoft.ClientSecret != "" {
		tenant := cfg.MicrosoftTenant
		if tenant == "" {
			tenant = "common"
		}
		r.add(&Provider{
			name: ProviderMicrosoft,
			cfg: &oauth2.Config{
				ClientID:     cfg.Microsoft.ClientID,
				ClientSecret: cfg.Microsoft.ClientSecret,
				Endpoint:     endpoints.AzureAD(tenant),
				RedirectURL:  redirect(ProviderMicrosoft),
				Scopes:       []string{"openid", "email", "profile", "User.Read"},
			},
			userInfoURL: "https://graph.microsoft.com/v1.0/me",
			parse:       parseMicrosoftProfile,
		})
	}

	return r
}

func (r *Registry) add(p *Provider) {
	r.providers[p.name] = p
	r.order = append(r.order, p.name)
}

// Get returns the named provider if it is enabled.
func (r *Registry) Get(name string) (*Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists enabled providers in declaration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func parseGoogleProfile(raw []byte) (identity.FederatedIdentity, error) {
	var p struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return identity.FederatedIdentity{}, err
	}
	return identity.FederatedIdentity{
		Email:             p.Email,
		Name:              p.Name,
		AvatarURL:         p.Picture,
		ProviderAccountID: p.Sub,
	}, nil
}

func parseGitHubProfile(raw []byte) (identity.FederatedIdentity, error) {
	var p struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return identity.FederatedIdentity{}, err
	}
	name := p.Name
	if name == "" {
		name = p.Login
	}
	return identity.FederatedIdentity{
		Email:             p.Email,
		Name:              name,
		AvatarURL:         p.AvatarURL,
		ProviderAccountID: strconv.FormatInt(p.ID, 10),
	}, nil
}

func parseMicrosoftProfile(raw []byte) (identity.FederatedIdentity, error) {
	var p struct {
		ID                string `json:"id"`
		DisplayName       string `json:"displayName"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return identity.FederatedIdentity{}, err
	}
	email := p.Mail
	if email == "" {
		email = p.UserPrincipalName
	}
	return identity.FederatedIdentity{
		Email:             email,
		Name:              p.DisplayName,
		ProviderAccountID: p.ID,
	}, nil
}
