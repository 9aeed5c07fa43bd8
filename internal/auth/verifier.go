package auth

import (
	"context"
	"errors"
	"fmt"

	"ms-rental/internal/models"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Verifier turns a raw bearer token into a principal.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (models.Principal, error)
}

// HMACVerifier checks HS256 tokens minted by IssueToken.
type HMACVerifier struct {
	secret []byte
	issuer string
}

func NewHMACVerifier(secret []byte, issuer string) *HMACVerifier {
	return &HMACVerifier{secret: secret, issuer: issuer}
}

func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (models.Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return models.Principal{}, fmt.Errorf("invalid token: %w", err)
	}
	return principalFrom(claims.Subject, claims.Role)
}

// OIDCVerifier checks tokens from an OpenID Connect provider such as Keycloak.
// The role is read from a top-level "role" claim or from realm_access.roles.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true}),
	}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (models.Principal, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return models.Principal{}, fmt.Errorf("invalid token: %w", err)
	}

	var claims struct {
		Sub         string `json:"sub"`
		Role        string `json:"role"`
		RealmAccess struct {
			Roles []string `json:"roles"`
		} `json:"realm_access"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return models.Principal{}, fmt.Errorf("failed to parse claims: %w", err)
	}

	role := models.Role(claims.Role)
	if !role.Valid() {
		role = roleFromList(claims.RealmAccess.Roles)
	}
	return principalFrom(claims.Sub, role)
}

// roleFromList picks the most privileged rental role present.
func roleFromList(roles []string) models.Role {
	rank := []models.Role{models.RoleAdmin, models.RoleSystem, models.RoleSeller, models.RoleCustomer}
	for _, want := range rank {
		for _, r := range roles {
			if models.Role(r) == want {
				return want
			}
		}
	}
	return ""
}

func principalFrom(sub string, role models.Role) (models.Principal, error) {
	if sub == "" {
		return models.Principal{}, errors.New("subject claim not found in token")
	}
	if !role.Valid() {
		return models.Principal{}, fmt.Errorf("token for %s carries no rental role", sub)
	}
	return models.Principal{UserID: sub, Role: role}, nil
}
