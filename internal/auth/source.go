package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"lotwatch/internal/components/telemetry"
	"lotwatch/internal/store"
	"os"
	"strings"
	"time"
)

const report_token_source_resolve = "token_source.resolve"

const (
	OriginExplicit   = "explicit"
	OriginCredential = "credential"
	OriginFile       = "file"
)

// CredentialStore is where logins are persisted, store.Store implements it.
type CredentialStore interface {
	Credential(ctx context.Context, name string) (store.Credential, error)
	SaveCredential(ctx context.Context, cred store.Credential) error
}

// Token is a resolved bearer token and where it came from.
type Token struct {
	Value      string
	CustomerID string
	Origin     string
	Claims     Claims
}

// TokenSource resolves a token from, in order: an explicit token, a stored
// credential and a token file. The first usable one wins.
type TokenSource struct {
	Explicit       string
	CustomerID     string
	Store          CredentialStore
	CredentialName string
	FilePath       string
	Now            func() time.Time
	Tel            telemetry.API
}

type tokenFile struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	CustomerID  string `json:"customer_id"`
}

// readTokenFile accepts either a json object or the raw token.
func readTokenFile(path string) (string, string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	trimmed := strings.TrimSpace(string(contents))
	if !strings.HasPrefix(trimmed, "{") {
		return trimmed, "", nil
	}
	var file tokenFile
	err = json.Unmarshal([]byte(trimmed), &file)
	if err != nil {
		return "", "", fmt.Errorf("parse token file %s: %w", path, err)
	}
	if file.Token == "" {
		file.Token = file.AccessToken
	}
	return file.Token, file.CustomerID, nil
}

func (s TokenSource) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s TokenSource) candidates(ctx context.Context) []Token {
	var out []Token
	if s.Explicit != "" {
		out = append(out, Token{Value: s.Explicit, Origin: OriginExplicit})
	}
	if s.Store != nil {
		name := s.CredentialName
		if name == "" {
			name = DefaultCredentialName
		}
		cred, err := s.Store.Credential(ctx, name)
		switch {
		case errors.Is(err, store.ErrNoCredential):
		case err != nil:
			s.report(err, OriginCredential)
		case cred.Token != "":
			out = append(out, Token{Value: cred.Token, CustomerID: cred.CustomerID, Origin: OriginCredential})
		}
	}
	if s.FilePath != "" {
		value, customerID, err := readTokenFile(s.FilePath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			s.report(err, OriginFile)
		case value != "":
			out = append(out, Token{Value: value, CustomerID: customerID, Origin: OriginFile})
		}
	}
	return out
}

func (s TokenSource) report(err error, origin string) {
	if s.Tel != nil {
		s.Tel.ReportWarning(report_token_source_resolve, err, origin)
	}
}

// Resolve returns the first token that is not expired. Opaque (non jwt)
// tokens are accepted as is. When every token found was expired it returns
// ErrTokenExpired, when none was found ErrNoToken.
func (s TokenSource) Resolve(ctx context.Context) (Token, error) {
	sawExpired := false
	for _, candidate := range s.candidates(ctx) {
		claims, err := ParseJWT(candidate.Value, s.now())
		switch {
		case errors.Is(err, ErrTokenExpired):
			sawExpired = true
			s.report(err, candidate.Origin)
			continue
		case errors.Is(err, ErrNotJWT):
		case err != nil:
			s.report(err, candidate.Origin)
			continue
		}

		candidate.Claims = claims
		if s.CustomerID != "" {
			candidate.CustomerID = s.CustomerID
		}
		if candidate.CustomerID == "" {
			candidate.CustomerID = claims.CustomerID
		}
		return candidate, nil
	}
	if sawExpired {
		return Token{}, ErrTokenExpired
	}
	return Token{}, ErrNoToken
}
