package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kwizz/kwizz-go/internal/audit"
	apperrors "github.com/kwizz/kwizz-go/internal/errors"
	"github.com/kwizz/kwizz-go/internal/model"
	"github.com/kwizz/kwizz-go/internal/repository"
)

const maxHostNameLength = 64

type HostService struct {
	hosts       repository.HostRepository
	freeCredits int
	audit       audit.Logger
}

func NewHostService(hosts repository.HostRepository, freeCredits int, auditLogger audit.Logger) *HostService {
	if auditLogger == nil {
		auditLogger = audit.Default
	}
	return &HostService{hosts: hosts, freeCredits: freeCredits, audit: auditLogger}
}

// Register creates a host and returns it with its API token. The token is
// only ever returned here; the store keeps its hash.
func (s *HostService) Register(ctx context.Context, name string) (*model.Host, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", apperrors.MissingRequired("name")
	}
	if utf8.RuneCountInString(name) > maxHostNameLength {
		return nil, "", apperrors.InvalidInput("name", fmt.Sprintf("must be at most %d characters", maxHostNameLength))
	}

	token, err := newHostToken()
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}

	host, err := s.hosts.Create(ctx, name, hashToken(token), s.freeCredits)
	if err != nil {
		return nil, "", fmt.Errorf("create host: %w", err)
	}

	s.audit.Log(ctx, audit.Event{
		Type:    audit.EventHostCreate,
		HostID:  host.ID,
		Details: map[string]interface{}{"token": maskToken(token), "freeCredits": host.FreeCreditsRemaining},
	})
	return host, token, nil
}

// Authenticate resolves a bearer token to its host.
func (s *HostService) Authenticate(ctx context.Context, token string) (*model.Host, error) {
	if token == "" {
		return nil, apperrors.Unauthorized("Missing token")
	}
	if !wellFormedHostToken(token) {
		return nil, apperrors.InvalidToken("Invalid token")
	}
	host, err := s.hosts.FindByTokenHash(ctx, hashToken(token))
	if err != nil {
		return nil, fmt.Errorf("find host: %w", err)
	}
	if host == nil {
		return nil, apperrors.InvalidToken("Invalid token")
	}
	return host, nil
}
