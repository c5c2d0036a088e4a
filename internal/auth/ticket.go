package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/faceid/internal/apperr"
)

const ticketIssuer = "faceid"

// ErrInvalidTicket is returned for missing, malformed, expired or revoked
// login tickets.
var ErrInvalidTicket = apperr.New(apperr.CodeAuthentication, "invalid or expired login ticket")

// Ticket is a verified login session.
type Ticket struct {
	ID         string
	IdentityID string
	Name       string
	Level      int
	ExpiresAt  time.Time
}

// Claims describes JWT payload.
type Claims struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
	jwt.RegisteredClaims
}

// TicketManager issues and validates login tickets.
type TicketManager struct {
	secret      []byte
	ttl         time.Duration
	revocations RevocationStore
	now         func() time.Time
}

// NewTicketManager builds a new manager. revocations may be nil, in which
// case tickets stay valid until they expire.
func NewTicketManager(secret string, ttl time.Duration, revocations RevocationStore) (*TicketManager, error) {
	if len(secret) < 16 {
		return nil, errors.New("ticket secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TicketManager{secret: []byte(secret), ttl: ttl, revocations: revocations, now: time.Now}, nil
}

// TTL returns the ticket lifetime.
func (tm *TicketManager) TTL() time.Duration {
	return tm.ttl
}

// Issue signs a ticket for the identity.
func (tm *TicketManager) Issue(identityID, name string, level int) (string, Ticket, error) {
	now := tm.now()
	expiresAt := now.Add(tm.ttl).Truncate(time.Second)
	t := Ticket{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		Name:       name,
		Level:      level,
		ExpiresAt:  expiresAt,
	}

	claims := &Claims{
		Name:  name,
		Level: level,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        t.ID,
			Issuer:    ticketIssuer,
			Subject:   identityID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", Ticket{}, fmt.Errorf("signing ticket: %w", err)
	}
	return signed, t, nil
}

// Verify validates the token signature and expiry and checks revocation.
func (tm *TicketManager) Verify(ctx context.Context, token string) (Ticket, error) {
	t, err := tm.parse(token)
	if err != nil {
		return Ticket{}, err
	}
	if tm.revocations != nil {
		revoked, err := tm.revocations.IsRevoked(ctx, t.ID)
		if err != nil {
			return Ticket{}, fmt.Errorf("checking ticket revocation: %w", err)
		}
		if revoked {
			return Ticket{}, ErrInvalidTicket
		}
	}
	return t, nil
}

// Revoke invalidates a ticket until its natural expiry.
func (tm *TicketManager) Revoke(ctx context.Context, token string) error {
	t, err := tm.parse(token)
	if err != nil {
		return err
	}
	if tm.revocations == nil {
		return nil
	}
	if err := tm.revocations.Revoke(ctx, t.ID, t.ExpiresAt); err != nil {
		return fmt.Errorf("revoking ticket: %w", err)
	}
	return nil
}

func (tm *TicketManager) parse(token string) (Ticket, error) {
	if token == "" {
		return Ticket{}, ErrInvalidTicket
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ticketIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return Ticket{}, apperr.Wrap(apperr.CodeAuthentication, ErrInvalidTicket.Message, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.ID == "" || claims.Subject == "" {
		return Ticket{}, ErrInvalidTicket
	}
	return Ticket{
		ID:         claims.ID,
		IdentityID: claims.Subject,
		Name:       claims.Name,
		Level:      claims.Level,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}
