package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

// Claims: полезная нагрузка bearer-токена.
type Claims struct {
	AccountID int64  `json:"account_id"`
	Role      string `json:"role"`
	ShopID    int64  `json:"shop_id,omitempty"`
	jwt.RegisteredClaims
}

type actorKey struct{}

// Authenticator проверяет HS256-токены и кладёт участника в контекст запроса.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// NewAuthenticator создаёт проверку токенов с общим секретом.
func NewAuthenticator(secret string) (*Authenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Authenticator{secret: []byte(secret), now: time.Now}, nil
}

// IssueToken подписывает токен для участника.
func (a *Authenticator) IssueToken(actor domain.Actor, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		AccountID: actor.AccountID,
		Role:      string(actor.Role),
		ShopID:    actor.ShopID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", actor.AccountID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse проверяет подпись, срок действия и роль.
func (a *Authenticator) Parse(raw string) (domain.Actor, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !token.Valid {
		return domain.Actor{}, domain.ErrActorInvalid
	}

	actor := domain.Actor{
		AccountID: claims.AccountID,
		Role:      domain.Role(claims.Role),
		ShopID:    claims.ShopID,
	}
	if err := actor.Validate(); err != nil {
		return domain.Actor{}, err
	}
	return actor, nil
}

// Middleware отвечает 401, если токен отсутствует или не проходит проверку.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeFailure(w, http.StatusUnauthorized, domain.CodeUnauthorized, "bearer token is required")
			return
		}

		actor, err := a.Parse(strings.TrimSpace(raw))
		if err != nil {
			writeFailure(w, http.StatusUnauthorized, domain.CodeUnauthorized, "bearer token is invalid")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// WithActor кладёт участника в контекст.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom возвращает участника запроса; без аутентификации: нулевого.
func ActorFrom(ctx context.Context) domain.Actor {
	actor, _ := ctx.Value(actorKey{}).(domain.Actor)
	return actor
}
