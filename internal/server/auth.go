package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"slotswap/internal/cache"
	"slotswap/internal/middleware"
	"slotswap/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	tokenIssuer   = "slotswap-api"
	tokenAudience = "slotswap-client"
	tokenTTL      = 7 * 24 * time.Hour

	wsTicketPrefix = "ws_ticket:"
	wsTicketTTL    = 30 * time.Second
)

// generateToken creates a signed HS256 token whose subject is userID.
func (s *Server) generateToken(userID uint) (string, error) {
	if s.config.JWTSecret == "" {
		return "", errors.New("JWT secret not configured")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatUint(uint64(userID), 10),
		"iss": tokenIssuer,
		"aud": tokenAudience,
		"exp": now.Add(tokenTTL).Unix(),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"jti": uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

// parseToken verifies signature, expiry, issuer and audience.
func (s *Server) parseToken(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(s.config.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func bearerToken(c *fiber.Ctx) string {
	scheme, token, ok := strings.Cut(c.Get("Authorization"), " ")
	if !ok || scheme != "Bearer" {
		return ""
	}
	return strings.TrimSpace(token)
}

func authenticate(c *fiber.Ctx, userID uint) error {
	c.Locals("userID", userID)
	// Sync to UserContext for logging and downstream services
	c.SetUserContext(middleware.WithUserID(c.UserContext(), userID))
	return c.Next()
}

// AuthRequired returns the authentication middleware. WebSocket paths accept
// a single-use ticket; everything else takes a Bearer token.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		isWSPath := strings.HasPrefix(c.Path(), "/api/ws") && c.Path() != "/api/ws/ticket"

		if ticket := c.Query("ticket"); ticket != "" && isWSPath {
			userID, err := s.redeemWSTicket(c.UserContext(), ticket)
			if err != nil {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
			return authenticate(c, userID)
		}

		tokenString := bearerToken(c)
		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		claims, err := s.parseToken(tokenString)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		sub, _ := claims["sub"].(string)
		userID, err := strconv.ParseUint(sub, 10, 32)
		if err != nil || userID == 0 {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid user ID in token"))
		}

		// Check JTI for revocation
		if jti, _ := claims["jti"].(string); jti != "" && s.redis != nil {
			revoked, err := s.redis.Exists(c.UserContext(), cache.BlacklistKey(jti)).Result()
			if err != nil {
				middleware.Logger.WarnContext(c.UserContext(), "token revocation check failed", slog.String("error", err.Error()))
			} else if revoked > 0 {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Token has been revoked"))
			}
		}

		c.Locals("claims", claims)
		return authenticate(c, uint(userID))
	}
}

// revokeToken blacklists the token's jti until it would have expired anyway.
func (s *Server) revokeToken(ctx context.Context, claims jwt.MapClaims) error {
	if s.redis == nil {
		return nil
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fmt.Errorf("token has no expiry: %w", err)
	}
	ttl := time.Until(exp.Time)
	if ttl <= 0 {
		return nil
	}
	return s.redis.Set(ctx, cache.BlacklistKey(jti), "1", ttl).Err()
}

func (s *Server) issueWSTicket(ctx context.Context, userID uint) (string, error) {
	if s.redis == nil {
		return "", errors.New("websocket tickets require redis")
	}
	ticket := uuid.NewString()
	key := wsTicketPrefix + ticket
	if err := s.redis.Set(ctx, key, strconv.FormatUint(uint64(userID), 10), wsTicketTTL).Err(); err != nil {
		return "", err
	}
	return ticket, nil
}

// redeemWSTicket consumes a ticket; a second redeem fails.
func (s *Server) redeemWSTicket(ctx context.Context, ticket string) (uint, error) {
	if s.redis == nil {
		return 0, errors.New("websocket tickets require redis")
	}
	raw, err := s.redis.GetDel(ctx, wsTicketPrefix+ticket).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, errors.New("unknown ticket")
		}
		return 0, err
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("malformed ticket")
	}
	return uint(id), nil
}
