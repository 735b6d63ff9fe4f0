package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"simple-chat/internal/platform/config"
	"simple-chat/internal/security/audit"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const principalKey = "principal"

// ErrMissingToken 請求未帶 Bearer token.
var ErrMissingToken = errors.New("missing bearer token")

// Principal 已驗證的呼叫者.
type Principal struct {
	Subject string
	Email   string
	Name    string
}

// Claims 身分提供者簽發的 token 內容. oid 優先於 sub.
type Claims struct {
	jwt.RegisteredClaims
	OID               string `json:"oid,omitempty"`
	Email             string `json:"email,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Name              string `json:"name,omitempty"`
}

// Principal 由 claims 取出呼叫者資訊.
func (c *Claims) Principal() *Principal {
	p := &Principal{Subject: c.OID, Email: c.Email, Name: c.Name}
	if p.Subject == "" {
		p.Subject = c.Subject
	}
	if p.Email == "" {
		p.Email = c.PreferredUsername
	}
	return p
}

type principalCtxKey struct{}

// WithPrincipal 將呼叫者放入 context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFrom 從 context 取出呼叫者.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(principalCtxKey{}).(*Principal)
	return p, ok && p != nil
}

// GetPrincipal 從 gin.Context 取出呼叫者.
func GetPrincipal(c *gin.Context) (*Principal, bool) {
	if v, exists := c.Get(principalKey); exists {
		if p, ok := v.(*Principal); ok && p != nil {
			return p, true
		}
	}
	return nil, false
}

// JWTMiddleware JWT 驗證中間件. 未啟用時直接放行.
type JWTMiddleware struct {
	secret   []byte
	enabled  bool
	issuer   string
	audience string
	audit    *audit.AuditService
}

// NewJWTMiddleware 創建 JWT 中間件
func NewJWTMiddleware(cfg config.AuthenticationConfig, auditor *audit.AuditService) *JWTMiddleware {
	return &JWTMiddleware{
		secret:   []byte(cfg.JWTSecret),
		enabled:  cfg.JWTEnabled,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		audit:    auditor,
	}
}

// Enabled 是否啟用驗證.
func (m *JWTMiddleware) Enabled() bool {
	return m != nil && m.enabled
}

// Parse 驗證 token 並回傳呼叫者.
func (m *JWTMiddleware) Parse(raw string) (*Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	p := claims.Principal()
	if p.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return p, nil
}

// GinMiddleware Gin HTTP 中間件
func (m *JWTMiddleware) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() {
			c.Next()
			return
		}

		raw, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			m.audit.LogAuthenticationFailure(c.Request.Context(), err.Error())
			abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "未提供有效的認證 token")
			return
		}

		p, err := m.Parse(raw)
		if err != nil {
			m.audit.LogAuthenticationFailure(c.Request.Context(), err.Error())
			abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "認證失敗")
			return
		}

		c.Set(principalKey, p)
		c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// GRPCUnaryInterceptor gRPC 一元 RPC 攔截器
func (m *JWTMiddleware) GRPCUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !m.Enabled() {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "未提供認證信息")
		}
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "未提供認證 token")
		}

		raw, err := bearerToken(values[0])
		if err != nil {
			m.audit.LogAuthenticationFailure(ctx, err.Error())
			return nil, status.Error(codes.Unauthenticated, "無效的認證格式")
		}
		p, err := m.Parse(raw)
		if err != nil {
			m.audit.LogAuthenticationFailure(ctx, err.Error())
			return nil, status.Error(codes.Unauthenticated, "認證失敗")
		}

		return handler(WithPrincipal(ctx, p), req)
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errors.New("invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}
