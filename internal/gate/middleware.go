package gate

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lojix/lojix/internal/logging"
)

const contextKey = "gate.context"

// PrincipalExtractor pulls the authenticated principal's email from a
// request. Authentication itself lives upstream; the gate only needs
// the verified identity.
type PrincipalExtractor func(c *gin.Context) string

// HeaderPrincipal reads the identity the auth proxy forwards.
func HeaderPrincipal(c *gin.Context) string {
	return c.GetHeader("X-Authenticated-Email")
}

// Middleware resolves the caller's tenant context and aborts the
// request when access is denied. Handlers downstream read the result
// with TenantFrom.
func Middleware(resolver *Resolver, extract PrincipalExtractor) gin.HandlerFunc {
	return func(c *gin.Context) {
		gctx, err := resolver.Resolve(c.Request.Context(), extract(c))
		if err != nil {
			code, ok := Denial(err)
			if !ok {
				logging.L(c.Request.Context()).Error("context resolution failed", "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
				return
			}
			status := http.StatusForbidden
			if code == NotAuthenticated {
				status = http.StatusUnauthorized
			}
			c.AbortWithStatusJSON(status, gin.H{"error": "access_denied", "code": string(code)})
			return
		}

		c.Set(contextKey, gctx)
		if gctx.TenantID != "" {
			c.Request = c.Request.WithContext(logging.WithTenantID(c.Request.Context(), gctx.TenantID))
		}
		c.Next()
	}
}

// TenantFrom returns the resolved tenant context, or nil outside the
// gate middleware.
func TenantFrom(c *gin.Context) *Context {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil
	}
	gctx, _ := v.(*Context)
	return gctx
}
