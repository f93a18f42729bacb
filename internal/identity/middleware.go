package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jmerrifield20/LandRegistry/internal/model"
)

const ctxAccount = "landreg_account"

// HeaderAccount names the account when the node runs without token auth.
const HeaderAccount = "X-Account"

// RequireAccount returns a Gin middleware that binds the request to one
// ledger account and injects it into the context under "landreg_account".
//
// With a non-nil issuer a valid Bearer account token is required, and an
// X-Account header, when sent, must name the token's account. With a nil
// issuer (development mode) the X-Account header is trusted as-is.
func RequireAccount(tokens *AccountTokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var account string
		if tokens == nil {
			account = c.GetHeader(HeaderAccount)
		} else {
			authHeader := c.GetHeader("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Bearer account token required",
					"code":  "unauthenticated",
				})
				return
			}
			claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "invalid account token: " + err.Error(),
					"code":  "unauthenticated",
				})
				return
			}
			account = claims.Account
			if named := c.GetHeader(HeaderAccount); named != "" && !sameAccount(named, account) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "account header does not match account token",
					"code":  "unauthenticated",
				})
				return
			}
		}

		account, err := model.NormalizeAccount(account)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "account required: " + err.Error(),
				"code":  "unauthenticated",
			})
			return
		}

		c.Set(ctxAccount, account)
		c.Next()
	}
}

// AccountFromCtx retrieves the account injected by RequireAccount.
func AccountFromCtx(c *gin.Context) string {
	v, _ := c.Get(ctxAccount)
	s, _ := v.(string)
	return s
}

func sameAccount(a, b string) bool {
	na, errA := model.NormalizeAccount(a)
	nb, errB := model.NormalizeAccount(b)
	return errA == nil && errB == nil && na == nb
}
