package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "ledgerd/internal/core/context"
)

// HeaderActorID names the operator behind a request. Authentication is
// handled in front of the service; the header is trusted as given.
const HeaderActorID = "X-Actor-ID"

const anonymousActor = "anonymous"

// Actor puts the calling operator into the request context for auditing.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := c.GetHeader(HeaderActorID)
		if actor == "" {
			actor = anonymousActor
		}
		ctx := appctx.WithActor(c.Request.Context(), &appctx.Actor{ID: actor, Source: "api"})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func actorID(c *gin.Context) string {
	return appctx.GetActorID(c.Request.Context())
}
