package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pos-ledger/internal/models"
)

// Identity headers set by the authenticating proxy
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorName = "X-Actor-Name"
	HeaderActorRole = "X-Actor-Role"
)

const actorKey = "actor"

// identityMiddleware stores the caller identity from the request headers.
// The identity is trusted as given.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderActorID))
		if id != "" {
			actor := models.Actor{
				ID:   id,
				Name: strings.TrimSpace(c.GetHeader(HeaderActorName)),
				Role: strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole))),
			}
			if actor.Name == "" {
				actor.Name = id
			}
			c.Set(actorKey, actor)
		}
		c.Next()
	}
}

// requireActor rejects calls without an identity
func requireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(actorKey); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing identity",
			})
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) models.Actor {
	if v, ok := c.Get(actorKey); ok {
		return v.(models.Actor)
	}
	return models.SystemActor
}
