package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS lets the storefront call the API with its session cookies
func CORS(allowedOrigins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Idempotency-Key", sessionHeader, customerHeader},
		ExposeHeaders:    []string{"Content-Length", sessionHeader, customerHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
