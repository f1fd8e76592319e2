package server

import (
	"github.com/gin-gonic/gin"

	"github.com/tannoy-player/tannoy/log"
)

// SetupRouter creates and configures the gin router.
func SetupRouter(api *API) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = log.Writer()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	r.POST("/submit", api.Submit)
	r.POST("/search", api.Search)
	r.GET("/search-suggestions", api.SearchSuggestions)

	r.POST("/control", api.Control)
	r.POST("/volume", api.Volume)
	r.POST("/seek", api.Seek)

	r.POST("/play-now", api.PlayNow)
	r.POST("/remove-item", api.RemoveItem)
	r.POST("/clear-queue", api.ClearQueue)
	r.POST("/shuffle-queue", api.ShuffleQueue)
	r.POST("/move-up", api.MoveUp)
	r.POST("/move-down", api.MoveDown)
	r.POST("/reorder-queue", api.ReorderQueue)

	r.POST("/toggle-autoplay", api.ToggleAutoplay)
	r.GET("/autoplay-status", api.AutoplayStatus)

	r.GET("/queue", api.Queue)
	r.GET("/debug-state", api.DebugState)
	r.GET("/ws", api.WebSocket)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}

// corsMiddleware handles CORS for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
