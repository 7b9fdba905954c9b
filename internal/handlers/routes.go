package handlers

import (
	"github.com/gin-gonic/gin"

	"market-chat/internal/middleware"
	"market-chat/internal/ws"
)

// Routes bundles what RegisterRoutes mounts. WS and SendLimiter are optional.
type Routes struct {
	Conversations *ConversationHandler
	Support       *SupportHandler
	WS            *ws.Handler
	SendLimiter   *middleware.UserRateLimiter
	JWTSecret     string
}

// RegisterRoutes mounts the authenticated API on r.
func RegisterRoutes(r gin.IRouter, rt Routes) {
	limited := func(h gin.HandlerFunc) []gin.HandlerFunc {
		if rt.SendLimiter == nil {
			return []gin.HandlerFunc{h}
		}
		return []gin.HandlerFunc{middleware.RateLimit(rt.SendLimiter), h}
	}

	if rt.WS != nil {
		r.GET("/ws/conversations/:conversation_id", rt.WS.Conversation)
		r.GET("/ws/support", rt.WS.Support)
	}

	api := r.Group("/", middleware.AuthMiddleware(rt.JWTSecret))

	conversations := api.Group("/conversations")
	conversations.GET("", rt.Conversations.ListConversations)
	conversations.POST("", limited(rt.Conversations.StartConversation)...)
	conversations.GET("/:conversation_id/messages", rt.Conversations.GetMessages)
	conversations.POST("/:conversation_id/messages", limited(rt.Conversations.PostMessage)...)
	conversations.POST("/:conversation_id/read", rt.Conversations.MarkRead)
	conversations.GET("/:conversation_id/unread", rt.Conversations.UnreadCount)

	api.GET("/users/search", rt.Conversations.SearchUsers)

	support := api.Group("/support")
	support.GET("/config", rt.Support.GetConfig)
	support.GET("/messages", rt.Support.GetMessages)
	support.POST("/messages", limited(rt.Support.PostMessage)...)
	support.POST("/read", rt.Support.MarkRead)
	support.GET("/unread", rt.Support.UnreadCount)

	admin := api.Group("/admin/support", middleware.RequireAdmin())
	admin.GET("/threads", rt.Support.ListThreads)
	admin.GET("/threads/:user_id/messages", rt.Support.AdminGetMessages)
	admin.POST("/threads/:user_id/messages", rt.Support.AdminPostMessage)
	admin.POST("/threads/:user_id/read", rt.Support.AdminMarkRead)
}
