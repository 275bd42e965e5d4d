package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterChatRoutes mounts the chat endpoints on group, which must already require auth.
// Extra handlers run in front of the completion endpoint only.
func RegisterChatRoutes(group *gin.RouterGroup, handler *ChatHandler, completionGuards ...gin.HandlerFunc) {
	chat := group.Group("/chat")
	{
		chat.POST("/create", handler.Create)
		chat.GET("/get", handler.List)
		chat.POST("/rename", handler.Rename)
		chat.POST("/delete", handler.Delete)
		chat.POST("/ai", append(completionGuards, handler.Complete)...)
	}
}
