package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	errs "github.com/chatloop/chatloop/errors"
	"github.com/chatloop/chatloop/server/response"
)

func (s *Server) handleListConversations() gin.HandlerFunc {
	return func(c *gin.Context) {
		convs, err := s.MessageService.ListConversations(currentUser(c))
		if err != nil {
			response.JSON(c, "", errs.Status(err), nil, err)
			return
		}
		response.JSON(c, "conversations retrieved successfully", http.StatusOK, convs, nil)
	}
}

func (s *Server) handleHideConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			response.JSON(c, "", errs.Status(err), nil, err)
			return
		}
		if err := s.MessageService.HideConversation(currentUser(c), id); err != nil {
			response.JSON(c, "", errs.Status(err), nil, err)
			return
		}
		response.JSON(c, "conversation hidden successfully", http.StatusOK, gin.H{"status": true}, nil)
	}
}
