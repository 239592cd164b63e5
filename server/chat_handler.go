package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	errs "github.com/chatloop/chatloop/errors"
	"github.com/chatloop/chatloop/models"
	"github.com/chatloop/chatloop/server/response"
)

type listMessagesRequest struct {
	Search         string `form:"search" binding:"omitempty,min=3"`
	Order          string `form:"order" binding:"omitempty,oneof=asc desc"`
	OrderBy        string `form:"orderBy" binding:"omitempty,oneof=created_at id"`
	PageSize       int    `form:"pageSize" binding:"omitempty,min=1"`
	Page           int    `form:"page" binding:"omitempty,min=1"`
	ConversationID uint   `form:"conversation_id"`
	OtherUserID    uint   `form:"other_user_id"`
	System         bool   `form:"system"`
	ReplyID        uint   `form:"reply_id"`
	ReplyType      string `form:"reply_type" binding:"required_with=ReplyID,omitempty,oneof=message"`
}

type createMessageRequest struct {
	ConversationID uint                `json:"conversation_id"`
	OtherUserID    uint                `json:"other_user_id" binding:"required_without=ConversationID"`
	Message        string              `json:"message"`
	ReplyID        *uint               `json:"reply_id"`
	ReplyType      string              `json:"reply_type" binding:"required_with=ReplyID,omitempty,oneof=message"`
	Token          string              `json:"token"`
	Attachments    []models.Attachment `json:"attachments"`
}

type deleteMessageRequest struct {
	Everyone bool `json:"everyone" form:"everyone"`
}

type bulkDeleteRequest struct {
	Messages []uint `json:"messages" binding:"required,min=1"`
	Everyone bool   `json:"everyone"`
}

func (s *Server) handleListMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req listMessagesRequest
		if err := decodeQuery(c, &req); err != nil {
			response.JSON(c, "", errs.Status(err), nil, err)
			return
		}

		user := currentUser(c)
		page, err := s.MessageService.History(user, models.HistoryFilter{
			ConversationID: req.ConversationID,
			OtherUserID:    req.OtherUserID,
			Search:         req.Search,
			Order:          req.Order,
			OrderBy:        req.OrderBy,
			Page:           req.Page,
			PageSize:       req.PageSize,
			ReplyID:        req.ReplyID,
			ReplyType:      req.ReplyType,
			System:         req.System,
		})
		if err != nil {
			response.JSON(c, "", errs.Status(err), nil, err)
			return
		}
		response.JSON(c, "messages retrieved successfully", http.StatusOK, page, nil)
	}
}

func (s *Server) handleCreateMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createMessageRequest
		if err := decode(c, &req); err != nil {
			response.JSON(c, "", errs.Status(err), nil, err)
			return
		}

		user := currentUser(c)
		msg, created, err := s.ChatService.CreateMessage(user, models.CreateMessageParams{
			ConversationID: req.ConversationID,
			OtherUserID:    req.OtherUserID,
			Body:           req.Message,
			ReplyID:        req.ReplyID,
			ReplyType:      req.ReplyType,
			Token:          req.Token,
			Attachments:    req.Attachments,
		})
		if err != nil {
			response.JSON(c, "", errs.Status(err), nil, err)
			return
		}
		status := http.StatusOK
		message := "message already exists"
		if created {
			status = http.StatusCreated
			message = "message sent successfully"
		}
		response.JSON(c, message, status, msg, nil)
	}
}

func (s *Server) handleShowMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			response.JSON(c, "", errs.Status(err), nil, err)
			return
		}
		msg, err := s.MessageService.Show(currentUser(c), id)
		if err != nil {
			response.JSON(c, "", errs.Status(err), nil, err)
			return
		}
		response.JSON(c, "message retrieved successfully", http.StatusOK, msg, nil)
	}
}

func (s *Server) handleDeleteMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			response.JSON(c, "", errs.Status(err), nil, err)
			return
		}

		var req deleteMessageRequest
		if c.Request.ContentLength > 0 {
			if err := decode(c, &req); err != nil {
				response.JSON(c, "", errs.Status(err), nil, err)
				return
			}
		} else {
			req.Everyone = c.Query("everyone") == "true"
		}

		result, err := s.MessageService.Delete(currentUser(c), id, req.Everyone)
		if err != nil {
			response.JSON(c, "", errs.Status(err), nil, err)
			return
		}
		response.JSON(c, "message deleted successfully", http.StatusOK, result, nil)
	}
}

func (s *Server) handleBulkDeleteMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bulkDeleteRequest
		if err := decode(c, &req); err != nil {
			response.JSON(c, "", errs.Status(err), nil, err)
			return
		}

		result, err := s.MessageService.BulkDelete(currentUser(c), req.Messages, req.Everyone)
		if err != nil {
			response.JSON(c, "", errs.Status(err), nil, err)
			return
		}
		response.JSON(c, "messages deleted successfully", http.StatusOK, result, nil)
	}
}

func currentUser(c *gin.Context) *models.User {
	user, _ := c.MustGet("user").(*models.User)
	return user
}

func pathID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errs.New("invalid id", http.StatusBadRequest)
	}
	return uint(id), nil
}
