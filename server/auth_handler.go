package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	errs "github.com/chatloop/chatloop/errors"
	"github.com/chatloop/chatloop/models"
	"github.com/chatloop/chatloop/server/response"
)

func (s *Server) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		accessToken, exists := c.Get("access_token")
		if !exists {
			response.JSON(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}
		blacklist := &models.Blacklist{Token: accessToken.(string)}
		if err := s.AuthRepository.AddToBlacklist(blacklist); err != nil {
			response.JSON(c, "logout failed", http.StatusInternalServerError, nil, errs.ErrInternalServerError)
			return
		}
		response.JSON(c, "logout successful", http.StatusOK, nil, nil)
	}
}
