package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/agencydesk/pkg/db/pagination"
)

// Envelope is the shape of every response body.
type Envelope struct {
	Success    bool                 `json:"success"`
	Data       any                  `json:"data,omitempty"`
	Error      string               `json:"error,omitempty"`
	Message    string               `json:"message,omitempty"`
	Pagination *pagination.PageInfo `json:"pagination,omitempty"`
	Errors     []ValidationError    `json:"errors,omitempty"`
}

func respond(c *gin.Context, status int, data any, message string) {
	c.JSON(status, Envelope{Success: true, Data: data, Message: message})
}

func respondList(c *gin.Context, status int, data any, pageInfo pagination.PageInfo) {
	c.JSON(status, Envelope{Success: true, Data: data, Pagination: &pageInfo})
}
