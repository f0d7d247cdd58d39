package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type issueBookRequest struct {
	TagUID string `json:"tag_uid" binding:"required"`
	BookID string `json:"book_id" binding:"required"`
}

// PostBook lends a book to the student holding a tag.
func (h *Handler) PostBook(c *gin.Context) {
	var req issueBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tag_uid and book_id are required"})
		return
	}
	loan, err := h.Library.Issue(c.Request.Context(), req.TagUID, req.BookID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

// ReturnBook closes a loan.
func (h *Handler) ReturnBook(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid loan id"})
		return
	}
	loan, err := h.Library.Return(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

// GetBooks lists loans, optionally for one student and only open ones.
func (h *Handler) GetBooks(c *gin.Context) {
	openOnly, _ := strconv.ParseBool(c.Query("open"))
	loans, err := h.Library.List(c.Request.Context(), c.Query("usn"), openOnly, queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"loans": loans})
}
