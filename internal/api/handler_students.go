package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"campus-access-backend/internal/model"
)

// SearchStudents finds students by name, USN or contact number.
func (h *Handler) SearchStudents(c *gin.Context) {
	students, err := h.Registry.Search(c.Request.Context(), strings.TrimSpace(c.Query("q")), queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

// GetStudent returns a profile and the tags currently issued to it.
func (h *Handler) GetStudent(c *gin.Context) {
	usn := c.Param("usn")
	student, err := h.Registry.Student(c.Request.Context(), usn)
	if err != nil {
		respondError(c, err)
		return
	}
	tags, err := h.Store.ActiveTagUIDs(c.Request.Context(), usn)
	if err != nil {
		respondError(c, err)
		return
	}
	if tags == nil {
		tags = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"student": student, "tags": tags})
}

type studentRequest struct {
	Name            string     `json:"name" binding:"required"`
	ContactNo       string     `json:"contact_no"`
	BloodGroup      string     `json:"blood_group"`
	Address         string     `json:"address"`
	StayingAtHostel bool       `json:"staying_at_hostel"`
	ValidFrom       *time.Time `json:"valid_from"`
	ValidUpto       time.Time  `json:"valid_upto" binding:"required"`
}

// PutStudent creates or replaces a student profile. The photo key is kept.
func (h *Handler) PutStudent(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and valid_upto are required"})
		return
	}

	usn := c.Param("usn")
	student := &model.Student{
		USN:             usn,
		Name:            strings.TrimSpace(req.Name),
		ContactNo:       strings.TrimSpace(req.ContactNo),
		BloodGroup:      strings.TrimSpace(req.BloodGroup),
		Address:         strings.TrimSpace(req.Address),
		StayingAtHostel: req.StayingAtHostel,
		ValidUpto:       req.ValidUpto,
	}
	if req.ValidFrom != nil {
		student.ValidFrom = *req.ValidFrom
	}
	if existing, err := h.Registry.Student(c.Request.Context(), usn); err == nil {
		student.ImageKey = existing.ImageKey
		student.CreatedAt = existing.CreatedAt
	}

	if err := h.Registry.SaveStudent(c.Request.Context(), student); err != nil {
		respondError(c, err)
		return
	}
	h.flushDirectory()
	c.JSON(http.StatusOK, student)
}

type photoRequest struct {
	ContentType string `json:"content_type" binding:"required"`
}

// PostPhoto presigns an upload for a new student photo.
func (h *Handler) PostPhoto(c *gin.Context) {
	var req photoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content_type is required"})
		return
	}
	upload, err := h.Photos.RequestUpload(c.Request.Context(), c.Param("usn"), req.ContentType)
	if err != nil {
		respondError(c, err)
		return
	}
	h.flushDirectory()
	c.JSON(http.StatusCreated, upload)
}

// GetPhoto returns a short-lived download URL for a student's photo.
func (h *Handler) GetPhoto(c *gin.Context) {
	url, err := h.Photos.URL(c.Request.Context(), c.Param("usn"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// DeletePhoto removes a student's photo.
func (h *Handler) DeletePhoto(c *gin.Context) {
	if err := h.Photos.Remove(c.Request.Context(), c.Param("usn")); err != nil {
		respondError(c, err)
		return
	}
	h.flushDirectory()
	c.Status(http.StatusNoContent)
}

type issueTagRequest struct {
	UID string `json:"uid" binding:"required"`
	USN string `json:"usn" binding:"required"`
}

// PostTag issues a tag to a student, retiring the student's previous tag.
func (h *Handler) PostTag(c *gin.Context) {
	var req issueTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uid and usn are required"})
		return
	}
	tag, err := h.Registry.IssueTag(c.Request.Context(), strings.TrimSpace(req.UID), strings.TrimSpace(req.USN))
	if err != nil {
		respondError(c, err)
		return
	}
	h.flushDirectory()
	c.JSON(http.StatusCreated, tag)
}

// DeleteTag revokes a tag.
func (h *Handler) DeleteTag(c *gin.Context) {
	if err := h.Registry.RevokeTag(c.Request.Context(), c.Param("uid")); err != nil {
		respondError(c, err)
		return
	}
	h.flushDirectory()
	c.Status(http.StatusNoContent)
}
