package handlers

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"taglens/internal/models"
	"taglens/internal/service"
)

type photoResponse struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	SizeBytes   int64      `json:"size_bytes"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	Description string     `json:"description"`
	TakenAt     *time.Time `json:"taken_at"`
	UploadedAt  time.Time  `json:"uploaded_at"`
}

func toPhotoResponse(photo models.Photo) photoResponse {
	return photoResponse{
		ID:          photo.ID,
		Filename:    photo.Filename,
		ContentType: photo.ContentType,
		SizeBytes:   photo.SizeBytes,
		Width:       photo.Width,
		Height:      photo.Height,
		Description: photo.Description,
		TakenAt:     photo.TakenAt,
		UploadedAt:  photo.CreatedAt,
	}
}

func (h HandlerSet) APIProfile(c *gin.Context) {
	user, _ := currentUser(c)

	photos, err := h.photoService.List(c.Request.Context(), user.ID, c.Query("sort_by"), c.Query("order"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	items := make([]photoResponse, 0, len(photos))
	for _, photo := range photos {
		items = append(items, toPhotoResponse(photo))
	}

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":           user.ID,
			"username":     user.Username,
			"email":        user.Email,
			"member_since": user.CreatedAt,
			"photo_count":  len(items),
		},
		"photos": items,
	})
}

type uploadPhotoRequest struct {
	Filename    string `json:"filename"`
	ImageBase64 string `json:"image_base64"`
	ContentType string `json:"content_type"`
	TakenAt     string `json:"taken_at"`
}

func (h HandlerSet) UploadPhoto(c *gin.Context) {
	var req uploadPhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	// Browsers hand over data URLs; accept them and keep the payload part.
	if idx := strings.Index(req.ImageBase64, ";base64,"); idx >= 0 && strings.HasPrefix(req.ImageBase64, "data:") {
		req.ImageBase64 = req.ImageBase64[idx+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_base64 is not valid base64"})
		return
	}

	var takenAt *time.Time
	if req.TakenAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.TakenAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "taken_at must be an RFC 3339 timestamp"})
			return
		}
		takenAt = &parsed
	}

	user, _ := currentUser(c)
	photo, err := h.photoService.Create(c.Request.Context(), service.CreatePhotoInput{
		User:        user,
		Filename:    req.Filename,
		Data:        data,
		ContentType: req.ContentType,
		TakenAt:     takenAt,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"photo": toPhotoResponse(photo)})
}

func (h HandlerSet) DownloadPhoto(c *gin.Context) {
	user, _ := currentUser(c)

	photo, data, err := h.photoService.Download(c.Request.Context(), user.ID, c.Query("photo_id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"photo_id":     photo.ID,
		"filename":     photo.Filename,
		"content_type": photo.ContentType,
		"image_base64": base64.StdEncoding.EncodeToString(data),
		"description":  photo.Description,
		"taken_at":     photo.TakenAt,
		"uploaded_at":  photo.CreatedAt,
	})
}

func (h HandlerSet) ViewPhoto(c *gin.Context) {
	user, _ := currentUser(c)

	url, err := h.photoService.ViewURL(c.Request.Context(), user.ID, c.Query("photo_id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.Redirect(http.StatusFound, url)
}

func (h HandlerSet) ThumbPhoto(c *gin.Context) {
	user, _ := currentUser(c)

	size := 0
	if raw := c.Query("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "size must be an integer"})
			return
		}
		size = parsed
	}

	thumb, err := h.photoService.Thumbnail(c.Request.Context(), user.ID, c.Query("photo_id"), size)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.Data(http.StatusOK, "image/jpeg", thumb)
}

type deletePhotoRequest struct {
	PhotoID       string `json:"photo_id"`
	ConfirmDelete bool   `json:"confirm_delete"`
}

func (h HandlerSet) DeletePhoto(c *gin.Context) {
	var req deletePhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, _ := currentUser(c)
	if err := h.photoService.Delete(c.Request.Context(), user.ID, req.PhotoID, req.ConfirmDelete); err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "deleted",
		"photo_id": req.PhotoID,
	})
}
