package server

import (
	"crypto/subtle"
	"encoding/base64"
	"io"
	"strings"

	"vibely/internal/models"
	"vibely/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ImageUploadData is the "data" object of an upload response. Its shape
// follows imgbb so existing clients can point at this host unchanged.
type ImageUploadData struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	DisplayURL string `json:"display_url"`
	WebPURL    string `json:"webp_url"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Size       int64  `json:"size"`
	Mime       string `json:"mime"`
}

// ImageUploadResponse is the API response after uploading an image.
type ImageUploadResponse struct {
	Data    ImageUploadData `json:"data"`
	Success bool            `json:"success"`
	Status  int             `json:"status"`
}

// ImageHostAuth admits requests carrying the image host API key in ?key=,
// and otherwise requires a bearer token.
func (s *Server) ImageHostAuth() fiber.Handler {
	authRequired := s.AuthRequired()
	return func(c *fiber.Ctx) error {
		key := c.Query("key")
		if key != "" && s.config.ImageHostKey != "" &&
			subtle.ConstantTimeCompare([]byte(key), []byte(s.config.ImageHostKey)) == 1 {
			return c.Next()
		}
		return authRequired(c)
	}
}

// UploadImage handles POST /api/images/upload
// @Summary Upload an image
// @Description Multipart field "image" holds either base64 data or a file.
// @Tags images
// @Accept multipart/form-data
// @Produce json
// @Param key query string false "Image host API key"
// @Success 200 {object} ImageUploadResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /images/upload [post]
func (s *Server) UploadImage(c *fiber.Ctx) error {
	content, filename, contentType, err := readUploadedImage(c)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}

	uploaded, err := s.imageService.Upload(c.UserContext(), service.UploadImageInput{
		UserID:      currentUserID(c),
		Filename:    filename,
		ContentType: contentType,
		Content:     content,
	})
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.JSON(toImageUploadResponse(uploaded))
}

// readUploadedImage accepts the imgbb style base64 form value (optionally a
// data URL) or a regular file part under the same field name.
func readUploadedImage(c *fiber.Ctx) ([]byte, string, string, error) {
	if raw := strings.TrimSpace(c.FormValue("image")); raw != "" {
		if i := strings.Index(raw, ";base64,"); strings.HasPrefix(raw, "data:") && i > 0 {
			raw = raw[i+len(";base64,"):]
		}
		content, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, "", "", models.NewValidationError("Invalid base64 image data")
		}
		return content, "", "", nil
	}

	file, err := c.FormFile("image")
	if err != nil {
		return nil, "", "", models.NewValidationError("No file uploaded")
	}
	src, err := file.Open()
	if err != nil {
		return nil, "", "", models.NewValidationError("Unable to read uploaded file")
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		return nil, "", "", models.NewValidationError("Unable to read uploaded file")
	}
	return content, file.Filename, file.Header.Get("Content-Type"), nil
}

// ServeImage handles GET /media/i/:hash/:file
func (s *Server) ServeImage(c *fiber.Ctx) error {
	path, err := s.imageService.ResolvePath(strings.TrimSpace(c.Params("hash")), c.Params("file"))
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	// Renditions are content addressed and never change.
	c.Set(fiber.HeaderCacheControl, "public, max-age=31536000, immutable")
	return c.SendFile(path)
}

func toImageUploadResponse(uploaded *service.UploadedImage) ImageUploadResponse {
	img := uploaded.Image
	return ImageUploadResponse{
		Data: ImageUploadData{
			ID:         img.Hash,
			URL:        uploaded.URL,
			DisplayURL: uploaded.URL,
			WebPURL:    uploaded.WebPURL,
			Width:      img.Width,
			Height:     img.Height,
			Size:       img.SizeBytes,
			Mime:       img.MimeType,
		},
		Success: true,
		Status:  fiber.StatusOK,
	}
}
