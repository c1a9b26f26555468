package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"vibely/internal/config"
	"vibely/internal/models"
	"vibely/internal/observability"
	"vibely/internal/repository"

	"github.com/chai2010/webp"
	"go.opentelemetry.io/otel/attribute"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultImageUploadDir       = "/tmp/vibely/uploads/images"
	DefaultImageMaxUploadSizeMB = 10
	// DisplayMaxSize is the longest edge of a stored rendition.
	DisplayMaxSize = 1080
	JPEGQuality    = 82
	WebPQuality    = 70
)

// Stored rendition file names under <uploadDir>/<hash>/.
var (
	DisplayJPEG = fmt.Sprintf("%d.jpg", DisplayMaxSize)
	DisplayWebP = fmt.Sprintf("%d.webp", DisplayMaxSize)
)

type UploadImageInput struct {
	UserID      uint
	Filename    string
	ContentType string
	Content     []byte
}

// UploadedImage is a stored image plus the public URLs of its renditions.
type UploadedImage struct {
	Image   *models.Image
	URL     string
	WebPURL string
}

type ImageService struct {
	repo               repository.ImageRepository
	uploadDir          string
	publicBaseURL      string
	maxUploadSizeBytes int64
}

func NewImageService(repo repository.ImageRepository, cfg *config.Config) *ImageService {
	uploadDir := DefaultImageUploadDir
	maxMB := DefaultImageMaxUploadSizeMB
	baseURL := ""
	if cfg != nil {
		if strings.TrimSpace(cfg.ImageUploadDir) != "" {
			uploadDir = cfg.ImageUploadDir
		}
		if cfg.ImageMaxMB > 0 {
			maxMB = cfg.ImageMaxMB
		}
		baseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	}
	return &ImageService{
		repo:               repo,
		uploadDir:          uploadDir,
		publicBaseURL:      baseURL,
		maxUploadSizeBytes: int64(maxMB) * 1024 * 1024,
	}
}

// Upload validates, downsizes and stores an image. Identical uploads resolve to
// the same hash and reuse the stored files.
func (s *ImageService) Upload(ctx context.Context, in UploadImageInput) (out *UploadedImage, err error) {
	ctx, span := observability.StartSpan(ctx, "ImageService.Upload", attribute.Int("image.bytes", len(in.Content)))
	defer func() { observability.EndSpan(span, err) }()
	return s.upload(ctx, in)
}

func (s *ImageService) upload(ctx context.Context, in UploadImageInput) (*UploadedImage, error) {
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > s.maxUploadSizeBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
	}

	detectedType := http.DetectContentType(in.Content)
	if !isAllowedImageMIME(detectedType) {
		return nil, models.NewValidationError("Invalid image type")
	}

	decoded, format, err := image.Decode(bytes.NewReader(in.Content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}
	if !isSupportedDecodedFormat(format) {
		return nil, models.NewValidationError("Unsupported image format")
	}
	if provided := normalizeContentType(in.ContentType); strings.HasPrefix(provided, "image/") && !isMatchingContentType(provided, decodedFormatToMime(format)) {
		return nil, models.NewValidationError("Image content type mismatch")
	}

	display := resizeToFit(decoded, DisplayMaxSize, DisplayMaxSize)
	encodedJPG, err := encodeJPEG(display, JPEGQuality)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	encodedWebP, err := encodeWebP(display, WebPQuality)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	sum := sha256.Sum256(encodedJPG)
	hash := hex.EncodeToString(sum[:])

	jpgPath := filepath.Join(s.uploadDir, hash, DisplayJPEG)
	webpPath := filepath.Join(s.uploadDir, hash, DisplayWebP)
	if err := writeBytesToFile(jpgPath, encodedJPG); err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := writeBytesToFile(webpPath, encodedWebP); err != nil {
		cleanupImageFiles([]string{jpgPath})
		return nil, models.NewInternalError(err)
	}

	bounds := display.Bounds()
	record := &models.Image{
		Hash:      hash,
		UserID:    in.UserID,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		MimeType:  "image/jpeg",
		SizeBytes: int64(len(encodedJPG)),
	}
	if s.repo != nil {
		if err := s.repo.Create(ctx, record); err != nil {
			return nil, err
		}
	}
	observability.ImagesUploaded.WithLabelValues(format).Inc()

	return &UploadedImage{
		Image:   record,
		URL:     s.BuildImageURL(hash, DisplayJPEG),
		WebPURL: s.BuildImageURL(hash, DisplayWebP),
	}, nil
}

// BuildImageURL returns the public URL of a stored rendition.
func (s *ImageService) BuildImageURL(hash, file string) string {
	return fmt.Sprintf("%s/media/i/%s/%s", s.publicBaseURL, hash, file)
}

// ResolvePath maps a media request to a file on disk. Only known rendition
// names under a well-formed hash are served.
func (s *ImageService) ResolvePath(hash, file string) (string, error) {
	if !isValidImageHash(hash) {
		return "", models.NewNotFoundError("Image", hash)
	}
	if file != DisplayJPEG && file != DisplayWebP {
		return "", models.NewNotFoundError("Image", hash+"/"+file)
	}
	path := filepath.Join(s.uploadDir, hash, file)
	if _, err := os.Stat(path); err != nil {
		return "", models.NewNotFoundError("Image", hash+"/"+file)
	}
	return path, nil
}

func isValidImageHash(hash string) bool {
	if len(hash) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil && strings.ToLower(hash) == hash
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scale := min(float64(maxWidth)/float64(w), float64(maxHeight)/float64(h))
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAllowedImageMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func isMatchingContentType(provided, detected string) bool {
	p := normalizeContentType(provided)
	d := normalizeContentType(detected)
	if p == d {
		return true
	}
	return (p == "image/jpg" && d == "image/jpeg") || (p == "image/jpeg" && d == "image/jpg")
}

func isSupportedDecodedFormat(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg", "png", "gif", "webp":
		return true
	default:
		return false
	}
}

func decodedFormatToMime(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return ""
	}
}

func writeBytesToFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func cleanupImageFiles(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
