// Package extractor turns face images into embeddings by calling an external
// face-embedding server.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/faceid/internal/apperr"
	"github.com/kozaktomas/faceid/internal/gallery"
)

const (
	defaultExtractorURL = "http://localhost:8000"
	defaultMaxImageSize = 1280

	// maxResponseSize bounds the extractor reply; a few faces of 512 floats
	// fit comfortably.
	maxResponseSize = 8 << 20
)

// Extractor computes the embedding of the single most prominent face in an
// encoded image. It returns apperr.ErrNoFace when the image holds no face.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (gallery.Embedding, error)
}

// Func adapts a function to the Extractor interface.
type Func func(ctx context.Context, image []byte) (gallery.Embedding, error)

// Extract calls f.
func (f Func) Extract(ctx context.Context, image []byte) (gallery.Embedding, error) {
	return f(ctx, image)
}

// Client is the HTTP Extractor.
type Client struct {
	baseURL      string
	maxImageSize int
	client       *http.Client
}

// NewClient creates a client for the embedding server at baseURL.
func NewClient(baseURL string, timeout time.Duration, maxImageSize int) *Client {
	if baseURL == "" {
		baseURL = defaultExtractorURL
	}
	if maxImageSize <= 0 {
		maxImageSize = defaultMaxImageSize
	}
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		maxImageSize: maxImageSize,
		client:       &http.Client{Timeout: timeout},
	}
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Extract downsizes the image, posts it to /embed/face and returns the
// embedding of the face with the highest detection score.
func (c *Client) Extract(ctx context.Context, image []byte) (gallery.Embedding, error) {
	if len(image) == 0 {
		return nil, apperr.Validation("image is empty")
	}
	prepared, err := PrepareImage(image, c.maxImageSize)
	if err != nil {
		return nil, err
	}

	faces, err := c.ComputeFaceEmbeddings(ctx, prepared)
	if err != nil {
		return nil, err
	}

	best := BestFace(faces.Faces)
	if best == nil {
		return nil, apperr.ErrNoFace
	}
	return gallery.Embedding(best.Embedding), nil
}

// ComputeFaceEmbeddings detects faces and computes their embeddings.
func (c *Client) ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, apperr.Wrap(apperr.CodeExtractorUnavailable, "face extractor returned an invalid response", err)
	}
	return &faceResp, nil
}

// BestFace returns the detection with the highest score that carries an
// embedding, or nil.
func BestFace(faces []FaceDetection) *FaceDetection {
	var best *FaceDetection
	for i := range faces {
		f := &faces[i]
		if len(f.Embedding) == 0 {
			continue
		}
		if best == nil || f.DetScore > best.DetScore {
			best = f
		}
	}
	return best
}

// postMultipartImage constructs a multipart form with the image data and posts
// it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", DetectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.CodeExtractorUnavailable, "face extractor unavailable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeExtractorUnavailable, "failed to read extractor response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, apperr.Wrap(apperr.CodeValidation, "face extractor rejected the image",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	default:
		return nil, apperr.Wrap(apperr.CodeExtractorUnavailable, "face extractor unavailable",
			fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
}

// DetectMIMEType detects the MIME type from image data
func DetectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	// BMP: 42 4D
	if data[0] == 0x42 && data[1] == 0x4D {
		return "image/bmp"
	}
	return "application/octet-stream"
}
