package api

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"

	"shopwatch/internal/detection"
	"shopwatch/internal/ledger"
	"shopwatch/internal/snapshot"
)

// multipart headers and boundaries on top of the file itself
const formOverhead = 1 << 20

// DetectionInfo is one person box in an upload response
type DetectionInfo struct {
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"`
}

// UploadResponse is the response of POST /upload
type UploadResponse struct {
	PersonDetected bool            `json:"person_detected"`
	Confidence     float64         `json:"confidence"`
	Message        string          `json:"message"`
	AnnotatedImage string          `json:"annotated_image"`
	OriginalImage  string          `json:"original_image"`
	Detections     []DetectionInfo `json:"detections"`
	Alert          *ledger.Entry   `json:"alert"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	maxSize := s.Upload.MaxSize

	r.Body = http.MaxBytesReader(w, r.Body, maxSize+formOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(ctx, w, http.StatusRequestEntityTooLarge, tooLargeMessage(maxSize), err)
			return
		}
		s.writeError(ctx, w, http.StatusBadRequest, "invalid multipart form", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(ctx, w, http.StatusBadRequest, "No file provided", err)
		return
	}
	defer file.Close()

	if header.Filename == "" {
		s.writeError(ctx, w, http.StatusBadRequest, "No file selected", nil)
		return
	}
	if !s.allowedFile(header.Filename) {
		s.writeError(ctx, w, http.StatusBadRequest, "File type not allowed. Use JPG or PNG.", nil)
		return
	}
	if header.Size > maxSize {
		s.writeError(ctx, w, http.StatusRequestEntityTooLarge, tooLargeMessage(maxSize), nil)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(ctx, w, http.StatusBadRequest, "failed to read upload", err)
		return
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.writeError(ctx, w, http.StatusBadRequest, "file is not a readable image", err)
		return
	}

	stamp := strings.Replace(s.now().Format("20060102_150405.000000"), ".", "_", 1)
	name := stamp + "_" + secureFilename(header.Filename)
	if err := s.Images.WriteFile(data, name); err != nil {
		s.writeError(ctx, w, http.StatusInternalServerError, "failed to store upload", err)
		return
	}

	out, err := s.Pipeline.ProcessImage(ctx, img, name)
	if err != nil {
		if errors.Is(err, detection.ErrUnavailable) {
			s.writeError(ctx, w, http.StatusServiceUnavailable, "detection service unavailable", err)
			return
		}
		s.writeError(ctx, w, http.StatusInternalServerError, "failed to process image", err)
		return
	}

	res := &UploadResponse{
		PersonDetected: out.Detection.Present,
		Confidence:     out.Detection.Confidence,
		Message:        "NO PERSON DETECTED",
		AnnotatedImage: out.AnnotatedRef,
		OriginalImage:  snapshot.URL(name),
		Detections:     make([]DetectionInfo, 0, len(out.Detection.Boxes)),
		Alert:          out.Alert,
	}
	if out.Detection.Present {
		res.Message = "PERSON DETECTED"
	}
	for _, b := range out.Detection.Boxes {
		res.Detections = append(res.Detections, DetectionInfo{
			Class:      b.Label,
			Confidence: b.Confidence,
			BBox:       []float64{b.X1, b.Y1, b.X2, b.Y2},
		})
	}
	s.writeJSON(ctx, w, http.StatusOK, res)
}

func tooLargeMessage(maxSize int64) string {
	return fmt.Sprintf("File too large. Max size: %.0fMB", float64(maxSize)/(1024*1024))
}

func (s *Server) allowedFile(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return false
	}
	for _, allowed := range s.Upload.Extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// secureFilename keeps only the base name with ASCII letters, digits, dot,
// dash and underscore
func secureFilename(filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	var b strings.Builder
	for _, r := range filename {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	clean := strings.TrimLeft(b.String(), "._")
	if clean == "" || !strings.Contains(clean, ".") {
		clean = "upload" + strings.ToLower(filepath.Ext(filename))
	}
	return clean
}

func (s *Server) handleUploads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := s.mux.Vars(r)["filename"]

	data, err := s.Images.Read(name)
	switch {
	case errors.Is(err, snapshot.ErrInvalidName):
		s.writeError(ctx, w, http.StatusBadRequest, "invalid file name", err)
		return
	case errors.Is(err, fs.ErrNotExist):
		s.writeError(ctx, w, http.StatusNotFound, "file not found", nil)
		return
	case err != nil:
		s.writeError(ctx, w, http.StatusInternalServerError, "failed to read file", err)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
