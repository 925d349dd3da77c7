package embedding

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"
)

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, c)
		}
	}
	return img
}

func setupFaceServer(t *testing.T, status int, resp any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/face" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestDetectFaces(t *testing.T) {
	server := setupFaceServer(t, http.StatusOK, map[string]any{
		"faces_count": 2,
		"model":       "buffalo_l",
		"faces": []map[string]any{
			{"face_index": 0, "dim": 3, "embedding": []float32{0.1, 0.2, 0.3}, "bbox": []float64{1, 2, 11, 12}, "det_score": 0.98},
			{"face_index": 1, "dim": 3, "embedding": []float32{0.4, 0.5, 0.6}, "bbox": []float64{20, 20, 30, 30}, "det_score": 0.75},
		},
	})
	defer server.Close()

	client := NewClient(server.URL+"/", 3)
	faces, err := client.DetectFaces(context.Background(), createTestImage(40, 40, color.White))
	if err != nil {
		t.Fatalf("DetectFaces failed: %v", err)
	}
	if len(faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(faces))
	}
	if faces[0].BBox[2] != 11 || faces[0].Score != 0.98 {
		t.Errorf("unexpected first face %+v", faces[0])
	}
	if faces[1].Embedding[2] != 0.6 {
		t.Errorf("unexpected second embedding %v", faces[1].Embedding)
	}
}

func TestDetectFaces_NoFaces(t *testing.T) {
	server := setupFaceServer(t, http.StatusOK, map[string]any{"faces_count": 0, "faces": []any{}})
	defer server.Close()

	faces, err := NewClient(server.URL, 128).DetectFaces(context.Background(), createTestImage(8, 8, color.Black))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("expected no faces, got %d", len(faces))
	}
}

func TestDetectFaces_DimensionMismatch(t *testing.T) {
	server := setupFaceServer(t, http.StatusOK, map[string]any{
		"faces": []map[string]any{{"embedding": []float32{1, 2}, "bbox": []float64{0, 0, 1, 1}}},
	})
	defer server.Close()

	_, err := NewClient(server.URL, 128).DetectFaces(context.Background(), createTestImage(8, 8, color.Black))
	if err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestDetectFaces_ServerError(t *testing.T) {
	server := setupFaceServer(t, http.StatusInternalServerError, map[string]string{"detail": "boom"})
	defer server.Close()

	_, err := NewClient(server.URL, 0).DetectFaces(context.Background(), createTestImage(8, 8, color.Black))
	if err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"short", []byte{0xFF}, "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectMIMEType(tt.data); got != tt.expected {
				t.Errorf("detectMIMEType = %q, want %q", got, tt.expected)
			}
		})
	}
}
