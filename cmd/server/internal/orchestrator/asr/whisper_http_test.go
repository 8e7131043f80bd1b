package asr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWhisperHTTPTranscribe(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/transcribe", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(10<<20))
		gotModel = r.FormValue("model")
		require.Equal(t, "true", r.FormValue("word_timestamps"))

		_, _, err := r.FormFile("audio")
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"text": "hello there friend",
			"language": "en",
			"duration": 2.4,
			"words": [
				{"word": " hello", "start": 0.1, "end": 0.5, "probability": 0.97},
				{"word": "there", "start": 0.6, "end": 0.9},
				{"word": "  ", "start": 1.0, "end": 1.0},
				{"word": "friend", "start": 1.1, "end": 1.6, "probability": 0.88}
			]
		}`))
	}))
	defer srv.Close()

	wavPath := filepath.Join(t.TempDir(), "in.wav")
	require.NoError(t, os.WriteFile(wavPath, []byte("RIFF fake"), 0o644))

	tr := NewWhisperHTTP(srv.URL, "large-v3")
	res, err := tr.Transcribe(context.Background(), wavPath, nil)
	require.NoError(t, err)

	require.Equal(t, "large-v3", gotModel)
	require.Equal(t, "hello there friend", res.Text)
	require.Equal(t, "en", res.Language)
	require.InDelta(t, 2.4, res.Duration, 1e-9)

	// blank word dropped, whitespace trimmed, missing probability -> -1
	require.Len(t, res.Words, 3)
	require.Equal(t, "hello", res.Words[0].Text)
	require.InDelta(t, 0.97, res.Words[0].Confidence, 1e-9)
	require.Equal(t, float64(-1), res.Words[1].Confidence)
}

func TestWhisperHTTPTranscribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	wavPath := filepath.Join(t.TempDir(), "in.wav")
	require.NoError(t, os.WriteFile(wavPath, []byte("RIFF fake"), 0o644))

	tr := NewWhisperHTTP(srv.URL, "large-v3")
	_, err := tr.Transcribe(context.Background(), wavPath, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "HTTP 503")
}

func TestWhisperHTTPHealthCheck(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		if healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	tr := NewWhisperHTTP(srv.URL, "large-v3")

	ok, err := tr.HealthCheck(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	healthy = false
	ok, err = tr.HealthCheck(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}
