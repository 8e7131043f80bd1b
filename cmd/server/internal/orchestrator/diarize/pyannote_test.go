package diarize

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPyannoteDiarize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/diarize", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(10<<20))
		require.Equal(t, "2", r.FormValue("max_speakers"))

		w.Header().Set("Content-Type", "application/json")
		// out of order on purpose
		w.Write([]byte(`{
			"num_speakers": 2,
			"segments": [
				{"speaker": "SPEAKER_01", "start": 4.0, "end": 7.5},
				{"speaker": "SPEAKER_00", "start": 0.0, "end": 3.8}
			]
		}`))
	}))
	defer srv.Close()

	audioPath := filepath.Join(t.TempDir(), "call.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("RIFF fake"), 0o644))

	d := NewPyannote(srv.URL)
	resp, err := d.Diarize(context.Background(), Request{AudioPath: audioPath, MaxSpeakers: 2})
	require.NoError(t, err)

	require.Equal(t, 2, resp.NumSpeakers)
	require.Len(t, resp.Segments, 2)
	// sorted by start time
	require.Equal(t, "SPEAKER_00", resp.Segments[0].Speaker)
	require.Equal(t, "SPEAKER_01", resp.Segments[1].Speaker)
}

func TestPyannoteDiarizeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cuda out of memory", http.StatusInternalServerError)
	}))
	defer srv.Close()

	audioPath := filepath.Join(t.TempDir(), "call.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("RIFF fake"), 0o644))

	d := NewPyannote(srv.URL)
	_, err := d.Diarize(context.Background(), Request{AudioPath: audioPath})
	require.Error(t, err)
	require.Contains(t, err.Error(), "HTTP 500")
}
