package preview

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWHEPExchange(t *testing.T) {
	const answer = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/cam1/whep", r.URL.Path)
		assert.Equal(t, "application/sdp", r.Header.Get("Content-Type"))
		offer, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(offer), "v=0")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(answer))
	}))
	defer srv.Close()

	tr := NewWHEPTransport(srv.URL+"/%s/whep", time.Second)
	got, err := tr.Exchange(context.Background(), "cam1", "v=0\r\nfake offer\r\n")
	require.NoError(t, err)
	assert.Equal(t, answer, got)
}

func TestWHEPExchangeNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such stream", http.StatusNotFound)
	}))
	defer srv.Close()

	tr := NewWHEPTransport(srv.URL+"/%s/whep", time.Second)
	_, err := tr.Exchange(context.Background(), "ghost", "v=0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "no such stream")
}

func TestWHEPExchangeEmptyAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewWHEPTransport(srv.URL+"/%s/whep", time.Second)
	_, err := tr.Exchange(context.Background(), "cam1", "v=0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty answer")
}

func TestWHEPExchangeUnreachable(t *testing.T) {
	tr := NewWHEPTransport("http://127.0.0.1:1/%s/whep", 200*time.Millisecond)
	_, err := tr.Exchange(context.Background(), "cam1", "v=0")
	require.Error(t, err)
}
