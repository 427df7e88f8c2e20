package speaker

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGain(t *testing.T) {
	if g, silent := gain(1); g != 0 || silent {
		t.Fatalf("Unexpected gain at full volume: %v %v", g, silent)
	}
	if g, silent := gain(0.5); g != -1 || silent {
		t.Fatalf("Unexpected gain at half volume: %v %v", g, silent)
	}
	if _, silent := gain(0); !silent {
		t.Fatalf("Zero volume is not silent")
	}
}

func TestDownload(t *testing.T) {
	payload := []byte("ID3 not really an mp3")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stream.mp3" {
			http.NotFound(w, r)
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	data, err := download(context.Background(), srv.Client(), srv.URL+"/stream.mp3")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatalf("Unexpected data: %q", data)
	}
	if _, err := download(context.Background(), srv.Client(), srv.URL+"/missing.mp3"); err == nil {
		t.Fatalf("Missing stream did not fail")
	}
}
