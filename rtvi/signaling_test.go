package rtvi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendOffer(t *testing.T) {
	var got Offer
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/offer" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode offer: %v", err)
		}
		json.NewEncoder(w).Encode(Answer{SDP: "v=0 answer", Type: "answer", PCID: "pc-1"})
	}))
	defer srv.Close()

	answer, err := SendOffer(context.Background(), srv.Client(), srv.URL+"/api/offer", Offer{
		SDP:  "v=0 offer",
		Type: "offer",
	})
	if err != nil {
		t.Fatalf("SendOffer: %v", err)
	}

	if got.SDP != "v=0 offer" || got.Type != "offer" || got.PCID != "" || got.RestartPC {
		t.Errorf("server received %+v", got)
	}
	if answer.PCID != "pc-1" || answer.SDP != "v=0 answer" {
		t.Errorf("answer = %+v", answer)
	}
}

func TestSendOfferRenegotiation(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		w.Write([]byte(`{"sdp":"v=0","type":"answer","pc_id":"pc-1"}`))
	}))
	defer srv.Close()

	_, err := SendOffer(context.Background(), srv.Client(), srv.URL, Offer{
		SDP: "v=0", Type: "offer", PCID: "pc-1", RestartPC: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if raw["pc_id"] != "pc-1" || raw["restart_pc"] != true {
		t.Errorf("body = %v", raw)
	}
}

func TestSendOfferErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"server error", http.StatusInternalServerError, "boom", "status 500"},
		{"bad json", http.StatusOK, "{", "decode answer"},
		{"missing sdp", http.StatusOK, `{"type":"answer"}`, "no sdp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := SendOffer(context.Background(), srv.Client(), srv.URL, Offer{SDP: "v=0", Type: "offer"})
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("err = %v, want containing %q", err, tt.wantMsg)
			}
		})
	}
}
