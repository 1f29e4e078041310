package tts_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aurelia-labs/voicekit/adapters/tts"
	"github.com/aurelia-labs/voicekit/domain/entities"
	"github.com/aurelia-labs/voicekit/domain/repositories"
)

var (
	_ repositories.StreamingTextToSpeech = (*tts.CartesiaTextToSpeech)(nil)
	_ repositories.TextToSpeech          = (*tts.PollyTextToSpeech)(nil)
	_ repositories.StreamingTextToSpeech = (*tts.MockTextToSpeech)(nil)
)

func TestCartesiaSynthesize(t *testing.T) {
	// 24000Hz mono, 250ms of PCM. Expect two 100ms frames plus a padded tail.
	pcm := make([]byte, 24000*2/4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts/bytes" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "test-key" {
			t.Errorf("Missing API key header")
		}
		if r.Header.Get("Cartesia-Version") != "2024-06-10" {
			t.Errorf("Missing version header")
		}

		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Invalid request body: %v", err)
		}
		if body["transcript"] != "hello there" {
			t.Errorf("Expected transcript in body, got %v", body["transcript"])
		}
		voice, _ := body["voice"].(map[string]interface{})
		if voice["mode"] != "id" {
			t.Errorf("Expected voice mode id, got %v", voice["mode"])
		}

		w.Write(pcm)
	}))
	defer server.Close()

	provider, err := tts.NewCartesiaTextToSpeech(tts.CartesiaConfig{
		APIKey:  "test-key",
		HTTPURL: server.URL,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCartesiaTextToSpeech failed: %v", err)
	}

	events, err := provider.Synthesize(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	var total int
	var sawFinal bool
	for ev := range events {
		total += len(ev.Frame.Data)
		if ev.IsFinal {
			sawFinal = true
		}
		if ev.Frame.SampleRate != 24000 {
			t.Errorf("Expected 24000Hz frames, got %d", ev.Frame.SampleRate)
		}
	}
	if total < len(pcm) {
		t.Errorf("Expected at least %d bytes of audio, got %d", len(pcm), total)
	}
	if !sawFinal {
		t.Error("Expected a final frame")
	}
}

func TestCartesiaSynthesizeStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer server.Close()

	provider, err := tts.NewCartesiaTextToSpeech(tts.CartesiaConfig{
		APIKey:  "bad-key",
		HTTPURL: server.URL,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCartesiaTextToSpeech failed: %v", err)
	}

	_, err = provider.Synthesize(context.Background(), "hello")
	if err == nil {
		t.Fatal("Expected error for 401 response")
	}
	statusErr, ok := repositories.AsStatusError(err)
	if !ok {
		t.Fatalf("Expected APIStatusError, got %T", err)
	}
	if statusErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", statusErr.StatusCode)
	}
}

func TestCartesiaMissingAPIKey(t *testing.T) {
	t.Setenv("CARTESIA_API_KEY", "")
	_, err := tts.NewCartesiaTextToSpeech(tts.CartesiaConfig{}, zap.NewNop())
	if err == nil {
		t.Fatal("Expected error when no API key is configured")
	}
}

func TestCartesiaStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	pcm := make([]byte, 24000*2/10) // one 100ms frame at 24kHz

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "test-key" {
			t.Errorf("Missing api_key query parameter")
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		// Echo one audio message and a done per completed context.
		for {
			var pkt map[string]interface{}
			if err := conn.ReadJSON(&pkt); err != nil {
				return
			}
			ctxID, _ := pkt["context_id"].(string)
			cont, _ := pkt["continue"].(bool)
			if cont {
				conn.WriteJSON(map[string]interface{}{
					"context_id": ctxID,
					"data":       base64.StdEncoding.EncodeToString(pcm),
				})
			} else {
				conn.WriteJSON(map[string]interface{}{
					"context_id": ctxID,
					"done":       true,
				})
			}
		}
	}))
	defer server.Close()

	provider, err := tts.NewCartesiaTextToSpeech(tts.CartesiaConfig{
		APIKey: "test-key",
		WSURL:  "ws" + strings.TrimPrefix(server.URL, "http"),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCartesiaTextToSpeech failed: %v", err)
	}

	stream, err := provider.NewStream(context.Background())
	if err != nil {
		t.Fatalf("NewStream failed: %v", err)
	}

	if err := stream.PushText("This is the first sentence of the reply. "); err != nil {
		t.Fatalf("PushText failed: %v", err)
	}
	if err := stream.EndInput(); err != nil {
		t.Fatalf("EndInput failed: %v", err)
	}

	var finals int
	var frames int
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				if frames == 0 {
					t.Error("Expected at least one audio frame")
				}
				if finals != 1 {
					t.Errorf("Expected exactly one final frame, got %d", finals)
				}
				return
			}
			frames++
			if ev.IsFinal {
				finals++
			}
			if ev.SegmentID == "" {
				t.Error("Expected segment id on streamed audio")
			}
		case <-timeout:
			t.Fatal("Timed out waiting for stream events")
		}
	}
}

func TestCartesiaStreamInterleavedSegments(t *testing.T) {
	upgrader := websocket.Upgrader{}
	frameBytes := 24000 * 2 / 10 // one 100ms frame at 24kHz

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		// Collect both contexts before replying so the responses can be
		// interleaved across them.
		var ctxIDs []string
		seen := map[string]bool{}
		for ended := 0; ended < 2; {
			var pkt map[string]interface{}
			if err := conn.ReadJSON(&pkt); err != nil {
				return
			}
			id, _ := pkt["context_id"].(string)
			if !seen[id] {
				seen[id] = true
				ctxIDs = append(ctxIDs, id)
			}
			if cont, _ := pkt["continue"].(bool); !cont {
				ended++
			}
		}

		first, second := ctxIDs[0], ctxIDs[1]
		fill := func(n int, v byte) string {
			return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{v}, n))
		}
		conn.WriteJSON(map[string]interface{}{"context_id": first, "data": fill(frameBytes, 0xAA)})
		conn.WriteJSON(map[string]interface{}{"context_id": second, "data": fill(frameBytes, 0xBB)})
		conn.WriteJSON(map[string]interface{}{"context_id": first, "data": fill(frameBytes/2, 0xAA)})
		conn.WriteJSON(map[string]interface{}{"context_id": first, "done": true})
		conn.WriteJSON(map[string]interface{}{"context_id": second, "data": fill(frameBytes/2, 0xBB)})
		conn.WriteJSON(map[string]interface{}{"context_id": second, "done": true})
	}))
	defer server.Close()

	provider, err := tts.NewCartesiaTextToSpeech(tts.CartesiaConfig{
		APIKey: "test-key",
		WSURL:  "ws" + strings.TrimPrefix(server.URL, "http"),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCartesiaTextToSpeech failed: %v", err)
	}

	stream, err := provider.NewStream(context.Background())
	if err != nil {
		t.Fatalf("NewStream failed: %v", err)
	}

	if err := stream.PushText("This is the first sentence of the reply. "); err != nil {
		t.Fatalf("PushText failed: %v", err)
	}
	if err := stream.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if err := stream.PushText("Here comes another sentence for the second segment. "); err != nil {
		t.Fatalf("PushText failed: %v", err)
	}
	if err := stream.EndInput(); err != nil {
		t.Fatalf("EndInput failed: %v", err)
	}

	finals := map[string]int{}
	frames := map[string]int{}
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				if len(frames) != 2 {
					t.Fatalf("Expected frames from 2 segments, got %d", len(frames))
				}
				for id, n := range finals {
					if n != 1 {
						t.Errorf("Segment %s has %d final frames, expected 1", id, n)
					}
				}
				for id := range frames {
					if finals[id] == 0 {
						t.Errorf("Segment %s ended without a final frame", id)
					}
				}
				return
			}
			if bytes.Contains(ev.Frame.Data, []byte{0xAA}) && bytes.Contains(ev.Frame.Data, []byte{0xBB}) {
				t.Errorf("Frame for segment %s mixes audio from two segments", ev.SegmentID)
			}
			frames[ev.SegmentID]++
			if ev.IsFinal {
				finals[ev.SegmentID]++
			}
		case <-timeout:
			t.Fatal("Timed out waiting for stream events")
		}
	}
}

func TestMockStreamSegments(t *testing.T) {
	provider := tts.NewMockTextToSpeech()
	stream, err := provider.NewStream(context.Background())
	if err != nil {
		t.Fatalf("NewStream failed: %v", err)
	}

	if err := stream.PushText("segment one"); err != nil {
		t.Fatalf("PushText failed: %v", err)
	}
	if err := stream.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if err := stream.PushText("segment two"); err != nil {
		t.Fatalf("PushText failed: %v", err)
	}
	if err := stream.EndInput(); err != nil {
		t.Fatalf("EndInput failed: %v", err)
	}

	segments := map[string]int{}
	for ev := range stream.Events() {
		if ev.IsFinal {
			segments[ev.SegmentID]++
		}
	}
	if len(segments) != 2 {
		t.Fatalf("Expected 2 segments, got %d", len(segments))
	}
	for id, finals := range segments {
		if finals != 1 {
			t.Errorf("Segment %s has %d final frames, expected 1", id, finals)
		}
	}
}

func TestMockSynthesizeDuration(t *testing.T) {
	provider := tts.NewMockTextToSpeech()
	events, err := provider.Synthesize(context.Background(), strings.Repeat("a", 25))
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	var frames []entities.SynthesizedAudio
	for ev := range events {
		frames = append(frames, ev)
	}
	if len(frames) != 3 {
		t.Fatalf("Expected 3 frames for 25 chars, got %d", len(frames))
	}
	if !frames[len(frames)-1].IsFinal {
		t.Error("Expected last frame to be final")
	}
}
