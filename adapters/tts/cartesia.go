package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aurelia-labs/voicekit/domain/entities"
	"github.com/aurelia-labs/voicekit/domain/repositories"
	"github.com/aurelia-labs/voicekit/internal/audio"
	"github.com/aurelia-labs/voicekit/internal/tokenize"
)

const (
	cartesiaAuthHeader    = "X-API-Key"
	cartesiaVersionHeader = "Cartesia-Version"
	cartesiaVersion       = "2024-06-10"

	cartesiaHTTPURL = "https://api.cartesia.ai"
	cartesiaWSURL   = "wss://api.cartesia.ai"

	cartesiaNumChannels   = 1
	cartesiaBufferedWords = 8

	cartesiaRequestTimeout = 30 * time.Second
)

// CartesiaConfig holds configuration for the Cartesia adapter.
type CartesiaConfig struct {
	// APIKey falls back to the CARTESIA_API_KEY environment variable.
	APIKey   string
	Model    string
	Language string
	// VoiceID selects a voice by id. VoiceEmbedding takes precedence when set.
	VoiceID        string
	VoiceEmbedding []float64
	// Speed and Emotion map to Cartesia's experimental voice controls.
	Speed      string
	Emotion    []string
	SampleRate int

	// HTTPURL and WSURL override the API endpoints, for tests.
	HTTPURL string
	WSURL   string
}

// CartesiaTextToSpeech synthesizes speech via the Cartesia API. Complete
// texts go through the bytes endpoint; incremental streams go through the
// websocket endpoint with sentence-sized segments.
type CartesiaTextToSpeech struct {
	opts       CartesiaConfig
	httpClient *http.Client
	logger     *zap.Logger
}

var _ repositories.StreamingTextToSpeech = (*CartesiaTextToSpeech)(nil)

func NewCartesiaTextToSpeech(cfg CartesiaConfig, logger *zap.Logger) (*CartesiaTextToSpeech, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("CARTESIA_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("CARTESIA_API_KEY must be set")
	}
	if cfg.Model == "" {
		cfg.Model = CartesiaModelSonic
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.VoiceID == "" && len(cfg.VoiceEmbedding) == 0 {
		cfg.VoiceID = CartesiaDefaultVoiceID
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 24000
	}
	if cfg.HTTPURL == "" {
		cfg.HTTPURL = cartesiaHTTPURL
	}
	if cfg.WSURL == "" {
		cfg.WSURL = cartesiaWSURL
	}

	return &CartesiaTextToSpeech{
		opts:       cfg,
		httpClient: &http.Client{Timeout: cartesiaRequestTimeout},
		logger:     logger,
	}, nil
}

func (c *CartesiaTextToSpeech) Capabilities() repositories.TTSCapabilities {
	return repositories.TTSCapabilities{
		Streaming:   true,
		SampleRate:  c.opts.SampleRate,
		NumChannels: cartesiaNumChannels,
	}
}

// requestPayload builds the base request body shared by both endpoints.
func (c *CartesiaTextToSpeech) requestPayload() map[string]interface{} {
	voice := map[string]interface{}{}
	if len(c.opts.VoiceEmbedding) > 0 {
		voice["mode"] = "embedding"
		voice["embedding"] = c.opts.VoiceEmbedding
	} else {
		voice["mode"] = "id"
		voice["id"] = c.opts.VoiceID
	}

	controls := map[string]interface{}{}
	if c.opts.Speed != "" {
		controls["speed"] = c.opts.Speed
	}
	if len(c.opts.Emotion) > 0 {
		controls["emotion"] = c.opts.Emotion
	}
	if len(controls) > 0 {
		voice["__experimental_controls"] = controls
	}

	return map[string]interface{}{
		"model_id": c.opts.Model,
		"voice":    voice,
		"output_format": map[string]interface{}{
			"container":   "raw",
			"encoding":    "pcm_s16le",
			"sample_rate": c.opts.SampleRate,
		},
		"language": c.opts.Language,
	}
}

// Synthesize converts a complete text using the bytes endpoint. Audio is
// delivered as fixed-duration frames on the returned channel.
func (c *CartesiaTextToSpeech) Synthesize(ctx context.Context, text string) (<-chan entities.SynthesizedAudio, error) {
	payload := c.requestPayload()
	payload["transcript"] = text

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.HTTPURL+"/tts/bytes", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(cartesiaAuthHeader, c.opts.APIKey)
	req.Header.Set(cartesiaVersionHeader, cartesiaVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repositories.ErrConnection, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &repositories.APIStatusError{
			StatusCode: resp.StatusCode,
			Message:    string(msg),
		}
	}

	requestID := uuid.NewString()
	out := make(chan entities.SynthesizedAudio, 16)

	go func() {
		defer close(out)
		defer resp.Body.Close()

		bstream := audio.NewByteStream(c.opts.SampleRate, cartesiaNumChannels, 0)
		buf := make([]byte, 8192)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				for _, frame := range bstream.Write(buf[:n]) {
					select {
					case out <- entities.SynthesizedAudio{RequestID: requestID, Frame: frame}:
					case <-ctx.Done():
						return
					}
				}
			}
			if readErr == io.EOF {
				break
			}
			if readErr != nil {
				c.logger.Error("Cartesia response read failed", zap.Error(readErr))
				return
			}
		}
		for _, frame := range bstream.Flush() {
			select {
			case out <- entities.SynthesizedAudio{RequestID: requestID, Frame: frame, IsFinal: true}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

// NewStream opens a websocket synthesis session.
func (c *CartesiaTextToSpeech) NewStream(ctx context.Context) (repositories.SynthesizeStream, error) {
	url := fmt.Sprintf("%s/tts/websocket?api_key=%s&cartesia_version=%s",
		c.opts.WSURL, c.opts.APIKey, cartesiaVersion)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, &repositories.APIStatusError{StatusCode: resp.StatusCode, Message: err.Error()}
		}
		return nil, fmt.Errorf("%w: %v", repositories.ErrConnection, err)
	}

	s := &cartesiaStream{
		ctx:       ctx,
		tts:       c,
		conn:      conn,
		events:    make(chan entities.SynthesizedAudio, 32),
		segments:  make(map[string]bool),
		tokenizer: tokenize.SentenceTokenizer{MinSentenceLen: cartesiaBufferedWords},
		logger:    c.logger,
	}
	go s.receive()

	return s, nil
}

// cartesiaStream multiplexes sentence-sized segments over one websocket
// connection. Each Flush closes the current context_id; the server replies
// with a done message per segment.
type cartesiaStream struct {
	ctx  context.Context
	tts  *CartesiaTextToSpeech
	conn *websocket.Conn

	events chan entities.SynthesizedAudio

	mu         sync.Mutex
	sentences  *tokenize.SentenceStream
	segmentID  string
	segments   map[string]bool // segmentID -> end packet sent
	inputEnded bool
	closed     bool

	tokenizer tokenize.SentenceTokenizer
	logger    *zap.Logger
}

func (s *cartesiaStream) PushText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inputEnded {
		return fmt.Errorf("cannot push text after EndInput")
	}

	if s.sentences == nil {
		s.sentences = s.tokenizer.Stream()
		s.segmentID = uuid.NewString()
		s.segments[s.segmentID] = false
	}
	s.sentences.PushText(text)
	return s.sendReadyLocked()
}

// Flush closes the current segment. The next PushText starts a new one.
func (s *cartesiaStream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *cartesiaStream) flushLocked() error {
	if s.sentences == nil {
		return nil
	}
	s.sentences.EndInput()
	if err := s.sendReadyLocked(); err != nil {
		return err
	}

	end := s.tts.requestPayload()
	end["context_id"] = s.segmentID
	end["transcript"] = " "
	end["continue"] = false
	if err := s.conn.WriteJSON(end); err != nil {
		return fmt.Errorf("failed to end segment: %w", err)
	}
	s.segments[s.segmentID] = true
	s.sentences = nil
	s.segmentID = ""
	return nil
}

func (s *cartesiaStream) EndInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inputEnded {
		return nil
	}
	if err := s.flushLocked(); err != nil {
		return err
	}
	s.inputEnded = true
	if s.pendingLocked() == 0 {
		s.closeLocked()
	}
	return nil
}

func (s *cartesiaStream) Events() <-chan entities.SynthesizedAudio {
	return s.events
}

func (s *cartesiaStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputEnded = true
	s.closeLocked()
	return nil
}

func (s *cartesiaStream) sendReadyLocked() error {
	for {
		sentence, ok := s.sentences.Next()
		if !ok {
			return nil
		}
		pkt := s.tts.requestPayload()
		pkt["context_id"] = s.segmentID
		pkt["transcript"] = sentence + " "
		pkt["continue"] = true
		if err := s.conn.WriteJSON(pkt); err != nil {
			return fmt.Errorf("failed to send transcript: %w", err)
		}
	}
}

// pendingLocked counts segments whose done message has not arrived yet.
func (s *cartesiaStream) pendingLocked() int {
	return len(s.segments)
}

func (s *cartesiaStream) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	s.conn.Close()
}

type cartesiaServerMessage struct {
	ContextID string `json:"context_id"`
	Data      string `json:"data"`
	Done      bool   `json:"done"`
	Error     string `json:"error"`
}

// segmentBuffer assembles one context's audio. The newest frame is held
// back so it can carry the final flag when the done message arrives.
type segmentBuffer struct {
	bstream *audio.ByteStream
	last    *entities.AudioFrame
}

func (s *cartesiaStream) receive() {
	defer close(s.events)

	// The server may interleave messages for different context_ids, so
	// each segment keeps its own buffer.
	buffers := map[string]*segmentBuffer{}
	buffer := func(id string) *segmentBuffer {
		b, ok := buffers[id]
		if !ok {
			b = &segmentBuffer{bstream: audio.NewByteStream(s.tts.opts.SampleRate, cartesiaNumChannels, 0)}
			buffers[id] = b
		}
		return b
	}

	sendLast := func(id string, b *segmentBuffer, isFinal bool) bool {
		if b.last == nil {
			return true
		}
		ev := entities.SynthesizedAudio{
			RequestID: id,
			SegmentID: id,
			Frame:     *b.last,
			IsFinal:   isFinal,
		}
		b.last = nil
		select {
		case s.events <- ev:
			return true
		case <-s.ctx.Done():
			return false
		}
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			done := s.inputEnded && s.pendingLocked() == 0
			s.mu.Unlock()
			if !done && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.logger.Error("Cartesia connection closed unexpectedly", zap.Error(err))
			}
			return
		}

		var msg cartesiaServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("Unexpected Cartesia message", zap.ByteString("data", data))
			continue
		}
		if msg.Error != "" {
			s.logger.Error("Cartesia synthesis error", zap.String("error", msg.Error))
			continue
		}

		switch {
		case msg.Data != "":
			pcm, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				s.logger.Warn("Invalid audio payload", zap.Error(err))
				continue
			}
			b := buffer(msg.ContextID)
			for _, frame := range b.bstream.Write(pcm) {
				if !sendLast(msg.ContextID, b, false) {
					return
				}
				f := frame
				b.last = &f
			}
		case msg.Done:
			b := buffer(msg.ContextID)
			for _, frame := range b.bstream.Flush() {
				if !sendLast(msg.ContextID, b, false) {
					return
				}
				f := frame
				b.last = &f
			}
			// The held-back tail carries the final flag; a segment that
			// produced no audio ends without one.
			if !sendLast(msg.ContextID, b, true) {
				return
			}
			delete(buffers, msg.ContextID)

			s.mu.Lock()
			delete(s.segments, msg.ContextID)
			finished := s.inputEnded && s.pendingLocked() == 0
			if finished {
				s.closeLocked()
			}
			s.mu.Unlock()
			if finished {
				return
			}
		default:
			s.logger.Warn("Unexpected Cartesia message", zap.ByteString("data", data))
		}
	}
}
