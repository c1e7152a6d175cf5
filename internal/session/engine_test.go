package session

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/robilabs/robi/internal/config"
	"github.com/robilabs/robi/internal/history"
	"github.com/robilabs/robi/internal/llm"
	"github.com/robilabs/robi/internal/storage/sqlite"
	"github.com/robilabs/robi/pkg/types"
)

type frame struct {
	kind FrameType
	data []byte
}

// fakeConn feeds scripted inbound frames and records every outbound
// message as a decoded JSON object.
type fakeConn struct {
	in  chan frame
	out []map[string]any
}

func newFakeConn(frames ...frame) *fakeConn {
	c := &fakeConn{in: make(chan frame, len(frames))}
	for _, f := range frames {
		c.in <- f
	}
	close(c.in)
	return c
}

func (c *fakeConn) Read(ctx context.Context) (FrameType, []byte, error) {
	select {
	case f, ok := <-c.in:
		if !ok {
			return FrameText, nil, io.EOF
		}
		return f.kind, f.data, nil
	case <-ctx.Done():
		return FrameText, nil, ctx.Err()
	}
}

func (c *fakeConn) WriteJSON(_ context.Context, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	c.out = append(c.out, m)
	return nil
}

func (c *fakeConn) byType(typ string) []map[string]any {
	var out []map[string]any
	for _, m := range c.out {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func textFrame(v any) frame {
	raw, _ := json.Marshal(v)
	return frame{kind: FrameText, data: raw}
}

// scriptedLLM returns a fixed chunk sequence per stream and remembers the
// last request it was given.
type scriptedLLM struct {
	chunks   []string
	err      error
	complete string
	lastReq  *llm.Request
}

func (s *scriptedLLM) Stream(_ context.Context, req *llm.Request) (llm.Stream, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &scriptedStream{chunks: s.chunks}, nil
}

func (s *scriptedLLM) Complete(_ context.Context, _ *llm.Request) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.complete, nil
}

type scriptedStream struct {
	chunks []string
	pos    int
}

func (s *scriptedStream) Next() (string, error) {
	if s.pos >= len(s.chunks) {
		return "", io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *scriptedStream) Close() {}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.WebSocket.AuthTimeout = time.Second
	cfg.WebSocket.MessagesPerSec = 100
	cfg.WebSocket.MessageBurst = 100
	cfg.Security.APIKey = "secret"
	return cfg
}

func newTestEngine(t *testing.T, provider llm.Provider) (*Engine, *sqlite.Store, *TaskRunner) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tasks := NewTaskRunner(zap.NewNop())
	hist := history.NewService(store, provider, 20, 6, zap.NewNop())
	eng := NewEngine(testConfig(), store, provider, hist, nil, tasks, zap.NewNop())
	return eng, store, tasks
}

func authFrame() frame {
	return textFrame(map[string]string{"type": "auth", "api_key": "secret"})
}

func TestHandshakeSuccess(t *testing.T) {
	eng, _, tasks := newTestEngine(t, &scriptedLLM{})
	conn := newFakeConn(authFrame())

	require.NoError(t, eng.Run(context.Background(), conn))
	tasks.Wait()

	oks := conn.byType("auth_ok")
	require.Len(t, oks, 1)
	require.NotEmpty(t, oks[0]["session_id"])
}

func TestHandshakeRejectsBadKey(t *testing.T) {
	eng, _, _ := newTestEngine(t, &scriptedLLM{})
	conn := newFakeConn(textFrame(map[string]string{"type": "auth", "api_key": "wrong"}))

	require.Error(t, eng.Run(context.Background(), conn))

	errs := conn.byType("error")
	require.Len(t, errs, 1)
	require.Equal(t, "AUTH_FAILED", errs[0]["error_code"])
	require.Equal(t, false, errs[0]["recoverable"])
}

func TestHandshakeRejectsNonAuthFirstMessage(t *testing.T) {
	eng, _, _ := newTestEngine(t, &scriptedLLM{})
	conn := newFakeConn(textFrame(map[string]string{"type": "text", "content": "hola"}))

	require.Error(t, eng.Run(context.Background(), conn))
	errs := conn.byType("error")
	require.Len(t, errs, 1)
	require.Equal(t, "AUTH_FAILED", errs[0]["error_code"])
}

func TestTextCycleEmitsOrderedFrames(t *testing.T) {
	provider := &scriptedLLM{chunks: []string{"[emotion:happy][emojis:1F600]Hola", " amigo"}}
	eng, _, tasks := newTestEngine(t, provider)
	conn := newFakeConn(
		authFrame(),
		textFrame(map[string]string{"type": "text", "content": "hola", "request_id": "r1"}),
	)

	require.NoError(t, eng.Run(context.Background(), conn))
	tasks.Wait()

	emotions := conn.byType("emotion")
	require.Len(t, emotions, 1)
	require.Equal(t, "happy", emotions[0]["emotion"])

	var body string
	for _, chunk := range conn.byType("text_chunk") {
		body += chunk["text"].(string)
	}
	require.Equal(t, "Hola amigo", body)

	metas := conn.byType("response_meta")
	require.Len(t, metas, 1)
	require.Equal(t, "Hola amigo", metas[0]["response_text"])
	expr := metas[0]["expression"].(map[string]any)
	require.Contains(t, expr["emojis"], "1F600")

	ends := conn.byType("stream_end")
	require.Len(t, ends, 1)

	// emotion must precede the first text chunk, meta must precede stream_end
	order := map[string]int{}
	for i, m := range conn.out {
		typ := m["type"].(string)
		if _, seen := order[typ]; !seen {
			order[typ] = i
		}
	}
	require.Less(t, order["emotion"], order["text_chunk"])
	require.Less(t, order["text_chunk"], order["response_meta"])
	require.Less(t, order["response_meta"], order["stream_end"])
}

func TestEmptyAudioIsRecoverable(t *testing.T) {
	eng, _, _ := newTestEngine(t, &scriptedLLM{})
	conn := newFakeConn(
		authFrame(),
		textFrame(map[string]string{"type": "audio_end"}),
	)

	require.NoError(t, eng.Run(context.Background(), conn))

	errs := conn.byType("error")
	require.Len(t, errs, 1)
	require.Equal(t, "EMPTY_AUDIO", errs[0]["error_code"])
	require.Equal(t, true, errs[0]["recoverable"])
}

func TestAudioCycleConsumesBufferedFrames(t *testing.T) {
	provider := &scriptedLLM{chunks: []string{"[emotion:neutral]Te escuché"}}
	eng, _, tasks := newTestEngine(t, provider)
	conn := newFakeConn(
		authFrame(),
		frame{kind: FrameBinary, data: []byte{0x01, 0x02}},
		frame{kind: FrameBinary, data: []byte{0x03}},
		textFrame(map[string]string{"type": "audio_end"}),
		// Buffer was drained, so a second audio_end has nothing to send.
		textFrame(map[string]string{"type": "audio_end"}),
	)

	require.NoError(t, eng.Run(context.Background(), conn))
	tasks.Wait()

	require.Len(t, conn.byType("response_meta"), 1)
	errs := conn.byType("error")
	require.Len(t, errs, 1)
	require.Equal(t, "EMPTY_AUDIO", errs[0]["error_code"])
}

func TestUnsupportedTypeIsRecoverable(t *testing.T) {
	eng, _, _ := newTestEngine(t, &scriptedLLM{})
	conn := newFakeConn(
		authFrame(),
		textFrame(map[string]string{"type": "telepathy"}),
	)

	require.NoError(t, eng.Run(context.Background(), conn))

	errs := conn.byType("error")
	require.Len(t, errs, 1)
	require.Equal(t, "UNSUPPORTED_TYPE", errs[0]["error_code"])
	require.Equal(t, true, errs[0]["recoverable"])
}

func TestRateLimiting(t *testing.T) {
	provider := &scriptedLLM{chunks: []string{"[emotion:neutral]ok"}}
	eng, _, tasks := newTestEngine(t, provider)
	eng.cfg.WebSocket.MessagesPerSec = 0.01
	eng.cfg.WebSocket.MessageBurst = 1
	conn := newFakeConn(
		authFrame(),
		textFrame(map[string]string{"type": "text", "content": "uno"}),
		textFrame(map[string]string{"type": "text", "content": "dos"}),
	)

	require.NoError(t, eng.Run(context.Background(), conn))
	tasks.Wait()

	errs := conn.byType("error")
	require.Len(t, errs, 1)
	require.Equal(t, "RATE_LIMITED", errs[0]["error_code"])
}

func TestDirectivesPersistInBackground(t *testing.T) {
	provider := &scriptedLLM{chunks: []string{
		"[emotion:happy]Encantado, Ana[memory:general:le gusta el té][person_name:Ana]",
	}}
	eng, store, tasks := newTestEngine(t, provider)
	conn := newFakeConn(
		authFrame(),
		textFrame(map[string]string{"type": "interaction_start", "person_id": "p1"}),
		textFrame(map[string]string{"type": "text", "content": "me llamo Ana y me gusta el té"}),
	)

	require.NoError(t, eng.Run(context.Background(), conn))
	tasks.Wait()

	ctx := context.Background()
	person, err := store.GetPerson(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "Ana", person.Name)

	mems, err := store.MemoriesForPerson(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	require.Equal(t, "le gusta el té", mems[0].Content)

	metas := conn.byType("response_meta")
	require.Len(t, metas, 1)
	require.Equal(t, "Encantado, Ana", metas[0]["response_text"])
	require.Equal(t, "Ana", metas[0]["person_name"])
}

func TestPersonDetectedGreetsAndPersistsInBackground(t *testing.T) {
	eng, store, tasks := newTestEngine(t, &scriptedLLM{})
	ctx := context.Background()
	_, err := store.UpsertPerson(ctx, "p1", "Ana")
	require.NoError(t, err)

	conn := newFakeConn(
		authFrame(),
		textFrame(map[string]any{"type": "person_detected", "person_id": "p1", "known": true, "confidence": 0.9}),
	)

	require.NoError(t, eng.Run(context.Background(), conn))
	tasks.Wait()

	emotions := conn.byType("emotion")
	require.Len(t, emotions, 1)
	require.Equal(t, "greeting", emotions[0]["emotion"])
	require.Equal(t, "Ana", emotions[0]["person_identified"])

	person, err := store.GetPerson(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 1, person.InteractionCount)
}

func TestPromptCarriesCombinedMemoryBundle(t *testing.T) {
	provider := &scriptedLLM{chunks: []string{"[emotion:neutral]Claro"}}
	eng, store, tasks := newTestEngine(t, provider)

	ctx := context.Background()
	for _, m := range []*types.Memory{
		{Type: types.MemoryGeneral, Content: "la casa tiene dos plantas"},
		{PersonID: "p1", Type: types.MemoryPersonFact, Content: "le gusta el ajedrez"},
		{PersonID: "p2", Type: types.MemoryZoneInfo, Content: "la despensa está junto a la cocina"},
		{PersonID: "p2", Type: types.MemoryPersonFact, Content: "prefiere el café solo"},
	} {
		_, err := store.SaveMemory(ctx, m)
		require.NoError(t, err)
	}

	conn := newFakeConn(
		authFrame(),
		textFrame(map[string]string{"type": "interaction_start", "person_id": "p1"}),
		textFrame(map[string]string{"type": "text", "content": "¿qué sabes de la casa?"}),
	)

	require.NoError(t, eng.Run(context.Background(), conn))
	tasks.Wait()

	require.NotNil(t, provider.lastReq)
	system := provider.lastReq.System
	require.Contains(t, system, "la casa tiene dos plantas")
	require.Contains(t, system, "le gusta el ajedrez")
	require.Contains(t, system, "la despensa está junto a la cocina")
	require.NotContains(t, system, "prefiere el café solo")
}

func TestZoneUpdatesLinkAndSetCurrent(t *testing.T) {
	eng, store, tasks := newTestEngine(t, &scriptedLLM{})
	conn := newFakeConn(
		authFrame(),
		textFrame(map[string]string{"type": "zone_update", "zone_name": "cocina", "category": "kitchen", "action": "enter"}),
		textFrame(map[string]string{"type": "zone_update", "zone_name": "salón", "category": "living", "action": "enter"}),
	)

	require.NoError(t, eng.Run(context.Background(), conn))
	tasks.Wait()

	ctx := context.Background()
	current, err := store.CurrentZone(ctx)
	require.NoError(t, err)
	require.Equal(t, "salón", current.Name)

	path, err := store.FindPath(ctx, "cocina", "salón")
	require.NoError(t, err)
	require.Equal(t, []string{"cocina", "salón"}, path)
}

func TestExploreModePlansRouteAndSpeech(t *testing.T) {
	provider := &scriptedLLM{complete: "Voy al salón [memory:general:me gusta explorar]"}
	eng, store, tasks := newTestEngine(t, provider)

	ctx := context.Background()
	for _, name := range []string{"cocina", "salón"} {
		_, err := store.UpsertZone(ctx, &types.Zone{Name: name, Accessible: true})
		require.NoError(t, err)
	}
	require.NoError(t, store.SetCurrentZone(ctx, "cocina"))
	cocina, err := store.GetZoneByName(ctx, "cocina")
	require.NoError(t, err)
	salon, err := store.GetZoneByName(ctx, "salón")
	require.NoError(t, err)
	require.NoError(t, store.LinkZones(ctx, &types.ZonePath{FromZoneID: cocina.ID, ToZoneID: salon.ID}))

	conn := newFakeConn(
		authFrame(),
		textFrame(map[string]string{"type": "explore_mode"}),
	)

	require.NoError(t, eng.Run(context.Background(), conn))
	tasks.Wait()

	frames := conn.byType("exploration_actions")
	require.Len(t, frames, 1)
	// Directive tags never reach the spoken phrase.
	require.Equal(t, "Voy al salón", frames[0]["exploration_speech"])
	require.NotEmpty(t, frames[0]["actions"])
}

func TestFaceScanModeReturnsSweep(t *testing.T) {
	eng, _, _ := newTestEngine(t, &scriptedLLM{})
	conn := newFakeConn(
		authFrame(),
		textFrame(map[string]string{"type": "face_scan_mode"}),
	)

	require.NoError(t, eng.Run(context.Background(), conn))

	frames := conn.byType("face_scan_actions")
	require.Len(t, frames, 1)
	require.NotEmpty(t, frames[0]["actions"])
}

func TestStreamFailureReportsLLMUnavailable(t *testing.T) {
	eng, _, _ := newTestEngine(t, &scriptedLLM{err: io.ErrUnexpectedEOF})
	conn := newFakeConn(
		authFrame(),
		textFrame(map[string]string{"type": "text", "content": "hola"}),
	)

	require.NoError(t, eng.Run(context.Background(), conn))

	errs := conn.byType("error")
	require.Len(t, errs, 1)
	require.Equal(t, "LLM_UNAVAILABLE", errs[0]["error_code"])
	require.Equal(t, true, errs[0]["recoverable"])
}

func TestCaptureRequestEmittedOnPhotoIntent(t *testing.T) {
	provider := &scriptedLLM{chunks: []string{"[emotion:excited]¡Claro! Voy a tomar una foto ahora mismo"}}
	eng, _, tasks := newTestEngine(t, provider)
	conn := newFakeConn(
		authFrame(),
		textFrame(map[string]string{"type": "text", "content": "sácame una foto"}),
	)

	require.NoError(t, eng.Run(context.Background(), conn))
	tasks.Wait()

	caps := conn.byType("capture_request")
	require.Len(t, caps, 1)
	require.Equal(t, "photo", caps[0]["capture_type"])

	// capture_request arrives after the text chunks and before response_meta
	order := map[string]int{}
	for i, m := range conn.out {
		typ := m["type"].(string)
		if _, seen := order[typ]; !seen {
			order[typ] = i
		}
	}
	require.Less(t, order["text_chunk"], order["capture_request"])
	require.Less(t, order["capture_request"], order["response_meta"])
}
