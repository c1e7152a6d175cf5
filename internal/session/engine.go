// Package session implements the duplex conversation protocol: the auth
// handshake, the per-connection dispatch loop, and the response cycle that
// streams model output through the tag decoder back to the robot.
package session

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/robilabs/robi/internal/config"
	"github.com/robilabs/robi/internal/history"
	"github.com/robilabs/robi/internal/llm"
	"github.com/robilabs/robi/internal/media"
	"github.com/robilabs/robi/internal/motion"
	"github.com/robilabs/robi/internal/protocol"
	"github.com/robilabs/robi/internal/storage"
	"github.com/robilabs/robi/internal/tags"
	"github.com/robilabs/robi/pkg/types"
)

// Engine drives one websocket connection through its lifecycle.
type Engine struct {
	cfg     *config.Config
	store   storage.Store
	llm     llm.Provider
	history *history.Service
	media   *media.Store
	tasks   *TaskRunner
	logger  *zap.Logger
}

// NewEngine wires the engine's collaborators together.
func NewEngine(cfg *config.Config, store storage.Store, provider llm.Provider, hist *history.Service, mediaStore *media.Store, tasks *TaskRunner, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tasks == nil {
		tasks = NewTaskRunner(logger)
	}
	return &Engine{
		cfg:     cfg,
		store:   store,
		llm:     provider,
		history: hist,
		media:   mediaStore,
		tasks:   tasks,
		logger:  logger,
	}
}

// state is the per-connection session state.
type state struct {
	sessionID  string
	deviceID   string
	personID   string
	personName string
	audioBuf   []byte

	// mu guards zone, which background zone tasks read after the dispatch
	// loop has moved on.
	mu   sync.Mutex
	zone string
}

func (s *state) currentZone() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zone
}

func (s *state) setCurrentZone(name string) {
	s.mu.Lock()
	s.zone = name
	s.mu.Unlock()
}

// Run owns the connection until the client disconnects or the context
// ends. A failed handshake returns an error; a normal disconnect does not.
func (e *Engine) Run(ctx context.Context, conn Conn) error {
	st, err := e.authenticate(ctx, conn)
	if err != nil {
		return err
	}

	log := e.logger.With(zap.String("session_id", st.sessionID))
	log.Info("session started", zap.String("device_id", st.deviceID))

	limiter := rate.NewLimiter(rate.Limit(e.cfg.WebSocket.MessagesPerSec), e.cfg.WebSocket.MessageBurst)

	for {
		frameType, data, err := conn.Read(ctx)
		if err != nil {
			log.Info("session closed", zap.Error(err))
			return nil
		}

		if frameType == FrameBinary {
			// Binary frames are audio chunks accumulated until audio_end.
			st.audioBuf = append(st.audioBuf, data...)
			continue
		}

		if !limiter.Allow() {
			if err := conn.WriteJSON(ctx, protocol.NewError("", protocol.CodeRateLimited,
				"too many messages, slow down", true)); err != nil {
				return err
			}
			continue
		}

		msg, err := protocol.ParseClient(data)
		if err != nil {
			if err := conn.WriteJSON(ctx, protocol.NewError("", protocol.CodeInvalidMessage,
				"message could not be parsed", true)); err != nil {
				return err
			}
			continue
		}

		if err := e.dispatch(ctx, conn, st, msg); err != nil {
			return err
		}
	}
}

// authenticate runs the handshake. The first frame must be an auth message
// carrying the shared API key, and it must arrive before the configured
// timeout.
func (e *Engine) authenticate(ctx context.Context, conn Conn) (*state, error) {
	authCtx, cancel := context.WithTimeout(ctx, e.cfg.WebSocket.AuthTimeout)
	defer cancel()

	_, data, err := conn.Read(authCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			_ = conn.WriteJSON(ctx, protocol.NewError("", protocol.CodeAuthTimeout,
				"authentication timed out", false))
		}
		return nil, fmt.Errorf("session: handshake read failed: %w", err)
	}

	msg, err := protocol.ParseClient(data)
	if err != nil || msg.Type != protocol.TypeAuth {
		_ = conn.WriteJSON(ctx, protocol.NewError("", protocol.CodeAuthFailed,
			"expected auth message", false))
		return nil, fmt.Errorf("session: first message was not auth")
	}

	if subtle.ConstantTimeCompare([]byte(msg.APIKey), []byte(e.cfg.Security.APIKey)) != 1 {
		_ = conn.WriteJSON(ctx, protocol.NewError("", protocol.CodeAuthFailed,
			"invalid api key", false))
		return nil, fmt.Errorf("session: invalid api key")
	}

	st := &state{sessionID: protocol.NewSessionID(), deviceID: msg.DeviceID}
	if err := conn.WriteJSON(ctx, protocol.NewAuthOk(st.sessionID)); err != nil {
		return nil, fmt.Errorf("session: failed to confirm auth: %w", err)
	}
	return st, nil
}

func (e *Engine) dispatch(ctx context.Context, conn Conn, st *state, msg *protocol.ClientMessage) error {
	requestID := msg.RequestID
	if requestID == "" {
		requestID = protocol.NewSessionID()
	}

	switch msg.Type {
	case protocol.TypeInteractionStart:
		return e.handleInteractionStart(ctx, conn, st, requestID, msg)

	case protocol.TypeText:
		text := msg.Content
		if text == "" {
			text = msg.Text
		}
		if text == "" {
			return conn.WriteJSON(ctx, protocol.NewError(requestID, protocol.CodeInvalidMessage,
				"text message has no content", true))
		}
		return e.respond(ctx, conn, st, requestID, text, nil)

	case protocol.TypeAudioEnd:
		return e.handleAudioEnd(ctx, conn, st, requestID, msg)

	case protocol.TypeImage:
		return e.handleStill(ctx, conn, st, requestID, msg, media.KindImage)

	case protocol.TypeVideo:
		return e.handleStill(ctx, conn, st, requestID, msg, media.KindVideo)

	case protocol.TypeMultimodal:
		return e.handleMultimodal(ctx, conn, st, requestID, msg)

	case protocol.TypeExploreMode:
		return e.handleExplore(ctx, conn, st, requestID)

	case protocol.TypeFaceScanMode:
		return conn.WriteJSON(ctx, protocol.NewFaceScanActions(requestID,
			[]motion.Sequence{motion.FaceScanSequence()}))

	case protocol.TypeZoneUpdate:
		return e.handleZoneUpdate(ctx, conn, st, requestID, msg)

	case protocol.TypePersonDetected:
		return e.handlePersonDetected(ctx, conn, st, requestID, msg)

	default:
		return conn.WriteJSON(ctx, protocol.NewError(requestID, protocol.CodeUnsupportedType,
			fmt.Sprintf("unsupported message type %q", msg.Type), true))
	}
}

func (e *Engine) handleInteractionStart(ctx context.Context, conn Conn, st *state, requestID string, msg *protocol.ClientMessage) error {
	if msg.PersonID == "" {
		return conn.WriteJSON(ctx, protocol.NewError(requestID, protocol.CodeInvalidMessage,
			"interaction_start requires person_id", true))
	}

	st.personID = msg.PersonID
	st.audioBuf = nil

	person, err := e.store.UpsertPerson(ctx, msg.PersonID, "")
	if err != nil {
		e.logger.Warn("failed to register person", zap.String("person_id", msg.PersonID), zap.Error(err))
	} else {
		st.personName = person.Name
	}

	e.tasks.Go("touch_interaction", func(ctx context.Context) error {
		return e.store.TouchInteraction(ctx, msg.PersonID)
	})

	if msg.FaceEmbedding != "" {
		raw, err := base64.StdEncoding.DecodeString(msg.FaceEmbedding)
		if err != nil || len(raw) == 0 {
			e.logger.Warn("discarding undecodable face embedding", zap.String("person_id", msg.PersonID))
		} else {
			e.tasks.Go("save_face_embedding", func(ctx context.Context) error {
				return e.store.AddFaceEmbedding(ctx, &types.FaceEmbedding{
					PersonID:  msg.PersonID,
					Embedding: raw,
				})
			})
		}
	}

	if st.personName != "" {
		return conn.WriteJSON(ctx, protocol.NewEmotionWithPerson(requestID, "greeting", st.personName, msg.Confidence))
	}
	return conn.WriteJSON(ctx, protocol.NewEmotion(requestID, "greeting"))
}

func (e *Engine) handleAudioEnd(ctx context.Context, conn Conn, st *state, requestID string, msg *protocol.ClientMessage) error {
	if len(st.audioBuf) == 0 {
		return conn.WriteJSON(ctx, protocol.NewError(requestID, protocol.CodeEmptyAudio,
			"no audio received before audio_end", true))
	}

	audio := st.audioBuf
	st.audioBuf = nil

	mime := msg.MIME
	if mime == "" {
		mime = "audio/aac"
	}

	if e.media != nil {
		e.tasks.Go("save_audio", func(ctx context.Context) error {
			_, err := e.media.Save(media.KindAudio, audio, mime)
			return err
		})
	}

	return e.respond(ctx, conn, st, requestID, msg.Text, []llm.Part{{Data: audio, MIME: mime}})
}

// handleStill handles single-payload image and video messages.
func (e *Engine) handleStill(ctx context.Context, conn Conn, st *state, requestID string, msg *protocol.ClientMessage, kind media.Kind) error {
	raw, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil || len(raw) == 0 {
		return conn.WriteJSON(ctx, protocol.NewError(requestID, protocol.CodeInvalidMessage,
			"media payload is empty or not valid base64", true))
	}

	mime := msg.MIME
	if mime == "" {
		if kind == media.KindVideo {
			mime = "video/mp4"
		} else {
			mime = "image/jpeg"
		}
	}

	if e.media != nil {
		e.tasks.Go("save_media", func(ctx context.Context) error {
			_, err := e.media.Save(kind, raw, mime)
			return err
		})
	}

	return e.respond(ctx, conn, st, requestID, msg.Text, []llm.Part{{Data: raw, MIME: mime}})
}

func (e *Engine) handleMultimodal(ctx context.Context, conn Conn, st *state, requestID string, msg *protocol.ClientMessage) error {
	var parts []llm.Part

	add := func(encoded, mime, fallback string, kind media.Kind) error {
		if encoded == "" {
			return nil
		}
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil || len(raw) == 0 {
			return fmt.Errorf("invalid %s payload", kind)
		}
		if mime == "" {
			mime = fallback
		}
		if e.media != nil {
			data := raw
			e.tasks.Go("save_media", func(ctx context.Context) error {
				_, err := e.media.Save(kind, data, mime)
				return err
			})
		}
		parts = append(parts, llm.Part{Data: raw, MIME: mime})
		return nil
	}

	if err := add(msg.Audio, msg.AudioMIME, "audio/aac", media.KindAudio); err != nil {
		return conn.WriteJSON(ctx, protocol.NewError(requestID, protocol.CodeInvalidMessage, err.Error(), true))
	}
	if err := add(msg.Image, msg.ImageMIME, "image/jpeg", media.KindImage); err != nil {
		return conn.WriteJSON(ctx, protocol.NewError(requestID, protocol.CodeInvalidMessage, err.Error(), true))
	}
	if err := add(msg.Video, msg.VideoMIME, "video/mp4", media.KindVideo); err != nil {
		return conn.WriteJSON(ctx, protocol.NewError(requestID, protocol.CodeInvalidMessage, err.Error(), true))
	}

	if msg.Text == "" && len(parts) == 0 {
		return conn.WriteJSON(ctx, protocol.NewError(requestID, protocol.CodeInvalidMessage,
			"multimodal message carries no content", true))
	}

	return e.respond(ctx, conn, st, requestID, msg.Text, parts)
}

func (e *Engine) handleExplore(ctx context.Context, conn Conn, st *state, requestID string) error {
	zones, err := e.store.ListZones(ctx)
	if err != nil {
		e.logger.Warn("failed to list zones for exploration", zap.Error(err))
	}

	// Head for the first accessible zone that is not where we already are.
	var target *types.Zone
	for _, z := range zones {
		if z.Accessible && !z.Current {
			target = z
			break
		}
	}

	var actions []motion.Sequence
	targetName := ""
	if target != nil {
		targetName = target.Name
		if current, err := e.store.CurrentZone(ctx); err == nil {
			if path, err := e.store.FindPath(ctx, current.Name, target.Name); err == nil && len(path) > 1 {
				for _, hop := range path[1:] {
					actions = append(actions, motion.BuildMoveSequence("goto:"+hop, []string{"approach"}))
				}
			}
		}
	}
	if len(actions) == 0 {
		// Nowhere known to go; wander in place.
		actions = []motion.Sequence{motion.BuildMoveSequence("wander", []string{"look_around", "spin"})}
	}

	speech := "Voy a dar una vuelta a ver qué descubro."
	if e.llm != nil {
		if out, err := e.llm.Complete(ctx, &llm.Request{
			Messages: []llm.Message{llm.TextMessage(llm.RoleUser, llm.ExplorationPrompt(targetName))},
		}); err == nil {
			// The model sometimes slips control tags into plain completions.
			if clean, _ := tags.ExtractDirectives(out); clean != "" {
				speech = clean
			}
		}
	}

	return conn.WriteJSON(ctx, protocol.NewExplorationActions(requestID, actions, speech))
}

// handleZoneUpdate mutates the session's location state and schedules the
// store writes in the background so the dispatch loop never waits on them.
func (e *Engine) handleZoneUpdate(ctx context.Context, conn Conn, st *state, requestID string, msg *protocol.ClientMessage) error {
	if msg.ZoneName == "" {
		return conn.WriteJSON(ctx, protocol.NewError(requestID, protocol.CodeInvalidMessage,
			"zone_update requires zone_name", true))
	}

	action := msg.Action
	if action == "" {
		action = "enter"
	}

	previous := st.currentZone()
	if action == "enter" {
		st.setCurrentZone(msg.ZoneName)
	}

	zone := &types.Zone{
		Name:       msg.ZoneName,
		Category:   types.NormalizeZoneCategory(msg.Category),
		Accessible: true,
	}
	e.tasks.Go("zone_update", func(ctx context.Context) error {
		learned, err := e.store.UpsertZone(ctx, zone)
		if err != nil {
			return err
		}

		// Walking from one zone into another teaches the graph an edge
		// in both directions.
		if previous != "" && previous != learned.Name {
			prevZone, err := e.store.GetZoneByName(ctx, previous)
			if errors.Is(err, storage.ErrNotFound) {
				// The previous zone's own update task may not have run
				// yet; a minimal row is enough to anchor the edge.
				prevZone, err = e.store.UpsertZone(ctx, &types.Zone{Name: previous, Accessible: true})
			}
			if err != nil {
				return err
			}
			for _, p := range []*types.ZonePath{
				{FromZoneID: prevZone.ID, ToZoneID: learned.ID},
				{FromZoneID: learned.ID, ToZoneID: prevZone.ID},
			} {
				if err := e.store.LinkZones(ctx, p); err != nil {
					return err
				}
			}
		}

		// Persist the flag only if the session still considers this the
		// current zone, so out-of-order tasks cannot roll it back.
		if st.currentZone() == learned.Name {
			return e.store.SetCurrentZone(ctx, learned.Name)
		}
		// Discovery only extends the graph; leaving does not pick a new
		// current zone because the robot's next position is unknown.
		return nil
	})
	return nil
}

// handlePersonDetected updates the session identity and schedules the person
// write in the background. The greeting needs only a read.
func (e *Engine) handlePersonDetected(ctx context.Context, conn Conn, st *state, requestID string, msg *protocol.ClientMessage) error {
	if msg.PersonID == "" {
		return nil
	}
	st.personID = msg.PersonID

	personID := msg.PersonID
	e.tasks.Go("touch_interaction", func(ctx context.Context) error {
		// TouchInteraction upserts the person row before bumping the
		// counter.
		return e.store.TouchInteraction(ctx, personID)
	})

	person, err := e.store.GetPerson(ctx, personID)
	if err != nil || person.Name == "" {
		return nil
	}
	st.personName = person.Name
	return conn.WriteJSON(ctx, protocol.NewEmotionWithPerson(requestID, "greeting", person.Name, msg.Confidence))
}

// sessionTimeout caps one full response cycle.
const sessionTimeout = 2 * time.Minute
