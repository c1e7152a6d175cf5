package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/robilabs/robi/internal/expression"
	"github.com/robilabs/robi/internal/history"
	"github.com/robilabs/robi/internal/intent"
	"github.com/robilabs/robi/internal/llm"
	"github.com/robilabs/robi/internal/motion"
	"github.com/robilabs/robi/internal/protocol"
	"github.com/robilabs/robi/internal/storage"
	"github.com/robilabs/robi/internal/tags"
	"github.com/robilabs/robi/pkg/types"
)

// memoryContextLimit bounds how many memories are injected into the prompt.
const memoryContextLimit = 10

// respond runs one full response cycle: it assembles the prompt, streams the
// model output through the tag decoder, and emits the ordered server frames
// (emotion, text chunks, optional capture request, response meta, stream end).
func (e *Engine) respond(ctx context.Context, conn Conn, st *state, requestID, userText string, parts []llm.Part) error {
	started := time.Now()

	cycleCtx, cancel := context.WithTimeout(ctx, sessionTimeout)
	defer cancel()

	req := e.buildRequest(cycleCtx, st, userText, parts)

	stream, err := e.llm.Stream(cycleCtx, req)
	if err != nil {
		e.logger.Warn("model stream unavailable", zap.Error(err))
		return conn.WriteJSON(ctx, protocol.NewError(requestID, protocol.CodeLLMUnavailable,
			"the assistant is temporarily unavailable", true))
	}
	defer stream.Close()

	dec := tags.NewDecoder()
	var body strings.Builder

	emit := func(events []tags.Event) error {
		for _, ev := range events {
			switch ev.Kind {
			case tags.EventEmotion:
				var out any
				if st.personName != "" {
					out = protocol.NewEmotionWithPerson(requestID, ev.Emotion, st.personName, 0)
				} else {
					out = protocol.NewEmotion(requestID, ev.Emotion)
				}
				if err := conn.WriteJSON(ctx, out); err != nil {
					return err
				}
			case tags.EventText:
				body.WriteString(ev.Text)
				if err := conn.WriteJSON(ctx, protocol.NewTextChunk(requestID, ev.Text)); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			e.logger.Warn("model stream failed mid-response", zap.Error(err))
			return conn.WriteJSON(ctx, protocol.NewError(requestID, protocol.CodeLLMUnavailable,
				"the assistant stopped responding", true))
		}
		if err := emit(dec.Feed(chunk)); err != nil {
			return err
		}
	}
	if err := emit(dec.Finish()); err != nil {
		return err
	}

	clean := strings.TrimSpace(body.String())
	directives := dec.Directives()

	if capture := intent.ClassifyCapture(clean); capture != intent.CaptureNone {
		if err := conn.WriteJSON(ctx, protocol.NewCaptureRequest(requestID, string(capture))); err != nil {
			return err
		}
	}

	emojis := expression.Combine(dec.Emojis(), dec.Emotion())
	var actions []motion.Sequence
	if steps := dec.ActionSteps(); len(steps) > 0 {
		actions = []motion.Sequence{motion.BuildMoveSequence("response", steps)}
	}

	// Directives run first so a name learned this turn shows up in the
	// meta frame.
	e.applyDirectives(st, directives)

	if err := conn.WriteJSON(ctx, protocol.NewResponseMeta(requestID, clean, emojis, actions, st.personName)); err != nil {
		return err
	}
	if err := conn.WriteJSON(ctx, protocol.NewStreamEnd(requestID, time.Since(started).Milliseconds())); err != nil {
		return err
	}

	e.recordTurn(cycleCtx, st, userText, dec.MediaSummary(), clean)

	sessionID := st.sessionID
	e.tasks.Go("compact_history", func(ctx context.Context) error {
		return e.history.CompactIfNeeded(ctx, sessionID)
	})

	return nil
}

// buildRequest gathers person, memory, and zone context plus the running
// conversation into a single model request.
func (e *Engine) buildRequest(ctx context.Context, st *state, userText string, parts []llm.Part) *llm.Request {
	pc := llm.PromptContext{PersonName: st.personName}

	// The bundle covers the general pool and zone facts, plus the person's
	// own memories once identity is known.
	if mems, err := e.store.ContextMemories(ctx, st.personID, memoryContextLimit); err == nil {
		pc.Memories = mems
	}

	if zone, err := e.store.CurrentZone(ctx); err == nil {
		pc.CurrentZone = zone.Name
	}
	if zones, err := e.store.ListZones(ctx); err == nil {
		for _, z := range zones {
			pc.KnownZones = append(pc.KnownZones, z.Name)
		}
	}

	var messages []llm.Message
	if msgs, err := e.history.Messages(ctx, st.sessionID); err == nil {
		for _, m := range msgs {
			role := llm.RoleUser
			if m.Role == history.RoleAssistant {
				role = llm.RoleModel
			}
			messages = append(messages, llm.TextMessage(role, m.Content))
		}
	}

	var turn []llm.Part
	if userText != "" {
		turn = append(turn, llm.Part{Text: userText})
	}
	turn = append(turn, parts...)
	if len(turn) == 0 {
		turn = append(turn, llm.Part{Text: "(el usuario no dijo nada)"})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Parts: turn})

	return &llm.Request{
		System:   llm.SystemPrompt(pc),
		Messages: messages,
	}
}

// recordTurn appends the user input and the assistant reply to the session
// history. Media-only turns are recorded via the model's media summary so
// the conversation stays textual.
func (e *Engine) recordTurn(ctx context.Context, st *state, userText, mediaSummary, reply string) {
	userContent := userText
	if userContent == "" {
		userContent = mediaSummary
	}
	if userContent == "" {
		userContent = "(entrada multimedia)"
	}

	if err := e.history.Add(ctx, st.sessionID, history.RoleUser, userContent); err != nil {
		e.logger.Warn("failed to record user turn", zap.Error(err))
	}
	if err := e.history.Add(ctx, st.sessionID, history.RoleAssistant, reply); err != nil {
		e.logger.Warn("failed to record assistant turn", zap.Error(err))
	}
}

// applyDirectives processes the control directives extracted from a reply.
// A learned name updates the session immediately; the persistence runs in
// the background so the next frame is never blocked on storage.
func (e *Engine) applyDirectives(st *state, directives []tags.Directive) {
	for _, d := range directives {
		switch d.Kind {
		case tags.DirectiveMemory:
			if len(d.Fields) < 2 {
				continue
			}
			mem := &types.Memory{
				PersonID:   st.personID,
				Type:       types.NormalizeMemoryType(d.Fields[0]),
				Content:    d.Fields[1],
				Importance: 5,
			}
			e.tasks.Go("save_memory", func(ctx context.Context) error {
				outcome, err := e.store.SaveMemory(ctx, mem)
				if err == nil && outcome == storage.SaveRejected {
					e.logger.Info("memory rejected by privacy filter")
				}
				return err
			})

		case tags.DirectivePersonName:
			if len(d.Fields) < 1 || d.Fields[0] == "" || st.personID == "" {
				continue
			}
			name := d.Fields[0]
			personID := st.personID
			st.personName = name
			e.tasks.Go("rename_person", func(ctx context.Context) error {
				return e.store.RenamePerson(ctx, personID, name)
			})

		case tags.DirectiveZoneLearn:
			if len(d.Fields) < 1 || d.Fields[0] == "" {
				continue
			}
			zone := &types.Zone{
				Name:       d.Fields[0],
				Category:   types.ZoneUnknown,
				Accessible: true,
			}
			if len(d.Fields) > 1 {
				zone.Category = types.NormalizeZoneCategory(d.Fields[1])
			}
			if len(d.Fields) > 2 {
				zone.Description = d.Fields[2]
			}
			e.tasks.Go("learn_zone", func(ctx context.Context) error {
				learned, err := e.store.UpsertZone(ctx, zone)
				if err != nil {
					return err
				}
				if current, err := e.store.CurrentZone(ctx); err == nil && current.ID != learned.ID {
					for _, p := range []*types.ZonePath{
						{FromZoneID: current.ID, ToZoneID: learned.ID},
						{FromZoneID: learned.ID, ToZoneID: current.ID},
					} {
						if err := e.store.LinkZones(ctx, p); err != nil {
							return err
						}
					}
				}
				return nil
			})
		}
	}
}
