package chat

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/samsaffron/qa-chat/internal/chain"
	"github.com/samsaffron/qa-chat/internal/config"
	"github.com/samsaffron/qa-chat/internal/llm"
	"github.com/samsaffron/qa-chat/internal/render"
	"github.com/samsaffron/qa-chat/internal/session"
)

// ErrStreamInProgress is reported when a message arrives while the session
// is still streaming the previous reply.
var ErrStreamInProgress = errors.New("stream already in progress")

var (
	errInterrupted = errors.New("interrupted")
	errCleared     = errors.New("cleared")
)

const (
	writeTimeout   = 10 * time.Second
	maxClientFrame = 1 << 20
)

// RemoteSession tracks one browser tab's chat.
type RemoteSession struct {
	ID           string
	Model        string
	EventBuf     []WireEvent
	NextSeq      int64
	LastActiveAt time.Time

	mu           sync.Mutex
	writeMu      sync.Mutex
	conn         *websocket.Conn
	cancelStream context.CancelCauseFunc
	streamDone   chan struct{}
	replying     bool
	partial      strings.Builder
	// apiKey is only ever held here, never in the store or logs.
	apiKey string
}

// SessionManager manages active browser chat sessions.
type SessionManager struct {
	sessions     map[string]*RemoteSession
	mu           sync.RWMutex
	cfg          *config.Config
	providerName string
	provider     config.ProviderConfig
	store        session.Store
	chains       *chain.Cache
	streams      sync.WaitGroup
}

// NewSessionManager serves the active provider from cfg.
func NewSessionManager(cfg *config.Config, store session.Store, chains *chain.Cache) (*SessionManager, error) {
	provider, err := cfg.ActiveProvider()
	if err != nil {
		return nil, err
	}
	if len(provider.Models) == 0 {
		return nil, fmt.Errorf("provider %s has no models configured", cfg.Provider)
	}
	return &SessionManager{
		sessions:     make(map[string]*RemoteSession),
		cfg:          cfg,
		providerName: cfg.Provider,
		provider:     provider,
		store:        store,
		chains:       chains,
	}, nil
}

// HTTPHandler returns the handler for the page, the API and the websocket.
func (m *SessionManager) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", m.handlePage)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/models", m.auth(m.handleModels))
	mux.HandleFunc("GET /chat/ws", m.auth(m.handleWS))
	mux.HandleFunc("GET /chat/sessions/{id}/export", m.auth(m.handleExport))
	return mux
}

// StartGC drops idle sessions until ctx is done.
func (m *SessionManager) StartGC(ctx context.Context) {
	interval := m.cfg.Serve.GCInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.gcSessions(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

// gcSessions forgets sessions idle since before now-session_idle that have no
// connection and no stream. Their transcripts go with them.
func (m *SessionManager) gcSessions(now time.Time) int {
	idle := m.cfg.Serve.SessionIdle
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	cutoff := now.Add(-idle)
	var stale []string

	m.mu.Lock()
	for id, sess := range m.sessions {
		sess.mu.Lock()
		inactive := sess.LastActiveAt.Before(cutoff)
		streaming := sess.cancelStream != nil
		connected := sess.conn != nil
		sess.mu.Unlock()
		if inactive && !streaming && !connected {
			delete(m.sessions, id)
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		if err := m.store.Delete(context.Background(), id); err != nil && !errors.Is(err, session.ErrNotFound) {
			slog.Warn("chat_gc_delete_failed", "session", session.ShortID(id), "error", err)
		}
	}
	if len(stale) > 0 {
		slog.Info("chat_gc", "removed", len(stale))
	}
	return len(stale)
}

// Close interrupts running streams, drops connections and waits for stream
// goroutines to finish.
func (m *SessionManager) Close() {
	m.mu.RLock()
	for _, sess := range m.sessions {
		sess.mu.Lock()
		if sess.cancelStream != nil {
			sess.cancelStream(errInterrupted)
		}
		if sess.conn != nil {
			_ = sess.conn.Close()
		}
		sess.mu.Unlock()
	}
	m.mu.RUnlock()
	m.streams.Wait()
}

func (m *SessionManager) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"provider":      m.providerName,
		"display_name":  m.provider.DisplayName,
		"models":        m.provider.Models,
		"default_model": m.provider.Model,
		"dashboard_url": m.provider.DashboardURL,
	})
}

func (m *SessionManager) handleExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := m.store.Get(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if sess == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if live := m.lookup(id); live != nil {
		live.mu.Lock()
		sess.Model = live.Model
		live.mu.Unlock()
	}
	sess.Provider = m.provider.DisplayName

	messages, err := m.store.GetMessages(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	data, contentType, ext, err := session.Export(r.URL.Query().Get("format"), sess, messages)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="chat-%s.%s"`, session.ShortID(id), ext))
	_, _ = w.Write(data)
}

func (m *SessionManager) handleWS(w http.ResponseWriter, r *http.Request) {
	since := int64(0)
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		if parsed, err := strconv.ParseInt(sinceStr, 10, 64); err == nil {
			since = parsed
		}
	}

	conn, err := m.upgrade(w, r)
	if err != nil {
		return
	}

	sess, resumed, err := m.getOrCreate(r.Context(), r.URL.Query().Get("session"))
	if err != nil {
		slog.Error("chat_session_create_failed", "error", err)
		_ = conn.WriteJSON(errorEvent(err))
		_ = conn.Close()
		return
	}
	if !resumed {
		since = 0
	}

	m.sendSessionReady(r.Context(), sess, conn, since)
	m.runSessionLoop(sess, conn)
}

func (m *SessionManager) lookup(id string) *RemoteSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// getOrCreate resumes the session with id, or starts a new one when id is
// empty, malformed or unknown.
func (m *SessionManager) getOrCreate(ctx context.Context, id string) (*RemoteSession, bool, error) {
	if session.ValidID(id) {
		if sess := m.lookup(id); sess != nil {
			return sess, true, nil
		}
	} else if id != "" {
		slog.Debug("chat_session_id_invalid", "id", id)
	}

	stored := &session.Session{
		ID:       session.NewID(),
		Provider: m.providerName,
		Model:    m.provider.Model,
	}
	if err := m.store.Create(ctx, stored); err != nil {
		return nil, false, err
	}

	sess := &RemoteSession{
		ID:           stored.ID,
		Model:        m.provider.Model,
		NextSeq:      1,
		LastActiveAt: time.Now(),
	}
	if m.cfg.Serve.ShareConfiguredKey {
		sess.apiKey = m.provider.APIKey
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	slog.Info("chat_session_created", "session", session.ShortID(sess.ID))
	return sess, false, nil
}

// attachConn makes conn the session's connection. Callers hold writeMu.
func (m *SessionManager) attachConn(sess *RemoteSession, conn *websocket.Conn) {
	sess.mu.Lock()
	old := sess.conn
	sess.conn = conn
	sess.LastActiveAt = time.Now()
	sess.mu.Unlock()
	if old != nil && old != conn {
		_ = old.Close()
	}
}

// detachConn clears conn from sess unless a newer connection replaced it.
func (m *SessionManager) detachConn(sess *RemoteSession, conn *websocket.Conn) {
	sess.mu.Lock()
	if sess.conn == conn {
		sess.conn = nil
	}
	sess.LastActiveAt = time.Now()
	sess.mu.Unlock()
	_ = conn.Close()
}

// sendSessionReady attaches conn and sends the ready snapshot plus any
// catchup. writeMu is held throughout so no stream event reaches conn before
// the snapshot, and the stored history matches LastSeq.
func (m *SessionManager) sendSessionReady(ctx context.Context, sess *RemoteSession, conn *websocket.Conn, since int64) {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()

	m.attachConn(sess, conn)
	messages, err := m.store.GetMessages(ctx, sess.ID)
	if err != nil {
		slog.Warn("chat_history_load_failed", "session", session.ShortID(sess.ID), "error", err)
	}
	history := make([]HistoryItem, 0, len(messages))
	for _, msg := range messages {
		item := HistoryItem{Role: string(msg.Role), Text: msg.Content}
		if msg.Role == llm.RoleAssistant {
			if html, err := render.Markdown(msg.Content); err == nil {
				item.HTML = string(html)
			}
		}
		history = append(history, item)
	}

	sess.mu.Lock()
	ready := WireEvent{
		Type:         EventSessionReady,
		SessionID:    sess.ID,
		Provider:     m.provider.DisplayName,
		History:      history,
		Models:       m.provider.Models,
		DashboardURL: m.provider.DashboardURL,
		HasKey:       sess.apiKey != "",
		Model:        sess.Model,
		Streaming:    sess.replying,
		Partial:      sess.partial.String(),
		LastSeq:      sess.NextSeq - 1,
	}
	var catchup *WireEvent
	if since > 0 {
		var events []WireEvent
		for _, evt := range sess.EventBuf {
			if evt.Seq > since {
				events = append(events, evt)
			}
		}
		missed := since < ready.LastSeq && (len(sess.EventBuf) == 0 || sess.EventBuf[0].Seq > since+1)
		switch {
		case missed:
			ready.Resync = true
		case len(events) > 0:
			catchup = &WireEvent{Type: EventCatchup, Events: events}
		}
	}
	sess.mu.Unlock()

	_ = writeFrame(conn, ready)
	if catchup != nil {
		_ = writeFrame(conn, *catchup)
	}
}

func (m *SessionManager) runSessionLoop(sess *RemoteSession, conn *websocket.Conn) {
	defer m.detachConn(sess, conn)
	conn.SetReadLimit(maxClientFrame)

	for {
		var ev ClientEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}

		sess.mu.Lock()
		sess.LastActiveAt = time.Now()
		sess.mu.Unlock()

		switch ev.Type {
		case ClientSettings:
			m.applySettings(sess, ev)
		case ClientMessage:
			if strings.TrimSpace(ev.Text) == "" {
				continue
			}
			m.startStream(sess, ev.Text)
		case ClientInterrupt:
			m.interruptStream(sess, errInterrupted)
		case ClientClear:
			m.clearSession(sess)
		default:
			m.writeError(sess, fmt.Errorf("unknown event type %q", ev.Type))
		}
	}
}

// keyRequired tells the client to hide the chat until a key is entered.
func (m *SessionManager) keyRequired() WireEvent {
	return WireEvent{
		Type:         EventKeyRequired,
		Message:      fmt.Sprintf("Please enter your %s API key in the sidebar to use the chatbot.", m.provider.DisplayName),
		Provider:     m.provider.DisplayName,
		DashboardURL: m.provider.DashboardURL,
	}
}

func (m *SessionManager) applySettings(sess *RemoteSession, ev ClientEvent) {
	model := strings.TrimSpace(ev.Model)
	if model != "" && !slices.Contains(m.provider.Models, model) {
		m.writeStreamEvent(sess, WireEvent{Type: EventWarning, Message: fmt.Sprintf("Unknown model %q.", model)})
		return
	}
	key := strings.TrimSpace(ev.APIKey)
	if key == "" && m.cfg.Serve.ShareConfiguredKey {
		key = m.provider.APIKey
	}

	sess.mu.Lock()
	sess.apiKey = key
	if model != "" {
		sess.Model = model
	}
	model = sess.Model
	sess.mu.Unlock()

	if key == "" {
		m.writeStreamEvent(sess, m.keyRequired())
		return
	}
	m.writeStreamEvent(sess, WireEvent{Type: EventSettingsOK, HasKey: true, Model: model})
}

// startStream claims the session's stream slot and runs the reply in the
// background. Claiming happens on the read loop so a second message is
// rejected deterministically.
func (m *SessionManager) startStream(sess *RemoteSession, text string) {
	sess.mu.Lock()
	if sess.cancelStream != nil {
		sess.mu.Unlock()
		m.writeError(sess, ErrStreamInProgress)
		return
	}
	apiKey, model := sess.apiKey, sess.Model
	if apiKey == "" {
		sess.mu.Unlock()
		m.writeStreamEvent(sess, m.keyRequired())
		return
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	done := make(chan struct{})
	sess.cancelStream = cancel
	sess.streamDone = done
	sess.partial.Reset()
	sess.mu.Unlock()

	m.streams.Add(1)
	go func() {
		defer m.streams.Done()
		defer close(done)
		defer func() {
			cancel(nil)
			sess.mu.Lock()
			sess.cancelStream = nil
			sess.streamDone = nil
			sess.endReply()
			sess.LastActiveAt = time.Now()
			sess.mu.Unlock()
		}()
		m.runStream(ctx, sess, text, apiKey, model)
	}()
}

func (m *SessionManager) runStream(ctx context.Context, sess *RemoteSession, text, apiKey, model string) {
	if timeout := m.cfg.Chat.RequestTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	logger := slog.With("session", session.ShortID(sess.ID), "provider", m.providerName, "model", model)

	ch, err := m.chains.Get(ctx, m.providerName, apiKey, model)
	if err != nil {
		logger.Warn("chat_chain_failed", "error", err)
		m.failStream(sess, err)
		return
	}

	var history []llm.Message
	if m.cfg.Chat.IncludeHistory {
		prior, err := m.store.GetMessages(ctx, sess.ID)
		if err != nil {
			m.failStream(sess, err)
			return
		}
		history = session.ToLLM(prior)
	}

	userMsg := &session.Message{Role: llm.RoleUser, Content: text}
	if err := m.record(ctx, sess, userMsg, WireEvent{Type: EventUserMessage, Text: text}, func() { sess.replying = true }); err != nil {
		m.failStream(sess, err)
		return
	}

	start := time.Now()
	logger.Info("chat_stream_start", "history", len(history))
	full, err := ch.Stream(ctx, chain.Input{
		Vars:    map[string]string{"question": text},
		History: history,
	}, func(chunk string) {
		m.emit(sess, WireEvent{Type: EventTextDelta, Text: chunk}, func() { sess.partial.WriteString(chunk) })
	})
	if err != nil {
		cause := context.Cause(ctx)
		switch {
		case errors.Is(cause, errCleared):
			logger.Info("chat_stream_cleared")
			return
		case errors.Is(cause, errInterrupted):
			err = errInterrupted
		}
		logger.Warn("chat_stream_error", "error", err, "duration", time.Since(start))
		m.failStream(sess, err)
		return
	}

	done := WireEvent{Type: EventMessageDone, Text: full}
	if html, err := render.Markdown(full); err == nil {
		done.HTML = string(html)
	}
	assistantMsg := &session.Message{Role: llm.RoleAssistant, Content: full}
	if err := m.record(context.Background(), sess, assistantMsg, done, sess.endReply); err != nil {
		m.failStream(sess, err)
		return
	}
	logger.Info("chat_stream_done", "chars", len(full), "duration", time.Since(start))
}

// interruptStream cancels the running stream, if any, and returns a channel
// closed once it has finished.
func (m *SessionManager) interruptStream(sess *RemoteSession, cause error) <-chan struct{} {
	sess.mu.Lock()
	cancel, done := sess.cancelStream, sess.streamDone
	sess.mu.Unlock()
	if cancel != nil {
		cancel(cause)
	}
	return done
}

func (m *SessionManager) clearSession(sess *RemoteSession) {
	if done := m.interruptStream(sess, errCleared); done != nil {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			slog.Warn("chat_clear_stream_timeout", "session", session.ShortID(sess.ID))
		}
	}

	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	if err := m.store.Clear(context.Background(), sess.ID); err != nil {
		m.emitLocked(sess, errorEvent(err), nil)
		return
	}
	m.emitLocked(sess, WireEvent{Type: EventCleared}, func() {
		sess.EventBuf = nil
		sess.endReply()
	})
}

// writeStreamEvent numbers ev, buffers it for catchup and sends it to the
// current connection, if any.
func (m *SessionManager) writeStreamEvent(sess *RemoteSession, ev WireEvent) {
	m.emit(sess, ev, nil)
}

func (m *SessionManager) writeError(sess *RemoteSession, err error) {
	m.emit(sess, errorEvent(err), nil)
}

// failStream reports err as the end of the current reply.
func (m *SessionManager) failStream(sess *RemoteSession, err error) {
	m.emit(sess, errorEvent(err), sess.endReply)
}

// record stores msg and emits ev as one step, so a reconnect snapshot sees
// both or neither.
func (m *SessionManager) record(ctx context.Context, sess *RemoteSession, msg *session.Message, ev WireEvent, update func()) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	if err := m.store.AddMessage(ctx, sess.ID, msg); err != nil {
		return err
	}
	m.emitLocked(sess, ev, update)
	return nil
}

func (m *SessionManager) emit(sess *RemoteSession, ev WireEvent, update func()) {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	m.emitLocked(sess, ev, update)
}

// emitLocked runs update under sess.mu in the same step that numbers ev, so
// snapshot state always matches LastSeq. Callers hold writeMu.
func (m *SessionManager) emitLocked(sess *RemoteSession, ev WireEvent, update func()) {
	sess.mu.Lock()
	if update != nil {
		update()
	}
	ev.Seq = sess.NextSeq
	sess.NextSeq++
	sess.EventBuf = append(sess.EventBuf, ev)
	if limit := m.cfg.Serve.EventBuffer; limit > 0 && len(sess.EventBuf) > limit {
		sess.EventBuf = append([]WireEvent(nil), sess.EventBuf[len(sess.EventBuf)-limit:]...)
	}
	conn := sess.conn
	sess.mu.Unlock()

	if conn != nil {
		if err := writeFrame(conn, ev); err != nil {
			slog.Debug("chat_write_failed", "session", session.ShortID(sess.ID), "error", err)
		}
	}
}

// endReply drops the in-flight reply state. Callers hold sess.mu.
func (s *RemoteSession) endReply() {
	s.replying = false
	s.partial.Reset()
}

func errorEvent(err error) WireEvent {
	return WireEvent{Type: EventError, Message: errorText(err)}
}

// errorText is what the transcript shows in place of a failed reply.
func errorText(err error) string {
	return "Error: " + err.Error()
}

func (m *SessionManager) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// authorized accepts the token as a bearer header or, for websocket
// upgrades from a browser, as ?token=.
func (m *SessionManager) authorized(r *http.Request) bool {
	token := strings.TrimSpace(m.cfg.Serve.Token)
	if token == "" {
		return true
	}
	got := r.URL.Query().Get("token")
	if value := r.Header.Get("Authorization"); strings.HasPrefix(value, "Bearer ") {
		got = strings.TrimSpace(strings.TrimPrefix(value, "Bearer "))
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

func (m *SessionManager) upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	// A shared key spends the server's credit, so only same-origin pages
	// may open a socket.
	if m.cfg.Serve.ShareConfiguredKey {
		upgrader.CheckOrigin = nil
	}
	return upgrader.Upgrade(w, r, nil)
}

func writeFrame(conn *websocket.Conn, e WireEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
