package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"messengerBack/internal/auth"
	"messengerBack/internal/models"
	"messengerBack/internal/realtime"
)

/********** timings **********/
const (
	readLimit          = 1 << 20           // 1 MB
	readDeadline       = 120 * time.Second // extended by every pong
	writeDeadline      = 5 * time.Second
	pingInterval       = 15 * time.Second
	firstHelloDeadline = 30 * time.Second // time to send {"token": ...} when not given on upgrade
	sendBuffer         = 256
	snapshotTimeout    = 5 * time.Second
)

// chatsTopicAlias is what clients send to follow their own chat list.
const chatsTopicAlias = "chats"

type clientFrame struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
	Token  string `json:"token"`
}

// wsClient is one websocket connection. It implements realtime.Subscriber.
type wsClient struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsClient) ID() string { return c.id }

func (c *wsClient) UserID() string { return c.userID }

// Deliver queues data without blocking. A full buffer means the client is too
// slow: the connection is closed and the hub drops it.
func (c *wsClient) Deliver(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		c.close()
		return false
	}
}

func (c *wsClient) sendEvent(topic, eventType string, payload interface{}) {
	ev, err := realtime.NewEvent(topic, eventType, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	c.Deliver(data)
}

func (c *wsClient) sendError(topic, message string) {
	c.sendEvent(topic, realtime.EventError, map[string]string{"error": message})
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (app *application) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin:       app.checkOrigin,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		EnableCompression: true,
	}
}

// checkOrigin accepts native clients without an Origin header and browsers
// from the configured CORS origins.
func (app *application) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(app.cfg.Server.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range app.cfg.Server.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// WebSocketHandler serves /ws. The token comes from the Authorization header,
// the token query parameter, or a first frame {"token": "..."}.
func (app *application) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.BearerTokenFromRequest(r)
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}

	var (
		p   principal
		err error
	)
	if token != "" {
		if p, err = app.authenticate(r.Context(), token, ""); err != nil {
			app.clientError(w, http.StatusUnauthorized, "Invalid access token")
			return
		}
	}

	conn, err := app.upgrader().Upgrade(w, r, nil)
	if err != nil {
		app.errorLog.Printf("WebSocket upgrade error: %v", err)
		return
	}

	conn.SetReadLimit(readLimit)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	if p.UserID == "" {
		_ = conn.SetReadDeadline(time.Now().Add(firstHelloDeadline))
		var hello clientFrame
		if err := conn.ReadJSON(&hello); err != nil || hello.Token == "" {
			_ = writeClose(conn, websocket.ClosePolicyViolation, "token required")
			_ = conn.Close()
			return
		}
		if p, err = app.authenticate(r.Context(), hello.Token, ""); err != nil {
			_ = writeClose(conn, websocket.ClosePolicyViolation, "invalid token")
			_ = conn.Close()
			return
		}
	}
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))

	client := &wsClient{
		id:     uuid.NewString(),
		userID: p.UserID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
	app.infoLog.Printf("WS connect user=%s conn=%s", client.userID, client.id)

	// The request context ends when the handler returns, so the connection
	// gets its own.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.touchPresence(ctx, client)
	go app.writePump(ctx, client)
	app.readPump(ctx, client)

	app.broker.Hub().UnsubscribeAll(client.id)
	client.close()
	if app.presence != nil {
		if err := app.presence.Leave(context.Background(), client.userID, client.id); err != nil {
			app.errorLog.Printf("presence leave user=%s: %v", client.userID, err)
		}
	}
	_ = conn.Close()
	app.infoLog.Printf("WS disconnect user=%s conn=%s", client.userID, client.id)
}

func (app *application) readPump(ctx context.Context, c *wsClient) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				app.errorLog.Printf("WS read error user=%s: %v", c.userID, err)
			}
			return
		}

		text := strings.TrimSpace(string(data))
		if text == "ping" || text == `"ping"` {
			c.sendEvent("", "pong", nil)
			continue
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.sendError("", "invalid frame")
			continue
		}

		switch frame.Action {
		case "subscribe":
			app.subscribe(ctx, c, frame.Topic)
		case "unsubscribe":
			topic, err := resolveTopic(c.userID, frame.Topic)
			if err != nil {
				c.sendError(frame.Topic, err.Error())
				continue
			}
			app.broker.Hub().Unsubscribe(topic, c.id)
			c.sendEvent(topic, realtime.EventUnsubscribed, nil)
		case "ping":
			c.sendEvent("", "pong", nil)
		default:
			c.sendError(frame.Topic, "unknown action")
		}
	}
}

func (app *application) writePump(ctx context.Context, c *wsClient) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			_ = writeClose(c.conn, websocket.CloseGoingAway, "connection closed")
			_ = c.conn.Close()
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				app.errorLog.Printf("WS write error user=%s: %v", c.userID, err)
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = writeClose(c.conn, websocket.CloseGoingAway, "ping error")
				_ = c.conn.Close()
				return
			}
			app.touchPresence(ctx, c)
		}
	}
}

func (app *application) touchPresence(ctx context.Context, c *wsClient) {
	if app.presence == nil {
		return
	}
	if err := app.presence.Touch(ctx, c.userID, c.id); err != nil {
		app.errorLog.Printf("presence touch user=%s: %v", c.userID, err)
	}
}

// subscribe registers c on the topic and sends the current snapshot.
func (app *application) subscribe(ctx context.Context, c *wsClient, requested string) {
	topic, err := resolveTopic(c.userID, requested)
	if err != nil {
		c.sendError(requested, err.Error())
		return
	}

	snapCtx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	if chatID, ok := realtime.ChatIDFromTopic(topic); ok {
		if _, err := app.chatService.GetChatForMember(snapCtx, c.userID, chatID); err != nil {
			c.sendError(topic, subscribeErrorMessage(err))
			return
		}
		app.broker.Hub().Subscribe(topic, c)
		snapshot, err := app.chatService.ChatSnapshot(snapCtx, c.userID, chatID)
		if err != nil {
			app.broker.Hub().Unsubscribe(topic, c.id)
			app.errorLog.Printf("chat snapshot %s for %s: %v", chatID, c.userID, err)
			c.sendError(topic, "snapshot failed")
			return
		}
		c.sendEvent(topic, realtime.EventSubscribed, nil)
		c.sendEvent(topic, realtime.EventSnapshot, snapshot)
		return
	}

	app.broker.Hub().Subscribe(topic, c)
	chats, err := app.chatService.ListChats(snapCtx, c.userID)
	if err != nil {
		app.broker.Hub().Unsubscribe(topic, c.id)
		app.errorLog.Printf("chat list snapshot for %s: %v", c.userID, err)
		c.sendError(topic, "snapshot failed")
		return
	}
	c.sendEvent(topic, realtime.EventSubscribed, nil)
	c.sendEvent(topic, realtime.EventSnapshot, chats)
}

var errUnknownTopic = errors.New("unknown topic")

// resolveTopic maps a client topic to a hub topic. Users may only follow
// their own chat list.
func resolveTopic(userID, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	switch {
	case requested == chatsTopicAlias || requested == realtime.UserTopic(userID):
		return realtime.UserTopic(userID), nil
	case strings.HasPrefix(requested, "user:"):
		return "", errors.New("forbidden")
	}
	if _, ok := realtime.ChatIDFromTopic(requested); ok {
		return requested, nil
	}
	return "", errUnknownTopic
}

func subscribeErrorMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrForbidden):
		return "forbidden"
	case errors.Is(err, models.ErrChatNotFound):
		return "chat not found"
	default:
		return "subscribe failed"
	}
}

func writeClose(conn *websocket.Conn, code int, reason string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeDeadline),
	)
}
