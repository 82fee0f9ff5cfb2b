// Package client connects a ClientSyncEngine to a Differential
// Synchronization server over WebSocket. The engine stays
// transport-agnostic: the client feeds inbound frames through the
// synchronizer's message parser and ships outbound messages in their wire
// form. Engine calls are serialized by an internal mutex, which satisfies
// the engine's per-document serialization requirement.
package client

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"diffsync"
)

type clientOptions struct {
	logger *zap.Logger
}

// Option configures a SyncClient.
type Option func(*clientOptions)

// WithLogger sets the logger the client reports transport activity to.
func WithLogger(logger *zap.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// SyncClient drives a sync engine against a server endpoint.
type SyncClient[T, D any] struct {
	url          string
	synchronizer diffsync.Synchronizer[T, D]
	engine       *diffsync.ClientSyncEngine[T, D]
	logger       *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// New creates a sync client for the given server URL. The engine is built
// over the supplied synchronizer and data store.
func New[T, D any](serverURL string, synchronizer diffsync.Synchronizer[T, D], store diffsync.DataStore[T, D], opts ...Option) *SyncClient[T, D] {
	options := &clientOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(options)
	}
	return &SyncClient[T, D]{
		url:          serverURL,
		synchronizer: synchronizer,
		engine:       diffsync.NewClientSyncEngine(synchronizer, store, diffsync.WithLogger(options.logger)),
		logger:       options.logger,
	}
}

// Connect dials the server and starts the receive loop.
func (c *SyncClient[T, D]) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return errors.New("already connected")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to connect to %s", c.url)
	}
	c.conn = conn
	c.closed = false
	c.ctx, c.cancel = context.WithCancel(ctx)

	go c.receiveLoop(c.ctx, conn)

	c.logger.Info("connected", zap.String("url", c.url))
	return nil
}

// AddDocument registers the document with the engine and sends the add
// handshake. An empty client ID is replaced with a generated one.
func (c *SyncClient[T, D]) AddDocument(doc diffsync.ClientDocument[T], callback diffsync.Callback[T]) (diffsync.ClientDocument[T], error) {
	if doc.ClientID == "" {
		doc.ClientID = diffsync.NewClientID()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine.AddDocument(doc, callback)

	payload, err := c.engine.DocumentToJSON(doc)
	if err != nil {
		return doc, err
	}
	return doc, c.send(payload)
}

// DiffAndSend produces a patch message for the document's local changes and
// transmits it.
func (c *SyncClient[T, D]) DiffAndSend(doc diffsync.ClientDocument[T]) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	message, err := c.engine.Diff(doc)
	if err != nil {
		return err
	}
	return c.send(message.String())
}

// Close tears down the connection. The engine and its data store stay
// usable; reconnecting resumes the conversation from the stored shadow.
func (c *SyncClient[T, D]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return nil
	}
	c.closed = true
	c.cancel()
	err := c.conn.Close()
	c.conn = nil
	c.logger.Info("disconnected", zap.String("url", c.url))
	return err
}

func (c *SyncClient[T, D]) send(payload string) error {
	if c.conn == nil {
		return errors.New("not connected")
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		return errors.Wrap(err, "failed to send message")
	}
	return nil
}

func (c *SyncClient[T, D]) receiveLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("read error", zap.Error(err))
			}
			return
		}

		message, err := c.synchronizer.PatchMessageFromJSON(string(data))
		if err != nil {
			// Frames that do not parse as patch messages are dropped.
			c.logger.Warn("dropped unparseable message", zap.Error(err))
			continue
		}

		c.mu.Lock()
		err = c.engine.Patch(message)
		c.mu.Unlock()
		if err != nil {
			c.logger.Error("failed to apply patch message",
				zap.String("document_id", message.DocumentID),
				zap.Error(err))
		}
	}
}
