package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/clinicops/internal/auth"
	"github.com/wolfman30/clinicops/internal/blobstore"
	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// Container mediates every chat read and write for signed-in users. The
// principal is taken from the context of each call.
type Container struct {
	store   docstore.Store
	blobs   blobstore.Store
	cache   Cache
	auditor Auditor
	logger  *logging.Logger

	mu       sync.Mutex
	sessions map[string]*bookkeeping
}

// Option customises a Container.
type Option func(*Container)

// WithCache replaces the default in-process validation cache.
func WithCache(c Cache) Option {
	return func(ct *Container) {
		if c != nil {
			ct.cache = c
		}
	}
}

// WithAuditor records access denials and deletions.
func WithAuditor(a Auditor) Option {
	return func(ct *Container) { ct.auditor = a }
}

func NewContainer(store docstore.Store, blobs blobstore.Store, logger *logging.Logger, opts ...Option) *Container {
	if store == nil {
		panic("chat: store required")
	}
	if blobs == nil {
		panic("chat: blob store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Container{
		store:    store,
		blobs:    blobs,
		cache:    NewMemoryCache(0),
		logger:   logger,
		sessions: make(map[string]*bookkeeping),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureActiveChat makes sure chatID exists and the caller may use it. An
// existing chat must list the caller as participant; a missing one is created
// with participants. Chats already validated for the caller are served from
// the cache without another read.
func (c *Container) EnsureActiveChat(ctx context.Context, chatID string, participants []string) (Chat, error) {
	principal, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return Chat{}, err
	}
	if cached, ok := c.cached(ctx, principal.UID, chatID); ok {
		return cached, nil
	}

	chat, err := c.load(ctx, principal.UID, chatID)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return Chat{}, err
	}

	chat, err = newChat(chatID, participants)
	if err != nil {
		return Chat{}, err
	}
	if !chat.HasParticipant(principal.UID) {
		c.denied(ctx, principal.UID, chatID)
		return Chat{}, ErrUnauthorizedParticipant
	}
	err = c.store.Create(ctx, chatPath(chatID), docstore.Fields{
		"participants": chat.Participants,
		"createdAt":    docstore.ServerTimestamp,
		"status":       StatusActive,
	})
	if errors.Is(err, docstore.ErrAlreadyExists) {
		// lost the race to another opener
		return c.load(ctx, principal.UID, chatID)
	}
	if err != nil {
		return Chat{}, fmt.Errorf("chat: create %s: %w", chatID, err)
	}
	c.logger.Info("chat created", "chat_id", chatID, "uid", principal.UID)
	c.remember(ctx, principal.UID, chat)
	return chat, nil
}

func newChat(chatID string, participants []string) (Chat, error) {
	if len(participants) != 2 {
		return Chat{}, ErrInvalidParticipants
	}
	a, b := strings.TrimSpace(participants[0]), strings.TrimSpace(participants[1])
	if a == "" || b == "" || a == b {
		return Chat{}, ErrInvalidParticipants
	}
	return Chat{ID: chatID, Participants: []string{a, b}, Status: StatusActive, CreatedAt: time.Now().UTC()}, nil
}

// load reads the chat and checks membership, caching the result.
func (c *Container) load(ctx context.Context, uid, chatID string) (Chat, error) {
	doc, err := c.store.Get(ctx, chatPath(chatID))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Chat{}, err
		}
		return Chat{}, fmt.Errorf("chat: read %s: %w", chatID, err)
	}
	chat := chatFromDocument(doc)
	if !chat.HasParticipant(uid) {
		c.denied(ctx, uid, chatID)
		return Chat{}, ErrUnauthorizedParticipant
	}
	c.remember(ctx, uid, chat)
	return chat, nil
}

// authorize resolves the caller and checks membership of an existing chat.
func (c *Container) authorize(ctx context.Context, chatID string) (auth.Principal, error) {
	principal, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return auth.Principal{}, err
	}
	if _, ok := c.cached(ctx, principal.UID, chatID); ok {
		return principal, nil
	}
	if _, err := c.load(ctx, principal.UID, chatID); err != nil {
		return auth.Principal{}, err
	}
	return principal, nil
}

func (c *Container) cached(ctx context.Context, uid, chatID string) (Chat, bool) {
	chat, ok, err := c.cache.Get(ctx, uid, chatID)
	if err != nil {
		c.logger.Warn("chat cache read failed", "chat_id", chatID, "error", err)
		return Chat{}, false
	}
	return chat, ok
}

func (c *Container) remember(ctx context.Context, uid string, chat Chat) {
	if err := c.cache.Put(ctx, uid, chat); err != nil {
		c.logger.Warn("chat cache write failed", "chat_id", chat.ID, "error", err)
	}
}

func (c *Container) denied(ctx context.Context, uid, chatID string) {
	c.logger.Warn("chat access denied", "chat_id", chatID, "uid", uid)
	if c.auditor == nil {
		return
	}
	if err := c.auditor.ChatAccessDenied(ctx, uid, chatID); err != nil {
		c.logger.Error("failed to audit chat access denial", "chat_id", chatID, "error", err)
	}
}

// Subscribe opens a live, timestamp-ordered view of the chat's messages.
func (c *Container) Subscribe(ctx context.Context, chatID string, onChange func([]Message, error)) (*Subscription, error) {
	if _, err := c.authorize(ctx, chatID); err != nil {
		return nil, err
	}
	sub := newSubscription(ctx, c.store, chatID, c.signDocuments, onChange)
	if err := sub.attach(); err != nil {
		return nil, fmt.Errorf("chat: subscribe %s: %w", chatID, err)
	}
	return sub, nil
}

// Messages reads the current messages once.
func (c *Container) Messages(ctx context.Context, chatID string) ([]Message, error) {
	if _, err := c.authorize(ctx, chatID); err != nil {
		return nil, err
	}
	docs, err := c.store.Query(ctx, docstore.Collection(messagesPath(chatID)).OrderBy("timestamp", false))
	if err != nil {
		return nil, fmt.Errorf("chat: list messages %s: %w", chatID, err)
	}
	out := make([]Message, 0, len(docs))
	for _, doc := range docs {
		out = append(out, messageFromDocument(doc))
	}
	return c.signDocuments(ctx, out), nil
}

// signDocuments fills DocumentURL for attachments with a freshly signed URL.
// A message whose blob cannot be signed keeps an empty URL.
func (c *Container) signDocuments(ctx context.Context, msgs []Message) []Message {
	for i := range msgs {
		if msgs[i].DocumentPath == "" {
			continue
		}
		url, err := c.blobs.DownloadURL(ctx, blobstore.Ref{Path: msgs[i].DocumentPath, Name: msgs[i].FileName})
		if err != nil {
			c.logger.Warn("failed to sign attachment", "message_id", msgs[i].ID, "path", msgs[i].DocumentPath, "error", err)
			msgs[i].DocumentURL = ""
			continue
		}
		msgs[i].DocumentURL = url
	}
	return msgs
}

// SendMessage appends text after trimming it. Blank text is ignored and
// returns an empty id.
func (c *Container) SendMessage(ctx context.Context, chatID, text string) (string, error) {
	principal, err := c.authorize(ctx, chatID)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	id, err := c.store.Add(ctx, messagesPath(chatID), docstore.Fields{
		"senderId":  principal.UID,
		"message":   text,
		"timestamp": docstore.ServerTimestamp,
	})
	if err != nil {
		return "", fmt.Errorf("chat: send message %s: %w", chatID, err)
	}
	c.ClearReply(ctx, chatID)
	return id, nil
}

// File is an attachment to upload.
type File struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// SendDocument uploads f to documents/{chatID}/{name}, replacing any file of
// the same name, and appends a message pointing at it.
func (c *Container) SendDocument(ctx context.Context, chatID string, f File) (string, error) {
	principal, err := c.authorize(ctx, chatID)
	if err != nil {
		return "", err
	}
	path := blobstore.DocumentPath(chatID, f.Name)
	if strings.TrimSpace(f.Name) == "" || strings.HasSuffix(path, "/") {
		return "", ErrEmptyFile
	}
	ref, err := c.blobs.Upload(ctx, path, f.Body, f.ContentType)
	if err != nil {
		return "", fmt.Errorf("chat: upload %s: %w", path, err)
	}
	id, err := c.store.Add(ctx, messagesPath(chatID), docstore.Fields{
		"senderId":     principal.UID,
		"message":      "",
		"documentPath": ref.Path,
		"fileName":     ref.Name,
		"timestamp":    docstore.ServerTimestamp,
	})
	if err != nil {
		return "", fmt.Errorf("chat: send document %s: %w", chatID, err)
	}
	return id, nil
}

// DeleteMessage removes one message and any pin referencing it.
func (c *Container) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	principal, err := c.authorize(ctx, chatID)
	if err != nil {
		return err
	}
	if err := c.store.Delete(ctx, docstore.Join(messagesPath(chatID), messageID)); err != nil {
		return fmt.Errorf("chat: delete message %s: %w", messageID, err)
	}
	c.dropPin(chatID, messageID)
	if c.auditor != nil {
		if err := c.auditor.MessageDeleted(ctx, principal.UID, chatID, messageID); err != nil {
			c.logger.Error("failed to audit message deletion", "chat_id", chatID, "message_id", messageID, "error", err)
		}
	}
	return nil
}

// SharedFile is an attachment previously sent to a chat.
type SharedFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// SharedFiles lists attachments of a chat with download URLs.
func (c *Container) SharedFiles(ctx context.Context, chatID string) ([]SharedFile, error) {
	if _, err := c.authorize(ctx, chatID); err != nil {
		return nil, err
	}
	refs, err := c.blobs.List(ctx, blobstore.DocumentPath(chatID, ""))
	if err != nil {
		return nil, fmt.Errorf("chat: list files %s: %w", chatID, err)
	}
	files := make([]SharedFile, 0, len(refs))
	for _, ref := range refs {
		url, err := c.blobs.DownloadURL(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("chat: download url %s: %w", ref.Path, err)
		}
		files = append(files, SharedFile{Name: ref.Name, URL: url})
	}
	return files, nil
}
