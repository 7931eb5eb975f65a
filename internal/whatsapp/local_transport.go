package whatsapp

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/whatsdesk/internal/domain"
	apperrors "github.com/spec-kit/whatsdesk/pkg/util"
)

// Session is one live in-process WhatsApp connection. Implementations wrap a
// concrete protocol library; the registry only cares about delivery.
type Session interface {
	SendText(ctx context.Context, address, body string) (*SentMessage, error)
	SendMedia(ctx context.Context, address, mediaPath, caption string) (*SentMessage, error)
	Close() error
}

// SessionRegistry tracks live local sessions keyed by connection id.
// Sessions register on successful pairing and unregister on disconnect.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]Session)}
}

func (r *SessionRegistry) Put(connectionID string, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[connectionID] = s
}

func (r *SessionRegistry) Get(connectionID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connectionID]
	return s, ok
}

// Remove drops the session and closes it when present.
func (r *SessionRegistry) Remove(connectionID string) {
	r.mu.Lock()
	s, ok := r.sessions[connectionID]
	delete(r.sessions, connectionID)
	r.mu.Unlock()
	if ok {
		_ = s.Close()
	}
}

// LocalSessionTransport delivers through an in-process session held by the
// registry. A missing session means the connection is not paired on this
// node, which is a state problem rather than a config problem.
type LocalSessionTransport struct {
	registry *SessionRegistry
	resolver *ReplyResolver
	logger   *zap.Logger
}

func NewLocalSessionTransport(registry *SessionRegistry, resolver *ReplyResolver, logger *zap.Logger) *LocalSessionTransport {
	return &LocalSessionTransport{registry: registry, resolver: resolver, logger: logger}
}

func (t *LocalSessionTransport) ProviderName() string { return "baileys" }

func (t *LocalSessionTransport) SendText(ctx context.Context, in SendTextInput) (*SentMessage, error) {
	session, address, err := t.prepare(ctx, in.Connection, in.Ticket, in.Contact)
	if err != nil {
		return nil, err
	}
	body := t.expand(in.Body, in.Contact, in.Agent)
	return session.SendText(ctx, address, body)
}

func (t *LocalSessionTransport) SendMedia(ctx context.Context, in SendMediaInput) (*SentMessage, error) {
	session, address, err := t.prepare(ctx, in.Connection, in.Ticket, in.Contact)
	if err != nil {
		return nil, err
	}
	caption := t.expand(in.Caption, in.Contact, in.Agent)
	return session.SendMedia(ctx, address, in.MediaPath, caption)
}

func (t *LocalSessionTransport) prepare(ctx context.Context, conn *domain.Connection, ticket *domain.Ticket, contact *domain.Contact) (Session, string, error) {
	session, ok := t.registry.Get(conn.ID)
	if !ok {
		return nil, "", apperrors.NewNotConnectedError(conn.Name)
	}

	if contact.IsGroup {
		return session, contact.Number, nil
	}

	address, err := t.resolver.Resolve(ctx, ticket.ID, contact.Number)
	if err != nil {
		return nil, "", err
	}
	if address == "" {
		return nil, "", apperrors.NewNoReplyAddressError(contact.Number)
	}
	return session, address, nil
}

func (t *LocalSessionTransport) expand(body string, contact *domain.Contact, agent *domain.User) string {
	tc := TemplateContext{ContactName: contact.Name, Now: time.Now()}
	if agent != nil {
		tc.AgentName = agent.Name
	}
	return FormatBody(body, tc)
}
