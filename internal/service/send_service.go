package service

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/whatsdesk/internal/domain"
	"github.com/spec-kit/whatsdesk/internal/events"
	"github.com/spec-kit/whatsdesk/internal/observability"
	"github.com/spec-kit/whatsdesk/internal/repository"
	"github.com/spec-kit/whatsdesk/internal/whatsapp"
	apperrors "github.com/spec-kit/whatsdesk/pkg/util"
)

// SendService delivers agent messages on a ticket: it selects the usable
// connection, hands delivery to the transport and records the sent message
// so the conversation history and ack tracking line up with inbound traffic.
type SendService struct {
	tickets    repository.TicketRepository
	contacts   repository.ContactRepository
	messages   repository.MessageRepository
	selector   *whatsapp.ProviderSelector
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

func NewSendService(
	tickets repository.TicketRepository,
	contacts repository.ContactRepository,
	messages repository.MessageRepository,
	selector *whatsapp.ProviderSelector,
	dispatcher events.Dispatcher,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *SendService {
	return &SendService{
		tickets:    tickets,
		contacts:   contacts,
		messages:   messages,
		selector:   selector,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
	}
}

// SendTextInput is an agent-initiated text send.
type SendTextInput struct {
	TicketID    string
	Body        string
	Agent       *domain.User
	QuotedMsgID *string
}

// SendMediaInput is an agent-initiated media send. MediaPath must point at a
// locally stored file.
type SendMediaInput struct {
	TicketID  string
	MediaPath string
	MediaKind domain.MediaKind
	Caption   string
	Agent     *domain.User
}

// SendText delivers and records a text message.
func (s *SendService) SendText(ctx context.Context, tenantID int64, in SendTextInput) (*domain.Message, error) {
	if in.Body == "" {
		return nil, apperrors.NewValidationError("message body is required", nil)
	}

	ticket, contact, conn, transport, err := s.prepare(ctx, tenantID, in.TicketID)
	if err != nil {
		return nil, err
	}

	var quoted *domain.Message
	if in.QuotedMsgID != nil {
		quoted, err = s.messages.GetByID(ctx, tenantID, *in.QuotedMsgID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}

	sent, err := transport.SendText(ctx, whatsapp.SendTextInput{
		Connection: conn,
		Ticket:     ticket,
		Contact:    contact,
		Agent:      in.Agent,
		Body:       in.Body,
		Quoted:     quoted,
	})
	if err != nil {
		s.recordSendMetric(transport.ProviderName(), err)
		return nil, err
	}
	s.metrics.RecordSend(transport.ProviderName(), "ok")

	return s.record(ctx, tenantID, ticket, contact, sent, in.Body, domain.MediaNone, "", in.QuotedMsgID)
}

// SendMedia delivers and records a media message.
func (s *SendService) SendMedia(ctx context.Context, tenantID int64, in SendMediaInput) (*domain.Message, error) {
	if in.MediaPath == "" {
		return nil, apperrors.NewValidationError("media path is required", nil)
	}

	ticket, contact, conn, transport, err := s.prepare(ctx, tenantID, in.TicketID)
	if err != nil {
		return nil, err
	}

	sent, err := transport.SendMedia(ctx, whatsapp.SendMediaInput{
		Connection: conn,
		Ticket:     ticket,
		Contact:    contact,
		Agent:      in.Agent,
		MediaPath:  in.MediaPath,
		MediaKind:  in.MediaKind,
		FileName:   filepath.Base(in.MediaPath),
		Caption:    in.Caption,
	})
	if err != nil {
		s.recordSendMetric(transport.ProviderName(), err)
		return nil, err
	}
	s.metrics.RecordSend(transport.ProviderName(), "ok")

	body := in.Caption
	if body == "" {
		body = filepath.Base(in.MediaPath)
	}
	return s.record(ctx, tenantID, ticket, contact, sent, body, in.MediaKind, in.MediaPath, nil)
}

func (s *SendService) prepare(ctx context.Context, tenantID int64, ticketID string) (*domain.Ticket, *domain.Contact, *domain.Connection, whatsapp.Transport, error) {
	ticket, err := s.tickets.GetByID(ctx, tenantID, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil, nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, nil, nil, nil, err
	}

	contact, err := s.contacts.GetByID(ctx, tenantID, ticket.ContactID)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	conn, transport, err := s.selector.Select(ctx, tenantID, ticket)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return ticket, contact, conn, transport, nil
}

func (s *SendService) record(ctx context.Context, tenantID int64, ticket *domain.Ticket, contact *domain.Contact, sent *whatsapp.SentMessage, body string, kind domain.MediaKind, mediaURL string, quotedID *string) (*domain.Message, error) {
	id := sent.ID
	if id == "" {
		id = uuid.NewString()
	}
	msg := &domain.Message{
		ID:          id,
		TenantID:    tenantID,
		TicketID:    ticket.ID,
		ContactID:   &contact.ID,
		Body:        body,
		FromMe:      true,
		Read:        true,
		MediaKind:   kind,
		MediaURL:    mediaURL,
		QuotedMsgID: quotedID,
		Ack:         sent.Ack,
		RemoteJid:   sent.RemoteJid,
		CreatedAt:   time.Now(),
	}
	if _, err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	if err := s.tickets.UpdateSummary(ctx, tenantID, ticket.ID, body, 0); err != nil {
		return nil, err
	}
	ticket.LastMessage = body

	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventMessageCreated,
		TenantID:  tenantID,
		Timestamp: time.Now(),
		Payload:   events.MessageCreatedPayload{Message: msg, Ticket: ticket, Contact: contact},
	})
	return msg, nil
}

func (s *SendService) recordSendMetric(provider string, err error) {
	var derr *apperrors.DomainError
	code := "error"
	if errors.As(err, &derr) {
		code = derr.Code
	}
	s.metrics.RecordSend(provider, code)
}
