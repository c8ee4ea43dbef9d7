package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gemchat/internal/domain"
	"gemchat/internal/llm"
	"gemchat/internal/repository"
)

// ChatService orquesta un turno de conversación: valida el prompt, asegura
// que exista la conversación antes de abrir el stream del proveedor, reenvía
// los fragmentos en orden y persiste el par usuario/modelo al completarse.
type ChatService struct {
	logger    *zap.Logger
	llmClient llm.LLMClient
	convs     repository.ConversationRepository
}

func NewChatService(logger *zap.Logger, llmClient llm.LLMClient, convs repository.ConversationRepository) *ChatService {
	return &ChatService{
		logger:    logger,
		llmClient: llmClient,
		convs:     convs,
	}
}

var (
	ErrPromptRequired       = errors.New("prompt is required")
	ErrConversationNotFound = errors.New("conversation not found")
)

// titleMaxRunes limita el título derivado del primer prompt.
const titleMaxRunes = 30

// TurnInput agrupa los datos de un turno entrante.
type TurnInput struct {
	UserID         string
	ConversationID string
	History        []domain.Message
	Prompt         string
}

// TurnStream es el contrato entre el orquestador y el relay HTTP: el id de la
// conversación está disponible antes del primer fragmento y el canal entrega
// los fragmentos en orden hasta cerrarse. Un Chunk con Err termina el stream
// sin persistir.
type TurnStream struct {
	ConversationID  string
	NewConversation bool
	Chunks          <-chan llm.Chunk
}

// StartTurn ejecuta los pasos previos al streaming y lanza la goroutine que
// acompaña el stream hasta su persistencia. Si devuelve error no se abrió
// ningún stream ni se escribió nada.
func (s *ChatService) StartTurn(ctx context.Context, input TurnInput) (*TurnStream, error) {
	if s == nil || s.llmClient == nil || s.convs == nil {
		return nil, errors.New("chat service not configured")
	}
	if strings.TrimSpace(input.Prompt) == "" {
		return nil, ErrPromptRequired
	}

	conversationID := strings.TrimSpace(input.ConversationID)
	newConversation := conversationID == ""

	if newConversation {
		now := time.Now().UTC()
		conv := domain.Conversation{
			ID:        uuid.NewString(),
			UserID:    input.UserID,
			Title:     DeriveTitle(input.Prompt),
			CreatedAt: now,
			UpdatedAt: now,
		}
		// La conversación se crea antes de abrir el stream: el caller
		// necesita el id aunque el contenido aún no exista.
		if err := s.convs.Create(ctx, conv); err != nil {
			return nil, err
		}
		conversationID = conv.ID
	} else {
		if _, err := s.convs.GetByUser(ctx, conversationID, input.UserID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrConversationNotFound
			}
			return nil, err
		}
	}

	history := make([]llm.Turn, 0, len(input.History))
	for _, msg := range input.History {
		history = append(history, llm.Turn{Role: msg.Role, Text: msg.Content})
	}

	providerChunks, err := s.llmClient.StreamChat(ctx, history, input.Prompt)
	if err != nil {
		return nil, err
	}

	out := make(chan llm.Chunk)
	go s.relayAndPersist(ctx, conversationID, input.Prompt, providerChunks, out)

	return &TurnStream{
		ConversationID:  conversationID,
		NewConversation: newConversation,
		Chunks:          out,
	}, nil
}

// relayAndPersist reenvía cada fragmento apenas llega, acumula el texto
// completo y, si el stream terminó bien, escribe el par de mensajes. El canal
// de salida se cierra recién después del intento de persistencia para que el
// caller observe un turno completamente terminado.
func (s *ChatService) relayAndPersist(ctx context.Context, conversationID, prompt string, in <-chan llm.Chunk, out chan<- llm.Chunk) {
	defer close(out)

	var full strings.Builder
	for chunk := range in {
		select {
		case out <- chunk:
		case <-ctx.Done():
			return
		}
		if chunk.Err != nil {
			s.logger.Error("provider stream failed",
				zap.String("conversation_id", conversationID),
				zap.Error(chunk.Err),
			)
			return
		}
		full.WriteString(chunk.Text)
	}

	if ctx.Err() != nil {
		// El cliente se desconectó: el turno quedó incompleto y no se guarda.
		return
	}

	// La escritura no depende del contexto del request; para este punto el
	// cliente ya recibió el texto completo.
	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.convs.AppendTurn(persistCtx, conversationID, prompt, full.String()); err != nil {
		s.logger.Error("persist turn failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
}

// DeriveTitle produce el título de una conversación nueva a partir del primer
// prompt: los primeros 30 caracteres más "..." si hubo recorte.
func DeriveTitle(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= titleMaxRunes {
		return prompt
	}
	return string(runes[:titleMaxRunes]) + "..."
}

// ListConversations devuelve los resúmenes id+título del usuario, de la más
// reciente a la más antigua.
func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	if s == nil || s.convs == nil {
		return nil, errors.New("chat service not configured")
	}
	return s.convs.ListByUserID(ctx, userID)
}

// GetConversation devuelve la conversación con sus mensajes ordenados, sólo
// si pertenece al usuario.
func (s *ChatService) GetConversation(ctx context.Context, id, userID string) (domain.Conversation, error) {
	if s == nil || s.convs == nil {
		return domain.Conversation{}, errors.New("chat service not configured")
	}
	conv, err := s.convs.GetByUser(ctx, id, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Conversation{}, ErrConversationNotFound
		}
		return domain.Conversation{}, err
	}
	messages, err := s.convs.ListMessages(ctx, id)
	if err != nil {
		return domain.Conversation{}, err
	}
	conv.Messages = messages
	return conv, nil
}
