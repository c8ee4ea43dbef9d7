package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gemchat/internal/domain"
)

// ConversationRepository define el contrato de persistencia para
// conversaciones y sus mensajes.
type ConversationRepository interface {
	Create(ctx context.Context, conv domain.Conversation) error
	// GetByUser devuelve la conversación sólo si pertenece al usuario.
	GetByUser(ctx context.Context, id, userID string) (domain.Conversation, error)
	ListByUserID(ctx context.Context, userID string) ([]domain.ConversationSummary, error)
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
	// AppendTurn agrega el par usuario/modelo al final de la conversación en
	// una sola transacción. No deduplica: dos llamadas iguales agregan dos pares.
	AppendTurn(ctx context.Context, conversationID, prompt, response string) error
}

// PgConversationRepository implementa ConversationRepository usando pgxpool.
type PgConversationRepository struct {
	pool *pgxpool.Pool
}

func NewPgConversationRepository(pool *pgxpool.Pool) *PgConversationRepository {
	return &PgConversationRepository{pool: pool}
}

func (r *PgConversationRepository) Create(ctx context.Context, conv domain.Conversation) error {
	const query = `
		INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		conv.ID,
		conv.UserID,
		conv.Title,
		conv.CreatedAt,
		conv.UpdatedAt,
	)
	return err
}

func (r *PgConversationRepository) GetByUser(ctx context.Context, id, userID string) (domain.Conversation, error) {
	const query = `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND user_id = $2
	`
	var conv domain.Conversation
	err := r.pool.QueryRow(ctx, query, id, userID).Scan(
		&conv.ID,
		&conv.UserID,
		&conv.Title,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Conversation{}, err
	}
	return conv, err
}

func (r *PgConversationRepository) ListByUserID(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	const query = `
		SELECT id, title
		FROM conversations
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []domain.ConversationSummary
	for rows.Next() {
		var s domain.ConversationSummary
		if err := rows.Scan(&s.ID, &s.Title); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (r *PgConversationRepository) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	const query = `
		SELECT role, content
		FROM messages
		WHERE conversation_id = $1
		ORDER BY position ASC
	`
	rows, err := r.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.Role, &msg.Content); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *PgConversationRepository) AppendTurn(ctx context.Context, conversationID, prompt, response string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// La posición siguiente se calcula dentro de la transacción; el PK
	// (conversation_id, position) evita huecos silenciosos ante concurrencia.
	var next int
	const posQuery = `
		SELECT COALESCE(MAX(position), 0)
		FROM messages
		WHERE conversation_id = $1
	`
	if err := tx.QueryRow(ctx, posQuery, conversationID).Scan(&next); err != nil {
		return err
	}

	const insertQuery = `
		INSERT INTO messages (conversation_id, position, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, insertQuery, conversationID, next+1, domain.RoleUser, prompt, now); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, insertQuery, conversationID, next+2, domain.RoleModel, response, now); err != nil {
		return err
	}

	const touchQuery = `UPDATE conversations SET updated_at = $2 WHERE id = $1`
	if _, err := tx.Exec(ctx, touchQuery, conversationID, now); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
