package domain

import "time"

// Roles de mensaje. "model" es el nombre que usa el proveedor generativo
// para sus propios turnos.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ValidRole indica si un rol pertenece al conjunto aceptado.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleModel
}

// Conversation es una colección titulada y ordenada de mensajes de un usuario.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationSummary es la vista id+título usada para listar el historial.
type ConversationSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Message es un turno individual dentro de una conversación. No tiene
// identidad propia: su orden es la posición de inserción.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
