package llm

import "context"

// Turn es un intercambio previo en el formato de turnos del proveedor.
type Turn struct {
	Role string
	Text string
}

// Chunk es un fragmento de la respuesta en vivo. Err distinto de nil termina
// el stream; después de un Chunk con Err el canal se cierra.
type Chunk struct {
	Text string
	Err  error
}

// LLMClient define la interfaz para generar respuestas en streaming.
// El canal devuelto es finito y no reiniciable: representa un único stream
// de red. Cancelar ctx corta la generación del lado del proveedor.
type LLMClient interface {
	StreamChat(ctx context.Context, history []Turn, prompt string) (<-chan Chunk, error)
}
