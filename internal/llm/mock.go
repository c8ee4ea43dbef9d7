package llm

import "context"

// MockClient permite tests sin llamar a un LLM real. Emite Chunks como un
// stream finito y registra la última llamada.
type MockClient struct {
	Chunks  []string
	Err     error
	OpenErr error

	Calls       int
	LastHistory []Turn
	LastPrompt  string
}

func (m *MockClient) StreamChat(ctx context.Context, history []Turn, prompt string) (<-chan Chunk, error) {
	m.Calls++
	m.LastHistory = history
	m.LastPrompt = prompt

	if m.OpenErr != nil {
		return nil, m.OpenErr
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		for _, text := range m.Chunks {
			select {
			case out <- Chunk{Text: text}:
			case <-ctx.Done():
				return
			}
		}
		if m.Err != nil {
			select {
			case out <- Chunk{Err: m.Err}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}
