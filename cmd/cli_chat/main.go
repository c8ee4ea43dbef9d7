package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"gemchat/internal/config"
	"gemchat/internal/db"
	"gemchat/internal/domain"
	"gemchat/internal/llm"
	"gemchat/internal/repository"
	"gemchat/internal/service"
)

// Cliente de terminal para probar el flujo de chat contra la base real sin
// levantar el servidor HTTP.
func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	if err := db.Migrate(ctx, cfg.DatabaseURL); err != nil {
		log.Fatal(err)
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	userRepo := repository.NewPgUserRepository(pool)
	convRepo := repository.NewPgConversationRepository(pool)

	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger)
	userSvc := service.NewUserService(logger, userRepo, service.NewLoginRateLimiter(10*time.Minute, 10))
	chatSvc := service.NewChatService(logger, llmClient, convRepo)

	user, err := ensureUser(ctx, userRepo, userSvc, "cli_test@example.com")
	if err != nil {
		log.Fatal(err)
	}

	conv, err := pickConversation(ctx, reader, chatSvc, user.ID)
	if err != nil {
		log.Fatal(err)
	}

	history := conv.Messages
	conversationID := conv.ID

	fmt.Println("Escribe tu mensaje. /exit para salir.")
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		prompt := strings.TrimSpace(line)
		if prompt == "" {
			continue
		}
		if prompt == "/exit" {
			return
		}

		stream, err := chatSvc.StartTurn(ctx, service.TurnInput{
			UserID:         user.ID,
			ConversationID: conversationID,
			History:        history,
			Prompt:         prompt,
		})
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		conversationID = stream.ConversationID

		var response strings.Builder
		streamFailed := false
		for chunk := range stream.Chunks {
			if chunk.Err != nil {
				fmt.Printf("\nstream error: %v\n", chunk.Err)
				streamFailed = true
				break
			}
			fmt.Print(chunk.Text)
			response.WriteString(chunk.Text)
		}
		fmt.Println()

		if streamFailed {
			continue
		}
		history = append(history,
			domain.Message{Role: domain.RoleUser, Content: prompt},
			domain.Message{Role: domain.RoleModel, Content: response.String()},
		)
	}
}

// ensureUser busca el usuario de pruebas y lo registra si no existe.
func ensureUser(ctx context.Context, users repository.UserRepository, userSvc *service.UserService, email string) (domain.User, error) {
	user, err := users.GetByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}
	return userSvc.Register(ctx, service.RegisterInput{
		Name:     "CLI Test",
		Email:    email,
		Password: "cli-test-password",
	})
}

// pickConversation lista las conversaciones del usuario y deja elegir una o
// empezar de cero. Devuelve la conversación con mensajes cargados, o una
// vacía si el turno siguiente debe crearla.
func pickConversation(ctx context.Context, reader *bufio.Reader, chatSvc *service.ChatService, userID string) (domain.Conversation, error) {
	summaries, err := chatSvc.ListConversations(ctx, userID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if len(summaries) == 0 {
		fmt.Println("Sin conversaciones previas, se creará una nueva.")
		return domain.Conversation{}, nil
	}

	fmt.Println("Conversaciones:")
	fmt.Println("  0) nueva conversación")
	for i, s := range summaries {
		fmt.Printf("  %d) %s\n", i+1, s.Title)
	}

	for {
		fmt.Print("Elige: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return domain.Conversation{}, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || n < 0 || n > len(summaries) {
			fmt.Println("Opción inválida.")
			continue
		}
		if n == 0 {
			return domain.Conversation{}, nil
		}
		return chatSvc.GetConversation(ctx, summaries[n-1].ID, userID)
	}
}
