package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/forkchat/forkchat/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const systemPrompt = `You are a helpful, intelligent and efficient AI assistant. You always answer the user's requests to the best of your ability.`

const generateTimeout = 120 * time.Second

type Service struct {
	llm llms.Model
}

func New(baseURL, token, model string) (*Service, error) {
	llm, err := openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, err
	}
	return &Service{llm: llm}, nil
}

// BuildPrompt renders the llama3 chat framing around the user-facts fragment
// and the budgeted history. Each history message carries the same fixed
// header overhead the context assembler charges it for.
func BuildPrompt(userContext string, history []models.Message, userMessage string) string {
	var b strings.Builder
	b.WriteString("<|start_header_id|>system<|end_header_id|>\n")
	b.WriteString(systemPrompt)
	b.WriteString("\n<|eot_id|>\n\n")
	if userContext != "" {
		b.WriteString(userContext)
		b.WriteString("\n")
	}
	for _, msg := range history {
		fmt.Fprintf(&b, "<|start_header_id|>%s<|end_header_id|>%s<|eot_id|>\n", msg.Role, msg.Content)
	}
	fmt.Fprintf(&b, "\n<|start_header_id|>user<|end_header_id|>%s<|eot_id|>\n", userMessage)
	b.WriteString("<|start_header_id|>assistant<|end_header_id|>")
	return b.String()
}

// Generate streams a completion for the prompt, invoking onChunk for each
// piece of generated text, and returns the cleaned full response.
func (s *Service) Generate(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	completion, err := llms.GenerateFromSinglePrompt(ctx, s.llm, prompt,
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if onChunk != nil && len(chunk) > 0 {
				onChunk(string(chunk))
			}
			return nil
		}))
	if err != nil {
		return "", fmt.Errorf("failed to generate completion: %w", err)
	}
	return Clean(completion), nil
}

// Clean strips any chat-template tokens the model echoes back.
func Clean(completion string) string {
	if i := strings.Index(completion, "<|eot_id|>"); i >= 0 {
		completion = completion[:i]
	}
	for {
		start := strings.Index(completion, "<|start_header_id|>")
		if start < 0 {
			break
		}
		end := strings.Index(completion[start:], "<|end_header_id|>")
		if end < 0 {
			break
		}
		completion = completion[:start] + completion[start+end+len("<|end_header_id|>"):]
	}
	return strings.TrimSpace(completion)
}
