// Package ai adapts the Ark chat model into the stream-oriented generation
// engine consumed by the HTTP layer. The model runs inside a ReAct agent so
// it can call the registered lookup tools mid-generation.
package ai

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"

	"github.com/liangxiao/meya/backend/internal/config"
	"github.com/liangxiao/meya/backend/internal/model/chat"
)

// historyWindow caps how many transcript messages feed the model's
// conversational memory on each turn.
const historyWindow = 30

const systemPromptTemplate = "Your name is Meya, and you serve as an intelligent train ticketing assistant, " +
	"offering users precise and error-free responses. If you are uncertain or don't know, please reply clearly " +
	"and refrain from fabricating or providing irrelevant answers. The current time is %s."

// Service drives one generation invocation per conversation turn.
type Service struct {
	agent *react.Agent
	cfg   config.AIConfig
}

// NewService builds the chat model from configuration and wraps it in a
// ReAct agent carrying the provided tools.
func NewService(ctx context.Context, cfg config.AIConfig, tools []tool.BaseTool) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	agent, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: chatModel,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: tools,
		},
		MaxStep: cfg.MaxSteps,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build agent: %w", err)
	}

	return &Service{agent: agent, cfg: cfg}, nil
}

// Stream produces the incremental model output for one session turn. The
// caller owns the returned reader and must close it on every exit path.
func (s *Service) Stream(ctx context.Context, sessionID string, history []chat.Message, userMessage string) (*schema.StreamReader[*schema.Message], error) {
	input := make([]*schema.Message, 0, historyWindow+2)
	input = append(input, schema.SystemMessage(fmt.Sprintf(systemPromptTemplate, time.Now().Format(time.RFC3339))))
	input = append(input, buildHistoryMessages(history)...)
	input = append(input, schema.UserMessage(userMessage))

	stream, err := s.agent.Stream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to stream agent output: %w", err)
	}

	log.Printf("[ai] streaming response for session=%s, history=%d", sessionID, len(history))
	return stream, nil
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyWindow {
		startIdx = len(messages) - historyWindow
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Sender {
		case "user":
			history = append(history, schema.UserMessage(msg.Content))
		case "assistant":
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
