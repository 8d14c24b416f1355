package service

import (
	"context"
	"fmt"
	"strings"

	"profense_backend/internal/util"
)

// StreamingModelClient extends the model collaborator with incremental
// delivery for the quick-ask surface.
type StreamingModelClient interface {
	ModelClient
	ChatStream(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, <-chan error)
}

// QAService answers one-off questions with no session state. Every
// question still passes the safety filter before reaching the model.
type QAService struct {
	model  StreamingModelClient
	safety *SafetyFilter
}

func NewQAService(model StreamingModelClient, safety *SafetyFilter) *QAService {
	return &QAService{model: model, safety: safety}
}

type QuickAskRequest struct {
	Question string `json:"question" binding:"required"`
	Subject  string `json:"subject"`
}

type QuickAskResult struct {
	Answer string        `json:"answer"`
	Safety *SafetyResult `json:"safety,omitempty"`
}

func (s *QAService) Ask(ctx context.Context, req QuickAskRequest) (*QuickAskResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", util.ErrValidation)
	}
	if verdict := s.safety.Classify(question); !verdict.Approved {
		return &QuickAskResult{
			Answer: "I can't help with that. Try asking something related to your studies.",
			Safety: &verdict,
		}, nil
	}

	answer, err := s.model.Chat(ctx, quickAskPrompt(req.Subject), question)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(answer) == "" {
		answer = fallbackReply
	}
	return &QuickAskResult{Answer: answer}, nil
}

// AskStream streams the answer in chunks. A safety rejection yields a
// single chunk with the refusal text and a nil error.
func (s *QAService) AskStream(ctx context.Context, req QuickAskRequest) (<-chan string, <-chan error, *SafetyResult) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		errs := make(chan error, 1)
		errs <- fmt.Errorf("%w: question is required", util.ErrValidation)
		close(errs)
		closed := make(chan string)
		close(closed)
		return closed, errs, nil
	}
	if verdict := s.safety.Classify(question); !verdict.Approved {
		chunks := make(chan string, 1)
		chunks <- "I can't help with that. Try asking something related to your studies."
		close(chunks)
		errs := make(chan error)
		close(errs)
		return chunks, errs, &verdict
	}

	chunks, errs := s.model.ChatStream(ctx, quickAskPrompt(req.Subject), question)
	return chunks, errs, nil
}

func quickAskPrompt(subject string) string {
	if subject = strings.TrimSpace(subject); subject != "" {
		return fmt.Sprintf("You are a concise %s tutor. Answer the question clearly in a few short paragraphs.", subject)
	}
	return "You are a concise tutor. Answer the question clearly in a few short paragraphs."
}
