package flow

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/semihsipahi/climblearn-api/internal/domain"
	"github.com/semihsipahi/climblearn-api/internal/workflow"
)

// affirmativeMarkers move a ready_check session forward when found in the
// learner's lowercased reply.
var affirmativeMarkers = []string{"evet", "hazırım", "yes", "ready"}

func (o *Orchestrator) welcome(ctx context.Context, s *domain.LearningSession, input map[string]any) (*Result, error) {
	topic := firstNonEmpty(stringField(input, "topic"), o.defaultTopic)
	name := firstNonEmpty(s.StudentName, o.defaultName)

	out, err := o.invokeText(ctx, s, workflow.FlowWelcoming, map[string]any{"topic": topic, "name": name})
	if err != nil {
		return nil, err
	}

	s.CurrentStage = domain.StageReadyCheck
	return o.explain(ctx, s, domain.StageWelcoming, workflow.FlowWelcoming, input, out.Text)
}

func (o *Orchestrator) readyCheck(ctx context.Context, s *domain.LearningSession, input map[string]any) (*Result, error) {
	normalized := normalizeReply(input)

	out, err := o.invokeText(ctx, s, workflow.FlowReadyCheck, map[string]any{"available": normalized})
	if err != nil {
		return nil, err
	}

	if isAffirmative(normalized) {
		s.CurrentStage = domain.StageTopicInit
	}
	return o.explain(ctx, s, domain.StageReadyCheck, workflow.FlowReadyCheck, input, out.Text)
}

func (o *Orchestrator) topicInit(ctx context.Context, s *domain.LearningSession, input map[string]any) (*Result, error) {
	// Set in memory only; a failed call below leaves them unsaved.
	s.TopicName = firstNonEmpty(stringField(input, "topic"), o.defaultTopic)
	s.StudentName = firstNonEmpty(stringField(input, "name"), s.StudentName, o.defaultName)

	out, err := o.invokeText(ctx, s, workflow.FlowTopicInit, map[string]any{"topic": s.TopicName, "name": s.StudentName})
	if err != nil {
		return nil, err
	}

	s.CurrentStage = domain.StageSeparation
	return o.explain(ctx, s, domain.StageTopicInit, workflow.FlowTopicInit, input, out.Text)
}

// separate decomposes the topic into subtopics and cascades straight into
// the first question.
func (o *Orchestrator) separate(ctx context.Context, s *domain.LearningSession) (*Result, error) {
	topic := firstNonEmpty(s.TopicName, o.defaultTopic)

	out, err := o.invokeText(ctx, s, workflow.FlowSeparation, map[string]any{"topic": topic})
	if err != nil {
		return nil, err
	}

	s.SubTopics = ParseTopics(out.Text)
	s.CurrentSubTopicIndex = 0
	s.CurrentStage = domain.StageLearning
	o.logger.Debug("Topic separated", "session_id", s.ID, "sub_topics", len(s.SubTopics))

	// Nothing to ask about. The session stays in learning and the next step
	// completes it.
	if len(s.SubTopics) == 0 {
		return o.explain(ctx, s, domain.StageSeparation, workflow.FlowSeparation, map[string]any{"topic": topic}, out.Text)
	}
	return o.issueQuestion(ctx, s, domain.StageSeparation)
}

// learn scores the learner's answer, then either re-teaches the current
// subtopic or moves to the next one.
func (o *Orchestrator) learn(ctx context.Context, s *domain.LearningSession, input map[string]any) (*Result, error) {
	if s.Exhausted() {
		return o.issueQuestion(ctx, s, domain.StageLearning)
	}

	topic := s.CurrentSubTopic()
	answer := firstNonEmpty(stringField(input, "answer"), stringField(input, "text"))

	out, err := o.gateway.Invoke(ctx, workflow.FlowAnswer, map[string]any{
		"topic":    topic,
		"question": s.Metadata.LastQuestion,
		"answer":   answer,
	}, s.CallerIdentity(), "")
	if err != nil {
		return nil, err
	}
	score, ok := extractScore(out)
	if !ok {
		return nil, &workflow.GatewayError{Flow: workflow.FlowAnswer, Message: "workflow output has no score"}
	}
	s.Metadata.Scores = append(s.Metadata.Scores, score)

	if score < PassingScore {
		lesson, err := o.invokeText(ctx, s, workflow.FlowReLesson, map[string]any{"topic": topic})
		if err != nil {
			return nil, err
		}
		if err := o.save(ctx, s, domain.StageLearning); err != nil {
			return nil, err
		}
		if err := o.record(ctx, domain.InteractionLog{
			SessionID: s.ID,
			Type:      domain.LogTypeEvaluation,
			Prompt:    echo(input),
			Response:  lesson.Text,
			FlowID:    string(workflow.FlowReLesson),
		}); err != nil {
			return nil, err
		}
		return &Result{
			Text:         lesson.Text,
			Stage:        domain.StageLearning,
			CurrentTopic: topic,
			Score:        &score,
			Status:       StatusRetry,
			Message:      RetryMessage,
		}, nil
	}

	s.CurrentSubTopicIndex++
	res, err := o.issueQuestion(ctx, s, domain.StageLearning)
	if err != nil {
		return nil, err
	}
	res.Score = &score
	return res, nil
}

// normalizeReply turns the ready_check input into lowercase text. The "text"
// field is used when present; any other input is rendered as JSON.
func normalizeReply(input map[string]any) string {
	reply := stringField(input, "text")
	if reply == "" {
		if _, ok := input["text"]; !ok && len(input) > 0 {
			reply = echo(input)
		}
	}
	return cases.Lower(language.Turkish).String(reply)
}

// isAffirmative expects text already lowercased by normalizeReply.
func isAffirmative(normalized string) bool {
	for _, marker := range affirmativeMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
