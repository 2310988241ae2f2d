// Package flow drives a learning session through its stages.
package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/semihsipahi/climblearn-api/internal/domain"
	"github.com/semihsipahi/climblearn-api/internal/store"
	"github.com/semihsipahi/climblearn-api/internal/workflow"
)

const (
	DefaultTopic       = "Temel İlk Yardım Eğitimi"
	DefaultStudentName = "Öğrenci"

	// PassingScore is the lowest score that advances to the next subtopic.
	PassingScore = 5

	CompletionText = "Eğitimi başarıyla tamamladın!"
	RetryMessage   = "Puan düşük, konuyu tekrar ele alıyoruz."

	StatusRetry     = "retry"
	StatusCompleted = "completed"
)

// Gateway invokes one external workflow.
type Gateway interface {
	Invoke(ctx context.Context, flow workflow.Flow, inputs map[string]any, user, conversationID string) (workflow.Output, error)
}

// SessionStore is the session persistence the orchestrator needs.
type SessionStore interface {
	CreateSession(ctx context.Context, session *domain.LearningSession) error
	GetSession(ctx context.Context, id string) (*domain.LearningSession, error)
	SaveSession(ctx context.Context, session *domain.LearningSession) error
}

// LogRecorder stores interaction logs.
type LogRecorder interface {
	Record(ctx context.Context, entry domain.InteractionLog) (domain.InteractionLog, error)
}

// StartRequest carries the caller-supplied fields for a new session.
type StartRequest struct {
	ExternalStudentID string `json:"externalStudentId"`
	StudentName       string `json:"studentName,omitempty"`
	Topic             string `json:"topic,omitempty"`
}

// Result is what a start or step returns to the caller.
type Result struct {
	SessionID    string       `json:"sessionId"`
	Text         string       `json:"text"`
	Stage        domain.Stage `json:"stage"`
	CurrentTopic string       `json:"currentTopic,omitempty"`
	Score        *int         `json:"score,omitempty"`
	Status       string       `json:"status,omitempty"`
	Message      string       `json:"message,omitempty"`
}

// Orchestrator owns session progression. Each Step loads the session,
// executes the logic of its current stage and persists the result.
type Orchestrator struct {
	store   SessionStore
	gateway Gateway
	logs    LogRecorder
	logger  *slog.Logger
	metrics *Metrics

	defaultTopic string
	defaultName  string

	// stepLocks rejects a second concurrent step for the same session.
	stepLocks sync.Map
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDefaults overrides the topic and student name used when the caller
// supplies none. Empty values keep the built-in defaults.
func WithDefaults(topic, studentName string) Option {
	return func(o *Orchestrator) {
		if t := strings.TrimSpace(topic); t != "" {
			o.defaultTopic = t
		}
		if n := strings.TrimSpace(studentName); n != "" {
			o.defaultName = n
		}
	}
}

// New creates an Orchestrator.
func New(sessions SessionStore, gateway Gateway, logs LogRecorder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        sessions,
		gateway:      gateway,
		logs:         logs,
		logger:       slog.Default(),
		metrics:      NewMetrics(),
		defaultTopic: DefaultTopic,
		defaultName:  DefaultStudentName,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start creates a session and immediately runs its welcoming stage.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (*Result, error) {
	session := domain.NewLearningSession(strings.TrimSpace(req.ExternalStudentID), strings.TrimSpace(req.StudentName))
	if err := o.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	o.logger.Info("Learning session created", "session_id", session.ID, "external_student_id", session.ExternalStudentID)

	input := map[string]any{}
	if topic := strings.TrimSpace(req.Topic); topic != "" {
		input["topic"] = topic
	}
	return o.step(ctx, session.ID, input)
}

// Step executes the current stage of the session with the caller's input.
func (o *Orchestrator) Step(ctx context.Context, sessionID string, input map[string]any) (*Result, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.Required("sessionId")
	}
	if input == nil {
		input = map[string]any{}
	}
	return o.step(ctx, sessionID, input)
}

func (o *Orchestrator) step(ctx context.Context, sessionID string, input map[string]any) (*Result, error) {
	lock, _ := o.stepLocks.LoadOrStore(sessionID, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	if !mutex.TryLock() {
		o.logger.Warn("Step already in progress", "session_id", sessionID)
		return nil, ErrStepInProgress
	}
	// A mutex already removed from the map belongs to a finished step; a
	// newer one may be held under the same id.
	if current, ok := o.stepLocks.Load(sessionID); !ok || current != lock {
		mutex.Unlock()
		o.logger.Warn("Step already in progress", "session_id", sessionID)
		return nil, ErrStepInProgress
	}
	defer func() {
		// Remove before unlocking so the stale mutex fails the check above.
		o.stepLocks.Delete(sessionID)
		mutex.Unlock()
	}()

	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	from := session.CurrentStage
	res, err := o.dispatch(ctx, session, input)
	if err != nil {
		o.metrics.StepErrorsTotal.WithLabelValues(string(from)).Inc()
		o.logger.Error("Learning step failed", "session_id", sessionID, "stage", from, "error", err)
		return nil, err
	}
	res.SessionID = session.ID
	return res, nil
}

// dispatch runs the handler for the session's current stage. Every
// domain.Stage must have a case here.
func (o *Orchestrator) dispatch(ctx context.Context, s *domain.LearningSession, input map[string]any) (*Result, error) {
	switch s.CurrentStage {
	case domain.StageWelcoming:
		return o.welcome(ctx, s, input)
	case domain.StageReadyCheck:
		return o.readyCheck(ctx, s, input)
	case domain.StageTopicInit:
		return o.topicInit(ctx, s, input)
	case domain.StageSeparation:
		return o.separate(ctx, s)
	case domain.StageLearning:
		return o.learn(ctx, s, input)
	case domain.StageCompleted:
		return completed(nil), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, s.CurrentStage)
	}
}

// invokeText calls flow and requires a non-empty text output.
func (o *Orchestrator) invokeText(ctx context.Context, s *domain.LearningSession, flow workflow.Flow, inputs map[string]any) (workflow.Output, error) {
	out, err := o.gateway.Invoke(ctx, flow, inputs, s.CallerIdentity(), "")
	if err != nil {
		return workflow.Output{}, err
	}
	if strings.TrimSpace(out.Text) == "" {
		return workflow.Output{}, &workflow.GatewayError{Flow: flow, Message: "workflow returned no text"}
	}
	return out, nil
}

// save persists s and counts the transition from the stage it was loaded in.
func (o *Orchestrator) save(ctx context.Context, s *domain.LearningSession, from domain.Stage) error {
	if err := o.store.SaveSession(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	o.metrics.TransitionsTotal.WithLabelValues(string(from), string(s.CurrentStage)).Inc()
	o.logger.Info("Learning session advanced",
		"session_id", s.ID,
		"from", from,
		"to", s.CurrentStage,
		"sub_topic_index", s.CurrentSubTopicIndex)
	return nil
}

func (o *Orchestrator) record(ctx context.Context, entry domain.InteractionLog) error {
	if _, err := o.logs.Record(ctx, entry); err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}
	return nil
}

// explain persists a plain stage transition and writes its explanation log.
func (o *Orchestrator) explain(ctx context.Context, s *domain.LearningSession, from domain.Stage, flow workflow.Flow, input map[string]any, text string) (*Result, error) {
	if err := o.save(ctx, s, from); err != nil {
		return nil, err
	}
	if err := o.record(ctx, domain.InteractionLog{
		SessionID: s.ID,
		Type:      domain.LogTypeExplanation,
		Prompt:    echo(input),
		Response:  text,
		FlowID:    string(flow),
	}); err != nil {
		return nil, err
	}
	return &Result{Text: text, Stage: s.CurrentStage}, nil
}

// issueQuestion asks the question for the current subtopic, or completes the
// session when the cursor has passed the last subtopic.
func (o *Orchestrator) issueQuestion(ctx context.Context, s *domain.LearningSession, from domain.Stage) (*Result, error) {
	if s.Exhausted() {
		s.Complete()
		if err := o.save(ctx, s, from); err != nil {
			return nil, err
		}
		return completed(nil), nil
	}

	topic := s.CurrentSubTopic()
	out, err := o.invokeText(ctx, s, workflow.FlowQuestion, map[string]any{"topic": topic})
	if err != nil {
		return nil, err
	}

	s.Metadata.LastQuestion = out.Text
	if err := o.save(ctx, s, from); err != nil {
		return nil, err
	}
	if err := o.record(ctx, domain.InteractionLog{
		SessionID: s.ID,
		Type:      domain.LogTypeQuestion,
		Prompt:    "Topic: " + topic,
		Response:  out.Text,
		FlowID:    string(workflow.FlowQuestion),
	}); err != nil {
		return nil, err
	}
	return &Result{Text: out.Text, Stage: domain.StageLearning, CurrentTopic: topic}, nil
}

func completed(score *int) *Result {
	return &Result{
		Text:   CompletionText,
		Stage:  domain.StageCompleted,
		Score:  score,
		Status: StatusCompleted,
	}
}

// echo renders the caller's input as the prompt of an explanation log.
func echo(input map[string]any) string {
	if len(input) == 0 {
		return "{}"
	}
	b, err := json.Marshal(input)
	if err != nil {
		return fmt.Sprint(input)
	}
	return string(b)
}

// stringField returns input[key] as trimmed text, or "" when absent.
func stringField(input map[string]any, key string) string {
	v, ok := input[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
