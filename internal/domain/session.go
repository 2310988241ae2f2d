// Package domain contains core domain types for the ClimbLearn service.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Stage is one node of the learning flow state machine.
type Stage string

const (
	StageWelcoming  Stage = "welcoming"
	StageReadyCheck Stage = "ready_check"
	StageTopicInit  Stage = "topic_init"
	StageSeparation Stage = "separation"
	StageLearning   Stage = "learning"
	StageCompleted  Stage = "completed"
)

// AllStages returns every stage in flow order.
func AllStages() []Stage {
	return []Stage{
		StageWelcoming,
		StageReadyCheck,
		StageTopicInit,
		StageSeparation,
		StageLearning,
		StageCompleted,
	}
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	for _, known := range AllStages() {
		if s == known {
			return true
		}
	}
	return false
}

// Status is the lifecycle status of a learning session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// SessionMetadata carries flow bookkeeping that is not part of the stage itself.
type SessionMetadata struct {
	LastQuestion string `json:"lastQuestion,omitempty" bson:"last_question,omitempty"`
	Scores       []int  `json:"scores" bson:"scores"`
}

// LearningSession is the mutable per-learner record driven by the flow orchestrator.
type LearningSession struct {
	ID                   string          `json:"id" bson:"_id"`
	ExternalStudentID    string          `json:"externalStudentId,omitempty" bson:"external_student_id,omitempty"`
	StudentName          string          `json:"studentName,omitempty" bson:"student_name,omitempty"`
	TopicName            string          `json:"topicName,omitempty" bson:"topic_name,omitempty"`
	CurrentStage         Stage           `json:"currentStage" bson:"current_stage"`
	SubTopics            []string        `json:"subTopics" bson:"sub_topics"`
	CurrentSubTopicIndex int             `json:"currentSubTopicIndex" bson:"current_sub_topic_index"`
	Status               Status          `json:"status" bson:"status"`
	Metadata             SessionMetadata `json:"metadata" bson:"metadata"`
	Version              int64           `json:"version" bson:"version"`
	CreatedAt            time.Time       `json:"createdAt" bson:"created_at"`
	UpdatedAt            time.Time       `json:"updatedAt" bson:"updated_at"`
}

// NewLearningSession builds a fresh session in the welcoming stage.
func NewLearningSession(externalStudentID, studentName string) *LearningSession {
	now := time.Now().UTC()
	return &LearningSession{
		ID:                uuid.NewString(),
		ExternalStudentID: externalStudentID,
		StudentName:       studentName,
		CurrentStage:      StageWelcoming,
		SubTopics:         []string{},
		Status:            StatusActive,
		Metadata:          SessionMetadata{Scores: []int{}},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// CallerIdentity returns the key used to identify the learner to the workflow engine.
func (s *LearningSession) CallerIdentity() string {
	if s.ExternalStudentID != "" {
		return s.ExternalStudentID
	}
	return s.ID
}

// CurrentSubTopic returns the subtopic under the cursor, or "" once the cursor is past the end.
func (s *LearningSession) CurrentSubTopic() string {
	if s.CurrentSubTopicIndex < 0 || s.CurrentSubTopicIndex >= len(s.SubTopics) {
		return ""
	}
	return s.SubTopics[s.CurrentSubTopicIndex]
}

// Exhausted returns true when every subtopic has been passed.
func (s *LearningSession) Exhausted() bool {
	return s.CurrentSubTopicIndex >= len(s.SubTopics)
}

// Complete moves the session into its terminal stage.
func (s *LearningSession) Complete() {
	s.CurrentStage = StageCompleted
	s.Status = StatusCompleted
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (s *LearningSession) Clone() *LearningSession {
	c := *s
	c.SubTopics = append([]string(nil), s.SubTopics...)
	c.Metadata.Scores = append([]int(nil), s.Metadata.Scores...)
	if c.SubTopics == nil {
		c.SubTopics = []string{}
	}
	if c.Metadata.Scores == nil {
		c.Metadata.Scores = []int{}
	}
	return &c
}
