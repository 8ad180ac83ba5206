// Package a2a implements the data model and HTTP client of the Agent2Agent (A2A)
// protocol: agent cards, messages, tasks and the JSON-RPC envelopes that carry them.
package a2a

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// ProtocolVersion is the A2A protocol version advertised on agent cards.
const ProtocolVersion = "0.2.5"

// AgentCardPath is where an agent publishes its card, relative to its base URL.
const AgentCardPath = "/.well-known/agent.json"

// AgentCapabilities defines the capabilities of an agent.
type AgentCapabilities struct {
	Streaming              bool `json:"streaming,omitempty"`
	PushNotifications      bool `json:"pushNotifications,omitempty"`
	StateTransitionHistory bool `json:"stateTransitionHistory,omitempty"`
}

// AgentCard provides metadata about an agent.
type AgentCard struct {
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	URL                string            `json:"url"`
	Version            string            `json:"version"`
	ProtocolVersion    string            `json:"protocolVersion,omitempty"`
	Capabilities       AgentCapabilities `json:"capabilities"`
	DefaultInputModes  []string          `json:"defaultInputModes"`
	DefaultOutputModes []string          `json:"defaultOutputModes"`
	Skills             []AgentSkill      `json:"skills"`
}

// AgentSkill describes a specific skill or capability of the agent.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Examples    []string `json:"examples,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

// Role of a message author.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// PartKind discriminates the Part union.
type PartKind string

const (
	PartKindText PartKind = "text"
	PartKindFile PartKind = "file"
	PartKindData PartKind = "data"
)

// FileContent is either a file by URI or a file by base64 bytes, never both.
type FileContent struct {
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Bytes    string `json:"bytes,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// Validate ensures that FileContent has either Bytes or URI but not both.
func (fc *FileContent) Validate() error {
	if (fc.Bytes == "") == (fc.URI == "") {
		return fmt.Errorf("file must have either bytes or uri, but not both")
	}
	return nil
}

// Decode returns the decoded file bytes.
func (fc *FileContent) Decode() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(fc.Bytes)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 file bytes: %w", err)
	}
	return data, nil
}

// Part is a component of a message or artifact: text, file or structured data.
type Part struct {
	Kind     PartKind       `json:"kind"`
	Text     string         `json:"text,omitempty"`
	File     *FileContent   `json:"file,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewTextPart creates a text part.
func NewTextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

// NewFileURIPart creates a file part referencing uri.
func NewFileURIPart(uri, mimeType string) Part {
	return Part{Kind: PartKindFile, File: &FileContent{URI: uri, MimeType: mimeType}}
}

// NewFileBytesPart creates a file part carrying data inline.
func NewFileBytesPart(data []byte, mimeType string) Part {
	return Part{Kind: PartKindFile, File: &FileContent{
		Bytes:    base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
	}}
}

// NewDataPart creates a structured data part.
func NewDataPart(data map[string]any) Part {
	return Part{Kind: PartKindData, Data: data}
}

// UnmarshalJSON validates the fields required by the part's kind.
func (p *Part) UnmarshalJSON(data []byte) error {
	type partAlias Part
	var tmp partAlias
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}

	switch tmp.Kind {
	case PartKindText:
	case PartKindFile:
		if tmp.File == nil {
			return fmt.Errorf("file part missing 'file' field")
		}
		if err := tmp.File.Validate(); err != nil {
			return err
		}
	case PartKindData:
		if tmp.Data == nil {
			return fmt.Errorf("data part missing 'data' field")
		}
	default:
		return fmt.Errorf("unknown part kind: %q", tmp.Kind)
	}

	*p = Part(tmp)
	return nil
}

// Message is a single turn of communication between a client and an agent.
type Message struct {
	Role      Role           `json:"role"`
	Parts     []Part         `json:"parts"`
	MessageID string         `json:"messageId"`
	TaskID    string         `json:"taskId,omitempty"`
	ContextID string         `json:"contextId,omitempty"`
	Kind      string         `json:"kind"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMessage creates a message with the given id.
func NewMessage(role Role, messageID string, parts ...Part) *Message {
	return &Message{Role: role, Parts: parts, MessageID: messageID, Kind: KindMessage}
}

// Text joins the message's text parts with newlines.
func (m *Message) Text() string {
	if m == nil {
		return ""
	}
	return PartsText(m.Parts)
}

// PartsText joins the text of parts with newlines.
func PartsText(parts []Part) string {
	var text string
	for _, p := range parts {
		if p.Kind != PartKindText {
			continue
		}
		if text != "" {
			text += "\n"
		}
		text += p.Text
	}
	return text
}

// TaskState represents the possible states of a task.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateFailed        TaskState = "failed"
	TaskStateRejected      TaskState = "rejected"
	TaskStateAuthRequired  TaskState = "auth-required"
	TaskStateUnknown       TaskState = "unknown"
)

// IsTerminal reports whether no further updates can follow this state.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateCanceled, TaskStateFailed, TaskStateRejected:
		return true
	}
	return false
}

// IsInterrupted reports whether the task is paused waiting for the client.
func (s TaskState) IsInterrupted() bool {
	return s == TaskStateInputRequired || s == TaskStateAuthRequired
}

// TaskStatus represents the current status of a task.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
}

// NewTaskStatus stamps state with the current time.
func NewTaskStatus(state TaskState, message *Message) TaskStatus {
	return TaskStatus{State: state, Message: message, Timestamp: time.Now().UTC().Format(time.RFC3339Nano)}
}

// Artifact is an output generated by a task.
type Artifact struct {
	ArtifactID  string         `json:"artifactId"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parts       []Part         `json:"parts"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Task represents the state and data associated with an agent task.
type Task struct {
	ID        string         `json:"id"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	History   []Message      `json:"history,omitempty"`
	Kind      string         `json:"kind"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TaskStatusUpdateEvent announces a change in task status.
type TaskStatusUpdateEvent struct {
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Kind      string         `json:"kind"`
	Status    TaskStatus     `json:"status"`
	Final     bool           `json:"final"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TaskArtifactUpdateEvent announces a new or updated artifact.
type TaskArtifactUpdateEvent struct {
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Kind      string         `json:"kind"`
	Artifact  Artifact       `json:"artifact"`
	Append    bool           `json:"append,omitempty"`
	LastChunk bool           `json:"lastChunk,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Kind values of the objects an agent can emit.
const (
	KindMessage        = "message"
	KindTask           = "task"
	KindStatusUpdate   = "status-update"
	KindArtifactUpdate = "artifact-update"
)

// Event is anything an agent emits while handling a request: *Message, *Task,
// *TaskStatusUpdateEvent or *TaskArtifactUpdateEvent.
type Event interface {
	EventKind() string
}

func (*Message) EventKind() string                 { return KindMessage }
func (*Task) EventKind() string                    { return KindTask }
func (*TaskStatusUpdateEvent) EventKind() string   { return KindStatusUpdate }
func (*TaskArtifactUpdateEvent) EventKind() string { return KindArtifactUpdate }

// DecodeEvent decodes raw into the Event type named by its kind field.
func DecodeEvent(raw json.RawMessage) (Event, error) {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}

	var ev Event
	switch probe.Kind {
	case KindMessage:
		ev = &Message{}
	case KindTask:
		ev = &Task{}
	case KindStatusUpdate:
		ev = &TaskStatusUpdateEvent{}
	case KindArtifactUpdate:
		ev = &TaskArtifactUpdateEvent{}
	default:
		return nil, fmt.Errorf("unknown event kind: %q", probe.Kind)
	}
	if err := json.Unmarshal(raw, ev); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", probe.Kind, err)
	}
	return ev, nil
}
