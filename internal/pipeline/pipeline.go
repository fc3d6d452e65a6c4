package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"parley/internal/blobstore"
	"parley/internal/config"
	"parley/internal/logging"
	"parley/internal/services"
	"parley/internal/store"
	"parley/internal/taskqueue"
)

// Task kinds owned by the pipeline.
const (
	TaskKindTranscribe = "transcribe"
	TaskKindAnalyze    = "analyze"
	TaskKindSweep      = "sweep"
)

// Transcriber converts audio bytes into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// Analyzer produces an analysis from assembled prompts.
type Analyzer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Blobs is the blob store surface the pipeline needs.
type Blobs interface {
	Exists(ref string) (bool, error)
	Open(ref string) (io.ReadCloser, error)
	Delete(ref string) error
	ListOlderThan(cutoff time.Time) ([]blobstore.BlobInfo, error)
}

// Notifier fans stage-transition events out to live client connections.
type Notifier interface {
	PublishConversationEvent(conversationID, userID, eventType string, payload any)
}

// Pipeline wires the transcription stage, completion aggregator, analysis
// stage, and retention sweep to the durable task queue.
type Pipeline struct {
	cfg         *config.Config
	store       *store.Store
	blobs       Blobs
	transcriber Transcriber
	analyzer    Analyzer
	notifier    Notifier
	logger      *slog.Logger
}

// New constructs a pipeline with explicit dependencies.
func New(cfg *config.Config, st *store.Store, blobs Blobs, tr Transcriber, an Analyzer, notifier Notifier, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Pipeline{
		cfg:         cfg,
		store:       st,
		blobs:       blobs,
		transcriber: tr,
		analyzer:    an,
		notifier:    notifier,
		logger:      logging.NewComponentLogger(logger, "pipeline"),
	}
}

type nopNotifier struct{}

func (nopNotifier) PublishConversationEvent(string, string, string, any) {}

// TranscribePayload identifies one audio part to transcribe.
type TranscribePayload struct {
	AudioPartID    string `json:"audio_part_id"`
	ConversationID string `json:"conversation_id"`
	BlobRef        string `json:"blob_ref"`
	UserID         string `json:"user_id"`
}

// AnalyzePayload identifies one conversation ready for analysis.
type AnalyzePayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

// Register binds the pipeline's handlers and failure hooks to the dispatcher.
func (p *Pipeline) Register(d *taskqueue.Dispatcher) {
	d.Register(TaskKindTranscribe, taskqueue.Registration{
		Handler: taskqueue.HandlerFunc(p.handleTranscribe),
		Workers: p.cfg.Workflow.TranscribeWorkers,
		Hook:    transcribeHook{p},
	})
	d.Register(TaskKindAnalyze, taskqueue.Registration{
		Handler: taskqueue.HandlerFunc(p.handleAnalyze),
		Workers: p.cfg.Workflow.AnalyzeWorkers,
		Hook:    analyzeHook{p},
	})
	d.Register(TaskKindSweep, taskqueue.Registration{
		Handler: taskqueue.HandlerFunc(p.handleSweep),
		Workers: 1,
	})
}

// EnqueueTranscription queues a transcription task for an uploaded part.
func (p *Pipeline) EnqueueTranscription(ctx context.Context, payload TranscribePayload) (string, error) {
	if payload.AudioPartID == "" || payload.ConversationID == "" || payload.BlobRef == "" {
		return "", fmt.Errorf("incomplete transcription payload: %+v", payload)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode transcription payload: %w", err)
	}
	task, err := p.store.EnqueueTask(ctx, TaskKindTranscribe, string(encoded), p.cfg.Workflow.TranscribeAttempts)
	if err != nil {
		return "", err
	}
	p.logger.Info("transcription queued",
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldAudioPartID, payload.AudioPartID),
		logging.String(logging.FieldConversationID, payload.ConversationID),
		logging.String(logging.FieldEventType, "transcription_queued"),
	)
	return task.ID, nil
}

// EnqueueAnalysis queues an analysis task. Called only by the completion
// aggregator after it wins the conditional status update.
func (p *Pipeline) EnqueueAnalysis(ctx context.Context, payload AnalyzePayload) (string, error) {
	if payload.ConversationID == "" {
		return "", fmt.Errorf("incomplete analysis payload: %+v", payload)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode analysis payload: %w", err)
	}
	task, err := p.store.EnqueueTask(ctx, TaskKindAnalyze, string(encoded), p.cfg.Workflow.AnalyzeAttempts)
	if err != nil {
		return "", err
	}
	p.logger.Info("analysis queued",
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldConversationID, payload.ConversationID),
		logging.String(logging.FieldEventType, "analysis_queued"),
	)
	return task.ID, nil
}

// EnqueueSweep queues a retention sweep run.
func (p *Pipeline) EnqueueSweep(ctx context.Context) (string, error) {
	task, err := p.store.EnqueueTask(ctx, TaskKindSweep, "{}", 1)
	if err != nil {
		return "", err
	}
	return task.ID, nil
}

func (p *Pipeline) emit(conversationID, userID, eventType string, payload any) {
	p.notifier.PublishConversationEvent(conversationID, userID, eventType, payload)
}

func decodePayload[T any](task *store.Task) (T, error) {
	var payload T
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		return payload, services.Wrap(services.ErrPermanent, task.Kind, "decode payload", "", err)
	}
	return payload, nil
}
