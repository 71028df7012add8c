package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"medcmd/internal/dialogue"
	"medcmd/internal/entity"
	"medcmd/internal/intent"
	"medcmd/internal/medication"
	"medcmd/internal/storage"
	"medcmd/internal/temporal"
	"medcmd/pkg"
	"medcmd/src/conversation"
	"medcmd/src/logger"

	"github.com/google/uuid"
)

// ErrEmptyUtterance is the only per-turn error: everything else degrades.
var ErrEmptyUtterance = errors.New("utterance is empty")

// Dependencies are the collaborators of a Processor. Reviewer and Commands are optional.
type Dependencies struct {
	Resolver      *intent.Resolver
	Sources       []entity.Source
	Engine        *dialogue.Engine
	Workflow      *medication.Workflow
	Reviewer      medication.Reviewer
	Contexts      *conversation.Manager
	Commands      storage.CommandLog
	SourceTimeout time.Duration
	HistoryLen    int
	Now           func() time.Time
	// CommandRetention prunes a session's command log after each record. Zero keeps everything.
	CommandRetention time.Duration
}

// Processor turns one utterance into a TurnResult and updates the session.
type Processor struct {
	deps Dependencies
}

// Interpretation is the session-independent reading of an utterance.
type Interpretation struct {
	Intent           pkg.IntentResult        `json:"intent"`
	Entities         pkg.CategorizedEntities `json:"entities"`
	TemporalInfo     pkg.TemporalInfo        `json:"temporal_info"`
	SimplifiedFormat pkg.SimplifiedFormat    `json:"simplified_format"`
}

func NewProcessor(deps Dependencies) *Processor {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Engine == nil {
		deps.Engine = dialogue.NewEngine(dialogue.DefaultSchemas())
	}
	if deps.Resolver == nil {
		deps.Resolver = intent.NewResolver(deps.SourceTimeout, 0, intent.NewKeywordClassifier())
	}
	if deps.Contexts == nil {
		deps.Contexts = conversation.NewManager(conversation.NewMemoryStore())
	}
	return &Processor{deps: deps}
}

// Contexts exposes the session manager.
func (p *Processor) Contexts() *conversation.Manager {
	return p.deps.Contexts
}

// Commands returns the completed-command log, nil when disabled.
func (p *Processor) Commands() storage.CommandLog {
	return p.deps.Commands
}

// Medications lists the formulary names, empty without a medication workflow.
func (p *Processor) Medications() []string {
	if p.deps.Workflow == nil {
		return []string{}
	}
	return p.deps.Workflow.KnowledgeBase().Names()
}

// Interpret classifies text and extracts its entities without touching any session.
// Intent classification and entity sources run concurrently.
func (p *Processor) Interpret(ctx context.Context, text string) (Interpretation, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Interpretation{}, ErrEmptyUtterance
	}

	intentCh := make(chan pkg.IntentResult, 1)
	go func() {
		intentCh <- p.deps.Resolver.Resolve(ctx, text)
	}()

	lists := entity.Collect(ctx, p.deps.Sources, text, p.deps.SourceTimeout)
	info := temporal.Extract(text)
	lists = append(lists, temporal.Entities(info))

	entities := entity.Group(entity.Merge(lists...))
	// Age is reported with the patient entities only.
	info.Age = ""

	resolved := <-intentCh
	return Interpretation{
		Intent:           resolved,
		Entities:         entities,
		TemporalInfo:     info,
		SimplifiedFormat: entity.Simplify(resolved.PrimaryIntent, entities),
	}, nil
}

// Process runs one turn. An empty SessionID starts a new session.
func (p *Processor) Process(ctx context.Context, req pkg.TurnRequest) (*pkg.TurnResult, error) {
	text := strings.TrimSpace(req.Utterance)
	if text == "" {
		return nil, ErrEmptyUtterance
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	start := p.deps.Now()
	var result *pkg.TurnResult
	err := p.deps.Contexts.WithSession(ctx, sessionID, func(c *conversation.Context) error {
		history := req.PriorUtterances
		if len(history) == 0 {
			history = c.History()
		}

		in, err := p.Interpret(conversation.WithHistory(ctx, history), text)
		if err != nil {
			return err
		}

		result = p.respond(ctx, c, text, in)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("session_id", sessionID).
		Str("intent", result.Intent.PrimaryIntent).
		Str("active_intent", result.ActiveIntent).
		Int("entities", result.Entities.Count()).
		Bool("complete", result.Complete).
		Dur("duration", p.deps.Now().Sub(start)).
		Msg("Processed turn")
	return result, nil
}

// ProcessConversation replays utterances through one session in order.
// Blank utterances are skipped.
func (p *Processor) ProcessConversation(ctx context.Context, sessionID string, utterances []string) ([]pkg.TurnResult, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	results := make([]pkg.TurnResult, 0, len(utterances))
	for _, u := range utterances {
		if strings.TrimSpace(u) == "" {
			continue
		}
		res, err := p.Process(ctx, pkg.TurnRequest{Utterance: u, SessionID: sessionID})
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}
	return results, nil
}

// respond decides the dialogue outcome and applies the context update policy.
func (p *Processor) respond(ctx context.Context, c *conversation.Context, text string, in Interpretation) *pkg.TurnResult {
	snap := c.Snapshot()

	active := in.Intent.PrimaryIntent
	if active == pkg.IntentUnknown && snap.ActiveIntent != "" {
		active = snap.ActiveIntent
	}

	ev := p.deps.Engine.Evaluate(active, in.Entities, snap)
	filled := ev.FilledMap()

	result := &pkg.TurnResult{
		SessionID:        c.SessionID,
		Text:             text,
		Intent:           in.Intent,
		ActiveIntent:     active,
		Entities:         in.Entities,
		TemporalInfo:     in.TemporalInfo,
		SimplifiedFormat: in.SimplifiedFormat,
		FollowUpQuestion: ev.FollowUpQuestion,
		Complete:         ev.Complete,
		MissingSlot:      ev.MissingSlot,
		ProcessedAt:      p.deps.Now(),
	}

	if active == pkg.IntentAssignMedication && p.deps.Workflow != nil {
		if v, ok := p.validateMedication(ctx, ev, filled); ok {
			result.MedicationValidation = &v
			if v.ValidationStep != pkg.StepComplete {
				result.Complete = false
				result.MissingSlot = missingSlotFor(v.ValidationStep)
				result.FollowUpQuestion = v.FollowUpQuestion
			}
		}
	}

	if err := c.ApplyTurn(in.Entities, in.TemporalInfo); err != nil {
		logger.Warn().Err(err).Str("session_id", c.SessionID).Msg("Failed to update context")
	}
	if err := c.TrackDialogue(active, result.Complete, filled); err != nil {
		logger.Warn().Err(err).Str("session_id", c.SessionID).Msg("Failed to track dialogue state")
	}

	history := append(c.History(), text)
	if err := c.AppendHistory(text, p.deps.HistoryLen); err != nil {
		logger.Warn().Err(err).Str("session_id", c.SessionID).Msg("Failed to append history")
	}

	if result.Complete && len(p.deps.Engine.Schema(active)) > 0 {
		p.recordCommand(c.SessionID, active, filled, history, result.ProcessedAt)
	}

	result.Context = c.Snapshot()
	return result
}

// validateMedication runs the workflow once a medication is known and drops
// rejected values from filled so they are asked for again.
func (p *Processor) validateMedication(ctx context.Context, ev dialogue.Evaluation, filled map[string]pkg.ExtractedEntity) (pkg.ValidationResult, bool) {
	name, ok := ev.Value("medication")
	if !ok {
		return pkg.ValidationResult{}, false
	}
	dosage, _ := ev.Value("dosage")
	frequency, _ := ev.Value("frequency")
	input := medication.Input{Medication: name, Dosage: dosage, Frequency: frequency}

	v := p.deps.Workflow.Validate(input)
	switch v.ValidationStep {
	case pkg.StepMedicationName:
		delete(filled, "medication")
		delete(filled, "dosage")
		delete(filled, "frequency")
	case pkg.StepDosage:
		delete(filled, "dosage")
		delete(filled, "frequency")
	case pkg.StepFrequency:
		delete(filled, "frequency")
	case pkg.StepComplete:
		if p.deps.Reviewer != nil {
			v.Notes = p.review(ctx, input)
		}
	}
	return v, true
}

func (p *Processor) review(ctx context.Context, in medication.Input) []string {
	if p.deps.SourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.deps.SourceTimeout)
		defer cancel()
	}
	notes, err := p.deps.Reviewer.ReviewMedication(ctx, in)
	if err != nil {
		logger.Warn().Err(err).Str("medication", in.Medication).Msg("Medication review failed, continuing without notes")
		return nil
	}
	return notes
}

func (p *Processor) recordCommand(sessionID, intentName string, filled map[string]pkg.ExtractedEntity, history []string, at time.Time) {
	if p.deps.Commands == nil {
		return
	}
	cmd := storage.NewCompletedCommand(sessionID, intentName, filled, history, at)
	if err := p.deps.Commands.Record(cmd); err != nil {
		logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to record completed command")
		return
	}
	if p.deps.CommandRetention > 0 {
		if err := p.deps.Commands.CleanupOldEntries(sessionID, p.deps.CommandRetention); err != nil {
			logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to clean up command log")
		}
	}
}

func missingSlotFor(step pkg.ValidationStep) string {
	switch step {
	case pkg.StepMedicationName:
		return "medication"
	case pkg.StepDosage:
		return "dosage"
	case pkg.StepFrequency:
		return "frequency"
	}
	return ""
}
