package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/royengg/homeworkai/internal/db"
	"github.com/royengg/homeworkai/internal/prompts"
	"github.com/royengg/homeworkai/internal/types"
)

const (
	// DefaultSectionThrottle is the pause before each section call but the first of a run
	DefaultSectionThrottle = 5 * time.Second

	generatingPlaceholder = "Generating sections..."
)

// AssignmentStrategy writes a long-form assignment in phases: a blueprint,
// then one model call per section. Every phase is checkpointed to the record,
// so a later attempt (or a later record for the same upload) resumes where
// this one stopped.
type AssignmentStrategy struct {
	gen      Generator
	store    Store
	throttle time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// AssignmentOption configures an AssignmentStrategy
type AssignmentOption func(*AssignmentStrategy)

// WithThrottle sets the pause between section calls
func WithThrottle(d time.Duration) AssignmentOption {
	return func(s *AssignmentStrategy) {
		s.throttle = d
	}
}

// WithSleep replaces the function used to pause between section calls
func WithSleep(fn func(ctx context.Context, d time.Duration) error) AssignmentOption {
	return func(s *AssignmentStrategy) {
		s.sleep = fn
	}
}

// NewAssignmentStrategy creates a multi-phase strategy
func NewAssignmentStrategy(gen Generator, store Store, opts ...AssignmentOption) *AssignmentStrategy {
	s := &AssignmentStrategy{
		gen:      gen,
		store:    store,
		throttle: DefaultSectionThrottle,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Strategy
func (s *AssignmentStrategy) Name() string {
	return string(types.OutputAssignment)
}

// Run resumes or plans the assignment, expands every missing section and
// completes the record
func (s *AssignmentStrategy) Run(ctx context.Context, task *Task) error {
	logger := task.logger()

	cp, err := s.resume(ctx, task)
	if err != nil {
		return err
	}

	var blueprint types.Blueprint
	var sections []types.SectionResult
	if cp != nil {
		blueprint = cp.Blueprint
		sections = resumedSections(cp.Sections, &blueprint)
		logger.Info("resuming assignment",
			"from", cp.SourceID,
			"title", blueprint.Title,
			"completed_sections", len(sections),
			"total_sections", len(blueprint.Sections),
		)
	} else {
		logger.Info("no checkpoint found, generating blueprint")
		if err := s.plan(ctx, task, &blueprint); err != nil {
			return err
		}
		logger.Info("blueprint generated", "title", blueprint.Title, "sections", len(blueprint.Sections))
	}

	if err := s.checkpoint(ctx, task, &blueprint, sections); err != nil {
		return err
	}

	calls := 0
	for i, planned := range blueprint.Sections {
		if hasSection(sections, planned.ID) {
			logger.Debug("section already expanded, skipping", "section_id", planned.ID)
			continue
		}
		if calls > 0 {
			if err := s.sleep(ctx, s.throttle); err != nil {
				return err
			}
		}
		calls++

		logger.Info("expanding section",
			"index", i+1,
			"total", len(blueprint.Sections),
			"section_id", planned.ID,
		)
		result, err := s.expand(ctx, task, &blueprint, planned)
		if err != nil {
			return err
		}
		sections = append(sections, *result)

		if err := s.checkpoint(ctx, task, &blueprint, sections); err != nil {
			return err
		}
	}

	if _, err := s.store.UpdateAnalysis(ctx, task.AnalysisID, db.AnalysisUpdate{
		Status: db.StatusPtr(db.AnalysisStatusCompleted),
	}); err != nil {
		return fmt.Errorf("failed to complete assignment: %w", err)
	}
	logger.Info("assignment completed", "sections", len(sections), "model_calls", calls)
	return nil
}

// resume returns the checkpoint to continue from: the record's own output
// first, then the newest assignment of the same upload. A stored output that
// fails validation is ignored.
func (s *AssignmentStrategy) resume(ctx context.Context, task *Task) (*types.AssignmentCheckpoint, error) {
	logger := task.logger()

	if task.Existing != nil && task.Existing.Assignment != nil {
		cp := task.Existing.Assignment.Checkpoint(task.AnalysisID.String())
		err := cp.Blueprint.Validate()
		if err == nil {
			return cp, nil
		}
		logger.Warn("ignoring own checkpoint", "error", err)
	}

	cp, err := s.store.FindCheckpoint(ctx, task.UploadID, task.AnalysisID)
	if err != nil {
		if errors.Is(err, types.ErrInvalidOutput) {
			logger.Warn("ignoring invalid checkpoint from a previous analysis", "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find checkpoint: %w", err)
	}
	if cp == nil {
		return nil, nil
	}
	if err := cp.Blueprint.Validate(); err != nil {
		logger.Warn("ignoring checkpoint with an unusable blueprint", "from", cp.SourceID, "error", err)
		return nil, nil
	}
	return cp, nil
}

func (s *AssignmentStrategy) plan(ctx context.Context, task *Task, blueprint *types.Blueprint) error {
	prompt, err := prompts.Render(prompts.PlanAssignment, map[string]string{"Input": task.Input})
	if err != nil {
		return fmt.Errorf("failed to build blueprint prompt: %w", err)
	}
	if err := s.gen.Call(ctx, BlueprintShape, prompt, blueprint); err != nil {
		return fmt.Errorf("failed to generate blueprint: %w", err)
	}
	return nil
}

func (s *AssignmentStrategy) expand(ctx context.Context, task *Task, blueprint *types.Blueprint, planned types.BlueprintSection) (*types.SectionResult, error) {
	blueprintJSON, err := json.Marshal(blueprint)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal blueprint: %w", err)
	}
	sectionJSON, err := json.Marshal(planned)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal section: %w", err)
	}
	prompt, err := prompts.Render(prompts.WriteSection, map[string]string{
		"Input":     task.Input,
		"Blueprint": string(blueprintJSON),
		"Section":   string(sectionJSON),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build section prompt: %w", err)
	}

	var result types.SectionResult
	if err := s.gen.Call(ctx, SectionShape, prompt, &result); err != nil {
		return nil, fmt.Errorf("failed to expand section %s: %w", planned.ID, err)
	}
	// the planned id is the join key, whatever the model echoed
	result.SectionID = planned.ID
	return &result, nil
}

// checkpoint stores the partial output and reports progress. The write
// completes before the next section starts.
func (s *AssignmentStrategy) checkpoint(ctx context.Context, task *Task, blueprint *types.Blueprint, sections []types.SectionResult) error {
	out := &types.AssignmentOutput{
		DocumentID:  AssignmentDocumentID(task.AnalysisID.String()),
		Title:       blueprint.Title,
		Blueprint:   *blueprint,
		Sections:    append([]types.SectionResult(nil), sections...),
		FullContent: generatingPlaceholder,
	}
	if len(sections) > 0 {
		out.FullContent = Assemble(blueprint, sections)
	}

	if _, err := s.store.UpdateAnalysis(ctx, task.AnalysisID, db.AnalysisUpdate{
		Output: types.NewAssignmentOutput(out),
	}); err != nil {
		return fmt.Errorf("failed to checkpoint assignment: %w", err)
	}
	if err := task.reportProgress(ctx, Progress(len(sections), len(blueprint.Sections))); err != nil {
		return fmt.Errorf("failed to report progress: %w", err)
	}
	return nil
}

// AssignmentDocumentID is the document id of the assignment produced by an analysis
func AssignmentDocumentID(analysisID string) string {
	return "asm:" + analysisID
}

// Progress is floor(done/total*100)
func Progress(done, total int) int {
	if total <= 0 {
		return 0
	}
	return done * 100 / total
}

// Assemble renders the blueprint header and the expanded sections, in
// blueprint order, as one markdown document
func Assemble(blueprint *types.Blueprint, sections []types.SectionResult) string {
	byID := make(map[string]types.SectionResult, len(sections))
	for _, sec := range sections {
		byID[sec.SectionID] = sec
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n\n---\n\n", blueprint.Title, blueprint.Description)
	for _, planned := range blueprint.Sections {
		sec, ok := byID[planned.ID]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n---\n\n", planned.Title, sec.Content)
	}
	return b.String()
}

// resumedSections keeps the first result for each id the blueprint plans
func resumedSections(stored []types.SectionResult, blueprint *types.Blueprint) []types.SectionResult {
	out := make([]types.SectionResult, 0, len(stored))
	for _, sec := range stored {
		if _, planned := blueprint.Section(sec.SectionID); !planned || hasSection(out, sec.SectionID) {
			continue
		}
		out = append(out, sec)
	}
	return out
}

func hasSection(sections []types.SectionResult, id string) bool {
	for _, sec := range sections {
		if sec.SectionID == id {
			return true
		}
	}
	return false
}
