package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/royengg/homeworkai/internal/db"
	"github.com/royengg/homeworkai/internal/llm"
	"github.com/royengg/homeworkai/internal/queue"
	"github.com/royengg/homeworkai/internal/types"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// memStore keeps records in memory and applies the same transition and
// output rules as the database store
type memStore struct {
	mu      sync.Mutex
	uploads map[uuid.UUID]*db.Upload
	texts   map[uuid.UUID]string
	records map[uuid.UUID]*db.AnalysisResult
	clock   time.Time

	// snapshots of every stored output, in write order
	outputs  []*types.AnalysisOutput
	findErr  error
	failNext error
}

func newMemStore() *memStore {
	return &memStore{
		uploads: map[uuid.UUID]*db.Upload{},
		texts:   map[uuid.UUID]string{},
		records: map[uuid.UUID]*db.AnalysisResult{},
		clock:   time.Unix(1_700_000_000, 0),
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) addUpload(text string) uuid.UUID {
	return s.addUploadWithID(uuid.New(), text)
}

func (s *memStore) addUploadWithID(id uuid.UUID, text string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[id] = &db.Upload{ID: id, Filename: "doc.pdf", StorageKey: "uploads/" + id.String(), CreatedAt: s.tick()}
	if text != "" {
		s.texts[id] = text
	}
	return id
}

func (s *memStore) record(id uuid.UUID) *db.AnalysisResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *s.records[id]
	return &r
}

func (s *memStore) output(id uuid.UUID) *types.AnalysisOutput {
	r := s.record(id)
	out, err := r.DecodeOutput()
	if err != nil {
		panic(err)
	}
	return out
}

func (s *memStore) GetUpload(_ context.Context, uploadID uuid.UUID) (*db.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads[uploadID], nil
}

func (s *memStore) GetParseText(_ context.Context, uploadID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.texts[uploadID], nil
}

func (s *memStore) CreateAnalysis(_ context.Context, uploadID uuid.UUID) (*db.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	r := &db.AnalysisResult{
		ID:        uuid.New(),
		UploadID:  uploadID,
		Status:    db.AnalysisStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.records[r.ID] = r
	cp := *r
	return &cp, nil
}

func (s *memStore) GetAnalysis(_ context.Context, id uuid.UUID) (*db.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) UpdateAnalysis(_ context.Context, id uuid.UUID, update db.AnalysisUpdate) (*db.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failNext; err != nil {
		s.failNext = nil
		return nil, err
	}
	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("analysis not found: %s", id)
	}
	if update.Status != nil && db.IsTerminalStatus(r.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", db.ErrInvalidTransition, r.Status, *update.Status)
	}
	if update.Output != nil {
		data, err := json.Marshal(update.Output)
		if err != nil {
			return nil, err
		}
		r.Output = data
		var snapshot types.AnalysisOutput
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return nil, err
		}
		s.outputs = append(s.outputs, &snapshot)
	}
	if update.Status != nil {
		r.Status = *update.Status
	}
	if update.Error != nil {
		r.Error = update.Error
	}
	r.UpdatedAt = s.tick()
	cp := *r
	return &cp, nil
}

func (s *memStore) FindCheckpoint(_ context.Context, uploadID, excludingID uuid.UUID) (*types.AssignmentCheckpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	var newest *db.AnalysisResult
	for _, r := range s.records {
		if r.UploadID != uploadID || r.ID == excludingID || len(r.Output) == 0 {
			continue
		}
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(r.Output, &probe); err != nil || probe.Type != string(types.OutputAssignment) {
			continue
		}
		if newest == nil || r.CreatedAt.After(newest.CreatedAt) {
			newest = r
		}
	}
	if newest == nil {
		return nil, nil
	}
	out, err := newest.DecodeOutput()
	if err != nil {
		return nil, err
	}
	return out.Assignment.Checkpoint(newest.ID.String()), nil
}

var targetSectionPattern = regexp.MustCompile(`TARGET SECTION: \{"id":"([^"]+)"`)

type generatorCall struct {
	Shape  string
	Prompt string
}

// fakeGenerator answers each shape with a responder and records every call
type fakeGenerator struct {
	mu        sync.Mutex
	calls     []generatorCall
	responses map[string]func(prompt string, n int) (string, error)
}

func (g *fakeGenerator) Call(_ context.Context, shape llm.Shape, prompt string, out any) error {
	g.mu.Lock()
	g.calls = append(g.calls, generatorCall{Shape: shape.Name, Prompt: prompt})
	n := 0
	for _, c := range g.calls {
		if c.Shape == shape.Name {
			n++
		}
	}
	respond := g.responses[shape.Name]
	g.mu.Unlock()

	if respond == nil {
		return fmt.Errorf("unexpected %s call", shape.Name)
	}
	text, err := respond(prompt, n)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(text), out)
}

func (g *fakeGenerator) count(shape string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Shape == shape {
			n++
		}
	}
	return n
}

func (g *fakeGenerator) sectionIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var ids []string
	for _, c := range g.calls {
		if c.Shape != SectionShape.Name {
			continue
		}
		if m := targetSectionPattern.FindStringSubmatch(c.Prompt); m != nil {
			ids = append(ids, m[1])
		}
	}
	return ids
}

const threeSectionBlueprint = `{
  "title": "Distributed Systems",
  "description": "A study of consensus.",
  "subject": "Computer Science",
  "topic": "Consensus",
  "sections": [
    {"id": "intro", "title": "Introduction", "objectives": ["motivate"], "key_points": ["history"]},
    {"id": "raft", "title": "Raft", "objectives": ["explain"], "key_points": ["leader election"]},
    {"id": "apps", "title": "Applications", "objectives": ["apply"], "key_points": ["etcd"]}
  ]
}`

const homeworkAnswer = `{
  "document_id": "auto:hash-0123456789ab",
  "questions": [
    {"qid": "Q1", "question_text": "Compute 2+2.", "parts": [{"label": "(a)", "answer": "4", "workings": "2+2=4"}]}
  ]
}`

// sectionResponder echoes a wrong section id so tests can see it replaced
func sectionResponder(prompt string, _ int) (string, error) {
	m := targetSectionPattern.FindStringSubmatch(prompt)
	if m == nil {
		return "", errors.New("prompt has no target section")
	}
	return fmt.Sprintf(`{"section_id":"model-%s","content":"Body of %s","citations":[]}`, m[1], m[1]), nil
}

func newAssignmentGenerator() *fakeGenerator {
	return &fakeGenerator{responses: map[string]func(string, int) (string, error){
		BlueprintShape.Name: func(string, int) (string, error) { return threeSectionBlueprint, nil },
		SectionShape.Name:   sectionResponder,
	}}
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
	return ctx.Err()
}

type progressRecorder struct {
	mu     sync.Mutex
	values []int
}

func (r *progressRecorder) report(_ context.Context, pct int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, pct)
	return nil
}

type harness struct {
	store     *memStore
	gen       *fakeGenerator
	sleeper   *sleepRecorder
	processor *Processor
}

func newHarness(gen *fakeGenerator) *harness {
	h := &harness{store: newMemStore(), gen: gen, sleeper: &sleepRecorder{}}
	h.processor = NewProcessor(h.store,
		NewHomeworkStrategy(gen, h.store),
		NewAssignmentStrategy(gen, h.store, WithSleep(h.sleeper.sleep)),
		discardLogger,
	)
	return h
}

// newAnalysis creates an upload with text and a queued record for it
func (h *harness) newAnalysis(text string) (uploadID, analysisID uuid.UUID) {
	uploadID = h.store.addUpload(text)
	r, _ := h.store.CreateAnalysis(context.Background(), uploadID)
	return uploadID, r.ID
}

func (h *harness) job(uploadID, analysisID uuid.UUID, attempt, maxAttempts int, progress *progressRecorder) *queue.Job {
	var report func(context.Context, int) error
	if progress != nil {
		report = progress.report
	}
	return queue.NewJob(queue.Payload{AnalysisID: analysisID.String(), UploadID: uploadID.String()}, attempt, maxAttempts, report)
}
