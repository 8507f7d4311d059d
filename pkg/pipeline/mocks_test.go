package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/shouni/adgen-kit/pkg/domain"
	"github.com/shouni/adgen-kit/pkg/invoker"
	"github.com/shouni/adgen-kit/pkg/store"
)

// --- Mocks ---

// scriptInvoker は呼び出しごとに台本どおりの結果を返すインボーカです。
type scriptInvoker struct {
	mu       sync.Mutex
	errs     []error
	requests []invoker.Request
	calls    int
	// appendTurns が真の場合、受け取った履歴に2ターン追記して返します。
	appendTurns bool
}

func (s *scriptInvoker) Invoke(ctx context.Context, req invoker.Request) (*domain.RawResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.requests = append(s.requests, req)

	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}

	history := append([]domain.Turn{}, req.History...)
	if s.appendTurns {
		history = append(history,
			domain.Turn(fmt.Sprintf(`{"role":"user","parts":[{"text":%q}]}`, req.Prompt)),
			domain.Turn(`{"role":"model","parts":[{"text":"ok"}]}`),
		)
	}

	return &domain.RawResult{
		Data:     []byte(fmt.Sprintf("image-%d", s.calls)),
		MimeType: "image/png",
		History:  history,
	}, nil
}

// scriptCritic は台本どおりの批評を順に返します。台本が尽きたら合格です。
type scriptCritic struct {
	mu        sync.Mutex
	critiques []*domain.CritiqueResult
	prompts   []string
}

func (s *scriptCritic) Review(ctx context.Context, result *domain.RawResult, gc *domain.GenerationContext, prompt string) (*domain.CritiqueResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)

	if len(s.critiques) == 0 {
		return &domain.CritiqueResult{Passed: true, Score: 100}, nil
	}
	crit := s.critiques[0]
	s.critiques = s.critiques[1:]
	return crit, nil
}

// correctiveCritic は実装同様に「受け取ったプロンプト全文 + 是正句」を
// 修正版として差し戻す批評器です。passAt 回目の評価で合格します。
type correctiveCritic struct {
	mu      sync.Mutex
	passAt  int
	prompts []string
}

func (c *correctiveCritic) Review(ctx context.Context, result *domain.RawResult, gc *domain.GenerationContext, prompt string) (*domain.CritiqueResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)

	if len(c.prompts) >= c.passAt {
		return &domain.CritiqueResult{Passed: true, Score: 90}, nil
	}
	return &domain.CritiqueResult{
		Passed:        false,
		Score:         50,
		Issues:        []string{"商品が見えない"},
		RevisedPrompt: prompt + "\nCorrections for this retry: make the featured product clearly visible.",
	}, nil
}

// memPersister はメモリ上の Persister 実装です。
type memPersister struct {
	mu   sync.Mutex
	rows map[string]*domain.Generation
	seq  int
	err  error
}

func newMemPersister() *memPersister {
	return &memPersister{rows: map[string]*domain.Generation{}}
}

func (m *memPersister) CreateGeneration(ctx context.Context, rec store.NewGeneration) (*domain.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.seq++
	gen := &domain.Generation{
		ID:                  fmt.Sprintf("gen-%d", m.seq),
		UserID:              rec.UserID,
		Prompt:              rec.Prompt,
		ImageURL:            rec.ImageURL,
		ConversationHistory: rec.History,
		Model:               rec.Model,
		AspectRatio:         rec.AspectRatio,
	}
	m.rows[gen.ID] = gen
	return gen, nil
}

func (m *memPersister) CreateEdit(ctx context.Context, parentID, editPrompt string, rec store.NewGeneration) (*domain.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	parent, ok := m.rows[parentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	m.seq++
	gen := &domain.Generation{
		ID:                  fmt.Sprintf("gen-%d", m.seq),
		UserID:              rec.UserID,
		Prompt:              rec.Prompt,
		ImageURL:            rec.ImageURL,
		ConversationHistory: rec.History,
		Model:               rec.Model,
		AspectRatio:         rec.AspectRatio,
		ParentGenerationID:  &parent.ID,
		EditPrompt:          &editPrompt,
		EditCount:           parent.EditCount + 1,
	}
	m.rows[gen.ID] = gen
	return gen, nil
}

func (m *memPersister) GetGeneration(ctx context.Context, id string) (*domain.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return gen, nil
}

// memSink はメモリ上の ImageSink 実装です。
type memSink struct {
	mu    sync.Mutex
	seq   int
	err   error
	saved [][]byte
}

func (m *memSink) Save(ctx context.Context, data []byte, mimeType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.seq++
	m.saved = append(m.saved, data)
	return fmt.Sprintf("mem://images/%d.png", m.seq), nil
}

// --- 簡易コンテキストソース ---

type okVision struct{}

func (okVision) Analyze(ctx context.Context, images []domain.SourceImage) (*domain.VisionContext, error) {
	return &domain.VisionContext{Category: "tile"}, nil
}

type okPatterns struct{}

func (okPatterns) Match(ctx context.Context, in domain.GenerationInput) (*domain.PatternContext, error) {
	return &domain.PatternContext{Directive: "soft daylight", Count: 2}, nil
}

type failingKB struct{}

func (failingKB) Retrieve(ctx context.Context, query, productID string) (*domain.KnowledgeContext, error) {
	return nil, fmt.Errorf("kb index unavailable")
}
