package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/FranksOps/seoforge/internal/apperr"
	"github.com/FranksOps/seoforge/internal/estimate"
)

// scriptedLLM answers prompts by their leading phrase.
type scriptedLLM struct {
	mu      sync.Mutex
	replies map[string]string
	prompts []string
}

func (s *scriptedLLM) Complete(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	for prefix, reply := range s.replies {
		if strings.HasPrefix(prompt, prefix) {
			return reply, nil
		}
	}
	return "", errors.New("collaborator unavailable")
}

type fixedProber int

func (p fixedProber) Probe(context.Context, string) int { return int(p) }

func jsonOf(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func newGenerator(t *testing.T, llm *scriptedLLM) *Generator {
	t.Helper()
	g, err := New(llm, nil, fixedProber(5), nil, Config{Heuristic: estimate.NewHeuristic(7)}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func candidates(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s topic%d", prefix, i)
	}
	return out
}

func singletons(kws []string) [][]string {
	out := make([][]string, len(kws))
	for i, k := range kws {
		out[i] = []string{k}
	}
	return out
}

func TestNew_RequiresCompleter(t *testing.T) {
	_, err := New(nil, nil, nil, nil, Config{}, nil)
	if !errors.Is(err, apperr.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRun_RejectsEmptySeed(t *testing.T) {
	g := newGenerator(t, &scriptedLLM{})
	_, err := g.Run(context.Background(), Request{Seed: "   "}, nil)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRun_EndToEnd(t *testing.T) {
	info := candidates("how to do content marketing", 14)
	commercial := candidates("best content marketing tools", 8)
	all := append(append([]string{}, info...), commercial...)
	all = append(all, "Content Marketing", "content marketing", "ab", "the")

	ranked := append(append([]string{}, info[:12]...), commercial[:4]...)
	llm := &scriptedLLM{replies: map[string]string{
		"Analyze the seed":       `{"intent": "Commercial", "subtopics": ["a", "b", "c", "d"], "modifiers": ["best"]}`,
		"Generate keyword ideas": "```json\n" + jsonOf(t, all) + "\n```",
		"Select the best":        "Here you go: " + jsonOf(t, ranked),
		"Group these keywords":   jsonOf(t, singletons(ranked)),
	}}
	g := newGenerator(t, llm)

	var steps []int
	resp, err := g.Run(context.Background(), Request{Seed: "content marketing"}, func(c int, _ string) {
		steps = append(steps, c)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i, s := range steps {
		if s != i {
			t.Fatalf("progress steps = %v", steps)
		}
	}
	if len(steps) != TotalStages+1 {
		t.Fatalf("progress steps = %v", steps)
	}

	n := len(resp.Keywords)
	if n < 10 || n > 20 {
		t.Fatalf("got %d keywords, want 10..20", n)
	}
	if resp.Metadata.TotalResults != n || len(resp.Ranking) != n {
		t.Errorf("total_results = %d, ranking = %d, keywords = %d", resp.Metadata.TotalResults, len(resp.Ranking), n)
	}
	if resp.Metadata.Query != "content marketing" || resp.Metadata.Language != "en" || resp.Metadata.Country != "us" {
		t.Errorf("unexpected metadata %+v", resp.Metadata)
	}
	if countIntent(resp.Keywords, estimate.Informational) < 3 || countIntent(resp.Keywords, estimate.Commercial) < 3 {
		t.Errorf("intent composition not met: %+v", resp.Keywords)
	}

	seen := map[string]bool{}
	for _, k := range resp.Keywords {
		key := strings.ToLower(k.Keyword)
		if seen[key] {
			t.Errorf("duplicate keyword %q", k.Keyword)
		}
		seen[key] = true
		if k.KeywordDifficulty < 0 || k.KeywordDifficulty > 100 || k.CompetitiveDensity < 0 || k.CompetitiveDensity > 1 {
			t.Errorf("metrics out of range: %+v", k)
		}
	}

	for i := 1; i < len(resp.Ranking); i++ {
		if resp.Ranking[i].Score > resp.Ranking[i-1].Score {
			t.Fatalf("ranking not descending: %+v", resp.Ranking)
		}
	}

	// estimation prompt was unscripted so every keyword fell back
	if len(resp.Fallbacks) != 1 || resp.Fallbacks[0] != StageEstimation {
		t.Errorf("fallbacks = %v", resp.Fallbacks)
	}
}

func TestRun_TopsUpMissingIntent(t *testing.T) {
	info := candidates("how to write blog posts", 15)
	commercial := candidates("buy blog templates", 5)
	llm := &scriptedLLM{replies: map[string]string{
		"Analyze the seed":       `{"intent": "informational"}`,
		"Generate keyword ideas": jsonOf(t, append(append([]string{}, info...), commercial...)),
		"Select the best":        jsonOf(t, info),
		"Group these keywords":   jsonOf(t, singletons(info)),
	}}
	resp, err := newGenerator(t, llm).Run(context.Background(), Request{Seed: "blogging"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := countIntent(resp.Keywords, estimate.Commercial); got != 3 {
		t.Errorf("commercial = %d, want 3 topped up", got)
	}
	if len(resp.Keywords) != 18 {
		t.Errorf("got %d keywords, want 18", len(resp.Keywords))
	}
}

func TestRun_CollaboratorDown(t *testing.T) {
	resp, err := newGenerator(t, &scriptedLLM{}).Run(context.Background(), Request{Seed: "seo"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Keywords == nil || len(resp.Keywords) != 0 || resp.Metadata.TotalResults != 0 {
		t.Errorf("expected empty result, got %+v", resp)
	}
	want := []string{StageSeedAnalysis, StageExpansion}
	if strings.Join(resp.Fallbacks, ",") != strings.Join(want, ",") {
		t.Errorf("fallbacks = %v, want %v", resp.Fallbacks, want)
	}
}

func TestRun_RankAndClusterFallbacks(t *testing.T) {
	kws := append(candidates("how to learn guitar", 20), candidates("cheap guitar strings", 10)...)
	llm := &scriptedLLM{replies: map[string]string{
		"Analyze the seed":       `{"intent": "informational"}`,
		"Generate keyword ideas": jsonOf(t, kws),
		"Select the best":        "I would pick the first few.",
		"Group these keywords":   `[["not a listed keyword"]]`,
	}}
	resp, err := newGenerator(t, llm).Run(context.Background(), Request{Seed: "guitar", TopN: 12}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	joined := strings.Join(resp.Fallbacks, ",")
	if !strings.Contains(joined, StageFilterRank) || !strings.Contains(joined, StageCluster) {
		t.Errorf("fallbacks = %v", resp.Fallbacks)
	}
	if n := len(resp.Keywords); n < 10 || n > 12 {
		t.Errorf("got %d keywords, want 10..12", n)
	}
	if countIntent(resp.Keywords, estimate.Commercial) < 3 {
		t.Errorf("expected commercial keywords topped up: %+v", resp.Keywords)
	}
}

func TestFilterCandidates(t *testing.T) {
	got := filterCandidates([]string{" SEO  Tips", "seo tips", "ab", "the", "how to rank", ""})
	want := []string{"SEO Tips", "how to rank"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("filterCandidates = %q, want %q", got, want)
	}
}

func TestClusterByOverlap(t *testing.T) {
	kws := []Keyword{
		{Keyword: "content marketing strategy"},
		{Keyword: "content marketing strategies"},
		{Keyword: "email marketing"},
		{Keyword: "the email marketing"},
	}
	reps := ClusterByOverlap(kws, overlapThreshold)
	if len(reps) != 2 || reps[0].Keyword != "content marketing strategy" || reps[1].Keyword != "email marketing" {
		t.Errorf("representatives = %+v", reps)
	}
}

func TestCluster_BackfillsToTen(t *testing.T) {
	var ranked []Keyword
	for i := range 15 {
		ranked = append(ranked, Keyword{Keyword: fmt.Sprintf("seo audit checklist %d", i)})
	}
	// every keyword overlaps the first, so overlap clustering yields one
	r := &run{g: newGenerator(t, &scriptedLLM{}), req: Request{Seed: "seo"}}
	out := r.cluster(context.Background(), ranked)
	if len(out) != 10 {
		t.Fatalf("got %d finalists, want 10", len(out))
	}
	if out[0].Keyword != ranked[0].Keyword || out[9].Keyword != ranked[9].Keyword {
		t.Errorf("expected rank order backfill, got %+v", out)
	}

	short := ranked[:4]
	if got := r.cluster(context.Background(), short); len(got) != 4 {
		t.Errorf("cluster must not exceed its input, got %d", len(got))
	}
}

func TestFinalQA_CapKeepsComposition(t *testing.T) {
	var finalists, all []Keyword
	for i := range 20 {
		finalists = append(finalists, Keyword{Keyword: fmt.Sprintf("what is seo %d", i), Metrics: estimate.Metrics{Intent: estimate.Informational}})
	}
	for i := range 5 {
		all = append(all, Keyword{Keyword: fmt.Sprintf("seo agency %d", i), Metrics: estimate.Metrics{Intent: estimate.Commercial}})
	}
	finalists = append(finalists, finalists[0])

	out := finalQA(finalists, nil, all, 20)
	if len(out) != 20 {
		t.Fatalf("got %d, want 20", len(out))
	}
	if countIntent(out, estimate.Commercial) != 3 || countIntent(out, estimate.Informational) != 17 {
		t.Errorf("unexpected composition: %+v", out)
	}
}

func TestRank(t *testing.T) {
	kws := []Keyword{
		{Keyword: "a", Metrics: estimate.Metrics{SearchVolume: 100, KeywordDifficulty: 9}},
		{Keyword: "b", Metrics: estimate.Metrics{SearchVolume: 1000, KeywordDifficulty: 49}},
		{Keyword: "c", Metrics: estimate.Metrics{SearchVolume: 200, KeywordDifficulty: 19}},
	}
	got := Rank(kws)
	if got[0].Keyword != "b" || got[0].Score != 20 {
		t.Errorf("top = %+v", got[0])
	}
	// a and c tie at 10; input order wins
	if got[1].Keyword != "a" || got[2].Keyword != "c" {
		t.Errorf("tie order = %+v", got)
	}
}

func TestFinalLimit(t *testing.T) {
	for in, want := range map[int]int{1: 10, 15: 15, 50: 20} {
		if got := finalLimit(in); got != want {
			t.Errorf("finalLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
