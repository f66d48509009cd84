package contextmgr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxima-health/oracle/pkg/llm"
	"github.com/proxima-health/oracle/pkg/models"
	"github.com/proxima-health/oracle/pkg/tokens"
)

type fakeCaller struct {
	content string
	err     error
	calls   int
	prompts []string
}

func (f *fakeCaller) CallWithFallback(_ context.Context, messages []models.ChatMessage, _ llm.CallOptions) (*llm.CallResult, error) {
	f.calls++
	if len(messages) > 0 {
		f.prompts = append(f.prompts, messages[len(messages)-1].Content)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CallResult{Content: f.content}, nil
}

type fakeSummaries struct {
	rows []models.ContextSummary
	err  error
}

func (f *fakeSummaries) ListContextSummaries(context.Context, string) ([]models.ContextSummary, error) {
	return f.rows, f.err
}

func msg(role, content string) models.Message {
	return models.Message{Role: role, Content: content}
}

func msgs(n int) []models.Message {
	out := make([]models.Message, 0, n)
	for i := 0; i < n; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		out = append(out, msg(role, fmt.Sprintf("message number %d with some filler words", i)))
	}
	return out
}

func newManager(caller *fakeCaller, summaries SummaryReader) *Manager {
	return NewManager(caller, summaries, tokens.NewCounter())
}

func TestStatusFor_FreeTier(t *testing.T) {
	m := newManager(&fakeCaller{}, nil)

	short := []models.Message{{Role: models.RoleUser, Content: "hi", TokenCount: 100}}
	s := m.StatusFor(short, false)
	assert.True(t, s.CanContinue)
	assert.False(t, s.NeedsCompression)

	soft := []models.Message{{TokenCount: FreeSoftLimit}}
	s = m.StatusFor(soft, false)
	assert.True(t, s.CanContinue)
	assert.True(t, s.NeedsCompression)
	assert.NotEmpty(t, s.UpgradePrompt)

	hard := []models.Message{{TokenCount: FreeHardLimit}}
	s = m.StatusFor(hard, false)
	assert.False(t, s.CanContinue)
}

func TestStatusFor_PremiumNeverBlocks(t *testing.T) {
	m := newManager(&fakeCaller{}, nil)

	s := m.StatusFor([]models.Message{{TokenCount: PremiumAggressiveLimit + 1}}, true)
	assert.True(t, s.CanContinue)
	assert.True(t, s.NeedsCompression)
	assert.NotEmpty(t, s.Notice)
	assert.Empty(t, s.UpgradePrompt)
}

func TestStatusFor_CountsUnmeteredMessages(t *testing.T) {
	m := newManager(&fakeCaller{}, nil)
	s := m.StatusFor([]models.Message{msg(models.RoleUser, "one two three four five")}, false)
	assert.Positive(t, s.Tokens)
}

func TestCompressMedical_ShortConversationUntouched(t *testing.T) {
	caller := &fakeCaller{}
	m := newManager(caller, nil)

	in := msgs(13)
	out := m.CompressMedical(context.Background(), in)
	assert.Equal(t, in, out)
	assert.Zero(t, caller.calls)
}

func TestCompressMedical_KeepsSalientMiddleAndSummarizesRest(t *testing.T) {
	caller := &fakeCaller{content: "patient discussed mild headaches"}
	m := newManager(caller, nil)

	in := msgs(30)
	in[5] = msg(models.RoleUser, "I went to the hospital with chest pain")
	in[7] = msg(models.RoleUser, "my prescription is 20 mg daily")
	in[9] = msg(models.RoleAssistant, "I recommend you follow up with a cardiologist")
	in[11] = msg(models.RoleAssistant, "that sounds unrelated to me")

	out := m.CompressMedical(context.Background(), in)

	joined := ""
	for _, o := range out {
		joined += o.Content + "\n"
	}
	assert.Contains(t, joined, "chest pain")
	assert.Contains(t, joined, "20 mg daily")
	assert.Contains(t, joined, "recommend you follow up")
	assert.NotContains(t, joined, "that sounds unrelated")
	assert.Contains(t, joined, "[Previous conversation summary: patient discussed mild headaches]")

	// First 3 and last 10 always survive.
	assert.Equal(t, in[0], out[0])
	assert.Equal(t, in[len(in)-1], out[len(out)-1])
	assert.Equal(t, 1, caller.calls)
}

func TestCompressMedical_Dedupes(t *testing.T) {
	caller := &fakeCaller{content: "summary"}
	m := newManager(caller, nil)

	in := msgs(30)
	// A salient middle message identical to one in the tail.
	in[6] = msg(models.RoleUser, "severe pain in my knee")
	in[25] = msg(models.RoleUser, "severe pain in my knee")

	out := m.CompressMedical(context.Background(), in)
	count := 0
	for _, o := range out {
		if strings.Contains(o.Content, "severe pain in my knee") {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestCompressMedical_SummaryFailureDegrades(t *testing.T) {
	caller := &fakeCaller{err: errors.New("provider down")}
	m := newManager(caller, nil)

	out := m.CompressMedical(context.Background(), msgs(30))
	joined := ""
	for _, o := range out {
		joined += o.Content + "\n"
	}
	assert.Contains(t, joined, "earlier messages omitted")
}

func TestFreeTierContext(t *testing.T) {
	caller := &fakeCaller{content: "older context summary"}
	m := newManager(caller, nil)

	in := msgs(15)
	assert.Equal(t, in, m.FreeTierContext(context.Background(), in))
	assert.Zero(t, caller.calls)

	in = msgs(20)
	out := m.FreeTierContext(context.Background(), in)
	require.Len(t, out, 11)
	assert.Equal(t, models.RoleSystem, out[0].Role)
	assert.Contains(t, out[0].Content, "older context summary")
	assert.Equal(t, in[10:], out[1:])
}

func TestAggregateUserContext_UnderThresholdConcatenates(t *testing.T) {
	caller := &fakeCaller{}
	m := newManager(caller, &fakeSummaries{rows: []models.ContextSummary{
		{Summary: "knee injury in 2024"},
		{Summary: "allergic to penicillin"},
	}})

	got := m.AggregateUserContext(context.Background(), "u1", "knee pain again")
	assert.Contains(t, got, "knee injury in 2024")
	assert.Contains(t, got, "allergic to penicillin")
	assert.Zero(t, caller.calls)
}

func TestAggregateUserContext_OverThresholdResummarizes(t *testing.T) {
	big := strings.Repeat("symptom detail word ", 15_000)
	caller := &fakeCaller{content: "condensed history"}
	m := newManager(caller, &fakeSummaries{rows: []models.ContextSummary{{Summary: big}}})

	got := m.AggregateUserContext(context.Background(), "u1", "current question")
	assert.Equal(t, "condensed history", got)
	require.Equal(t, 1, caller.calls)
	assert.Contains(t, caller.prompts[0], "current question")
}

func TestAggregateUserContext_Empty(t *testing.T) {
	m := newManager(&fakeCaller{}, &fakeSummaries{})
	assert.Empty(t, m.AggregateUserContext(context.Background(), "u1", "q"))
	assert.Empty(t, m.AggregateUserContext(context.Background(), "", "q"))
}

func TestAggregateUserContext_StoreErrorReturnsEmpty(t *testing.T) {
	m := newManager(&fakeCaller{}, &fakeSummaries{err: errors.New("db down")})
	assert.Empty(t, m.AggregateUserContext(context.Background(), "u1", "q"))
}

func TestGenerateTitle(t *testing.T) {
	caller := &fakeCaller{content: `"Recurring Knee Pain"`}
	m := newManager(caller, nil)

	title := m.GenerateTitle(context.Background(), msgs(8))
	assert.Equal(t, "Recurring Knee Pain", title)
	// Only the first 6 messages feed the prompt.
	assert.NotContains(t, caller.prompts[0], "message number 6")
}

func TestGenerateTitle_Fallbacks(t *testing.T) {
	m := newManager(&fakeCaller{err: errors.New("down")}, nil)
	assert.Equal(t, "Health Discussion", m.GenerateTitle(context.Background(), msgs(2)))

	m = newManager(&fakeCaller{content: "   "}, nil)
	assert.Equal(t, "Health Discussion", m.GenerateTitle(context.Background(), msgs(2)))

	m = newManager(&fakeCaller{}, nil)
	assert.Equal(t, "Health Discussion", m.GenerateTitle(context.Background(), nil))
}

func TestGenerateTitle_Caps100Chars(t *testing.T) {
	m := newManager(&fakeCaller{content: strings.Repeat("long title ", 30)}, nil)
	title := m.GenerateTitle(context.Background(), msgs(2))
	assert.LessOrEqual(t, len(title), 100)
}
