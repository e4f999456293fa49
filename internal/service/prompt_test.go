package service

import (
	"strings"
	"testing"

	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/cloo-solutions/unirank/internal/prompts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptAssembler_Assemble(t *testing.T) {
	template := prompts.Template{Version: "test-v1", HistoryAware: true, System: "Answer from the records."}
	a := NewPromptAssembler(template, "NOTHING FOUND")

	history := []domain.ConversationTurn{
		{Query: "MIT", Answer: "QS World University Rank: 1"},
		{Query: "and Oxford?", Answer: "QS World University Rank: 3"},
	}
	context := domain.CompressedContext{Passages: []domain.Passage{
		{Record: domain.RankingRecord{Source: "QS", Rank: "3", University: "Harvard University", Country: "United States"}, Text: "Harvard is third."},
		{Record: domain.RankingRecord{Source: "THE", Rank: "4", University: "Harvard University", Country: "United States"}},
	}}

	p := a.Assemble("  Answer from the records.  ", context, " Harvard? ", history)

	require.Len(t, p.Messages, 6)
	assert.Equal(t, "test-v1", p.Version)
	assert.Equal(t, domain.RoleSystem, p.Messages[0].Role)
	assert.Equal(t,
		"Answer from the records.\n\n"+
			"Source: QS, Rank: 3, University: Harvard University, Country: United States\nHarvard is third.\n\n"+
			"Source: THE, Rank: 4, University: Harvard University, Country: United States",
		p.Messages[0].Content)
	assert.Equal(t, domain.Message{Role: domain.RoleUser, Content: "MIT"}, p.Messages[1])
	assert.Equal(t, domain.Message{Role: domain.RoleAssistant, Content: "QS World University Rank: 1"}, p.Messages[2])
	assert.Equal(t, domain.Message{Role: domain.RoleUser, Content: "Harvard?"}, p.Messages[5])
}

func TestPromptAssembler_EmptyContextUsesMarker(t *testing.T) {
	a := NewPromptAssembler(prompts.Template{Version: "v", System: "Instr"}, "NOTHING FOUND")

	p := a.AssembleWithTemplate(domain.CompressedContext{}, "Hogwarts", nil)

	require.Len(t, p.Messages, 2)
	assert.Equal(t, "Instr\n\nNOTHING FOUND", p.SystemContent())
	assert.False(t, a.HistoryAware())
}

func TestPromptAssembler_StatelessDropsHistory(t *testing.T) {
	a := NewPromptAssembler(prompts.Template{Version: "v", System: "Instr"}, "none")

	p := a.AssembleWithTemplate(domain.CompressedContext{}, "q", []domain.ConversationTurn{{Query: "old", Answer: "old answer"}})

	require.Len(t, p.Messages, 2)
	assert.NotContains(t, p.Render(), "old answer")
}

func TestPromptAssembler_IsPure(t *testing.T) {
	catalog := prompts.MustLoad()
	template, err := catalog.Template("rankings-chat-v1")
	require.NoError(t, err)
	a := NewPromptAssembler(template, catalog.NoContextMarker)

	context := domain.PassagesFromResults(rankingResults())
	history := []domain.ConversationTurn{{Query: "MIT", Answer: "1"}}

	first := a.AssembleWithTemplate(context, "Harvard", history).Render()
	second := a.AssembleWithTemplate(context, "Harvard", history).Render()

	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(first, "[system]\n"))
}
