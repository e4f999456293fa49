package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryTrace(t *testing.T) {
	var tr QueryTrace
	assert.Equal(t, QueryState(""), tr.Current())

	tr.Enter(QueryStateReceived)
	tr.Enter(QueryStateEmbedding)

	assert.Equal(t, QueryStateEmbedding, tr.Current())
	assert.True(t, tr.Visited(QueryStateReceived))
	assert.False(t, tr.Visited(QueryStateGenerating))
}

func TestQueryState_Terminal(t *testing.T) {
	assert.True(t, QueryStateAnswered.Terminal())
	assert.True(t, QueryStateFailed.Terminal())
	assert.False(t, QueryStateGenerating.Terminal())
}

func TestPrompt_Render(t *testing.T) {
	p := Prompt{
		Version: "v",
		Messages: []Message{
			{Role: RoleSystem, Content: "sys"},
			{Role: RoleUser, Content: "hi"},
		},
	}

	assert.Equal(t, "[system]\nsys\n\n[user]\nhi", p.Render())
	assert.Equal(t, "sys", p.SystemContent())
	assert.Equal(t, "", Prompt{}.SystemContent())
}

func TestPassagesFromResults(t *testing.T) {
	results := RetrievalResult{
		{Chunk: Chunk{Source: "QS", Rank: "1", University: "MIT", Country: "USA", Text: "Source: QS, Rank: 1"}, Score: 0.9},
	}

	ctx := PassagesFromResults(results)
	assert.False(t, ctx.Compressed)
	assert.False(t, ctx.IsEmpty())
	assert.Equal(t, "MIT", ctx.Passages[0].Record.University)
	assert.Equal(t, "Source: QS, Rank: 1", ctx.Passages[0].Text)

	assert.True(t, PassagesFromResults(nil).IsEmpty())
}

func TestValidateChunk(t *testing.T) {
	c := &Chunk{Source: "QS", Text: "x", Embedding: []float32{1, 2}}
	assert.NoError(t, ValidateChunk(c, 2))
	assert.Error(t, ValidateChunk(c, 3))
	assert.Error(t, ValidateChunk(nil, 2))
	assert.Error(t, ValidateChunk(&Chunk{Text: "x"}, 0))
}
