package service

import (
	"strings"

	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/cloo-solutions/unirank/internal/prompts"
)

// PromptAssembler turns an instruction, retrieved context, the live query and
// optional history into the message list sent to the model. It is pure.
type PromptAssembler struct {
	template        prompts.Template
	noContextMarker string
}

func NewPromptAssembler(template prompts.Template, noContextMarker string) *PromptAssembler {
	return &PromptAssembler{template: template, noContextMarker: noContextMarker}
}

// Version returns the active template version.
func (a *PromptAssembler) Version() string {
	return a.template.Version
}

// HistoryAware reports whether the active template replays earlier turns.
func (a *PromptAssembler) HistoryAware() bool {
	return a.template.HistoryAware
}

// Assemble places the system instruction and context first, then history turns
// (history-aware templates only), then the query as the final user message.
func (a *PromptAssembler) Assemble(instruction string, context domain.CompressedContext, query string, history []domain.ConversationTurn) domain.Prompt {
	var system strings.Builder
	system.WriteString(strings.TrimSpace(instruction))
	system.WriteString("\n\n")
	if context.IsEmpty() {
		system.WriteString(a.noContextMarker)
	} else {
		system.WriteString(renderContext(context))
	}

	messages := make([]domain.Message, 0, 2+2*len(history))
	messages = append(messages, domain.Message{Role: domain.RoleSystem, Content: system.String()})

	if a.template.HistoryAware {
		for _, turn := range history {
			messages = append(messages,
				domain.Message{Role: domain.RoleUser, Content: turn.Query},
				domain.Message{Role: domain.RoleAssistant, Content: turn.Answer},
			)
		}
	}

	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: strings.TrimSpace(query)})

	return domain.Prompt{Version: a.template.Version, Messages: messages}
}

// AssembleWithTemplate uses the assembler's own instruction.
func (a *PromptAssembler) AssembleWithTemplate(context domain.CompressedContext, query string, history []domain.ConversationTurn) domain.Prompt {
	return a.Assemble(a.template.System, context, query, history)
}

func renderContext(context domain.CompressedContext) string {
	blocks := make([]string, 0, len(context.Passages))
	for _, p := range context.Passages {
		header := p.Record.Text()
		text := strings.TrimSpace(p.Text)
		if text == "" || text == header {
			blocks = append(blocks, header)
			continue
		}
		blocks = append(blocks, header+"\n"+text)
	}
	return strings.Join(blocks, "\n\n")
}
