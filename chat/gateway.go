package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"docchat/llm"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// defaultSystemPrompt grounds the assistant in the knowledge base.
const defaultSystemPrompt = "You are a helpful AI assistant with access to a knowledge base of documents. " +
	"When answering questions, use information from the documents when relevant and cite the source. " +
	"Be concise, friendly, and provide accurate information."

// contextSnippetLen bounds how much of each retrieved chunk is quoted
// into the prompt.
const contextSnippetLen = 300

// Retriever answers similarity queries over the knowledge base.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]llm.SearchResult, error)
}

// Turn is one conversation turn as exchanged with HTTP clients.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Reply is the assistant's answer for one round-trip.
type Reply struct {
	Text      string    `json:"reply"`
	Sources   []string  `json:"sources"`
	Timestamp time.Time `json:"timestamp"`
}

// Gateway performs one conversation round-trip: retrieve context,
// compose the prompt, call the model, record both turns.
type Gateway struct {
	model        model.BaseChatModel
	retriever    Retriever
	topK         int
	systemPrompt string
}

// NewGateway creates a gateway. retriever may be nil, in which case
// prompts are composed without document context.
func NewGateway(chatModel model.BaseChatModel, retriever Retriever, topK int) *Gateway {
	if topK <= 0 {
		topK = 3
	}
	return &Gateway{
		model:        chatModel,
		retriever:    retriever,
		topK:         topK,
		systemPrompt: defaultSystemPrompt,
	}
}

// Send handles one user message in the given session. A non-nil
// history replaces the session log first, so a stateless client can
// supply its own prior turns. The returned reply has been appended to
// the session together with the user turn.
func (g *Gateway) Send(ctx context.Context, sess *Session, message string, history []Turn) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("message cannot be empty")
	}

	if history != nil {
		sess.Replace(turnsToMessages(history))
	}

	contextBlock, sources, err := g.retrieveContext(ctx, message)
	if err != nil {
		return nil, err
	}

	system := g.systemPrompt
	if contextBlock != "" {
		system += "\n\nContext from documents:\n" + contextBlock
	}

	msgs := []*schema.Message{schema.SystemMessage(system)}
	msgs = append(msgs, sess.History()...)
	msgs = append(msgs, schema.UserMessage(message))

	resp, err := g.model.Generate(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrUpstream, err)
	}

	sess.Append(schema.UserMessage(message))
	sess.Append(schema.AssistantMessage(resp.Content, nil))

	return &Reply{
		Text:      resp.Content,
		Sources:   sources,
		Timestamp: time.Now(),
	}, nil
}

// Clear empties the session's conversation log.
func (g *Gateway) Clear(sess *Session) {
	sess.Clear()
}

// retrieveContext queries the knowledge base and formats the retrieved
// passages into a grounding block, returning the distinct source files.
func (g *Gateway) retrieveContext(ctx context.Context, message string) (string, []string, error) {
	if g.retriever == nil {
		return "", nil, nil
	}

	results, err := g.retriever.Search(ctx, message, g.topK)
	if err != nil {
		return "", nil, err
	}
	if len(results) == 0 {
		return "", nil, nil
	}

	var sb strings.Builder
	var sources []string
	seen := make(map[string]bool)

	for i, r := range results {
		snippet := truncateSnippet(r.Document.Content, contextSnippetLen)
		fmt.Fprintf(&sb, "Source %d (%s):\n%s\n\n", i+1, r.Document.Source, snippet)

		if !seen[r.Document.Source] {
			seen[r.Document.Source] = true
			sources = append(sources, r.Document.Source)
		}
	}

	return sb.String(), sources, nil
}

// truncateSnippet shortens text to at most maxBytes, backing up to a
// rune boundary so multi-byte characters are never split.
func truncateSnippet(text string, maxBytes int) string {
	if len(text) <= maxBytes {
		return text
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

// turnsToMessages converts client-supplied turns into model messages,
// dropping anything with an unknown role.
func turnsToMessages(turns []Turn) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(turns))
	for _, t := range turns {
		switch strings.ToLower(t.Role) {
		case "user":
			msgs = append(msgs, schema.UserMessage(t.Text))
		case "assistant":
			msgs = append(msgs, schema.AssistantMessage(t.Text, nil))
		}
	}
	return msgs
}
