package scoring

import (
	"strings"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

// SuggestReply drafts a reply body for msg using the taxonomy templates.
// Acknowledgements get the acknowledge template; otherwise the category
// template is used, falling back to the default.
func (e *Engine) SuggestReply(msg model.Message, score model.ScoreResult) string {
	in := input{
		subject: Tokenize(Normalize(msg.Subject)),
		body:    Tokenize(Normalize(ExtractText(model.TruncateBody(msg.Body)))),
	}
	key := string(score.Category)
	if e.acknowledgement(in) {
		key = TemplateAcknowledge
	}
	tmpl, ok := e.tax.ReplyTemplates[key]
	if !ok {
		tmpl = e.tax.ReplyTemplates[TemplateDefault]
	}
	return strings.ReplaceAll(tmpl, "{name}", replyName(msg.Sender))
}

// BuildReply assembles the outbound reply for msg.
func (e *Engine) BuildReply(actionItemID string, msg model.Message, score model.ScoreResult) model.Reply {
	return model.Reply{
		ActionItemID: actionItemID,
		Recipient:    model.SenderAddress(msg.Sender),
		Subject:      model.ReplySubject(msg.Subject),
		Body:         e.SuggestReply(msg, score),
		InReplyTo:    msg.ID,
	}
}

func replyName(sender string) string {
	name := model.SenderName(sender)
	if name == "" {
		return "there"
	}
	return name
}
