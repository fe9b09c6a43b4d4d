package router

import (
	"context"

	"github.com/mymmrac/telego"

	"tgrelay/pkg/correlation"
	"tgrelay/pkg/logger"
	"tgrelay/pkg/relay"
)

// controlEvents maps the buttons that forward one event and nothing else.
var controlEvents = map[correlation.ActionType]struct {
	event  string
	notice string
}{
	correlation.ActionClose:    {relay.EventChatClose, NoticeClosed},
	correlation.ActionAssign:   {relay.EventChatAssign, NoticeClaimed},
	correlation.ActionReplying: {relay.EventAdminTyping, NoticeReplying},
}

func (r *Router) routeCallback(ctx context.Context, cq *telego.CallbackQuery) Outcome {
	if cq.Message == nil || !r.fromControlChat(cq.Message.GetChat().ID) {
		return OutcomeIgnored
	}

	tok, err := correlation.DecodeAction(cq.Data)
	if err != nil || !tok.Type.Known() {
		logger.DebugCF("router", "Unhandled callback data", map[string]interface{}{
			logger.FieldAction: cq.Data,
		})
		r.ack(ctx, cq.ID, "")
		return OutcomeAcknowledged
	}

	admin := adminIdentity(&cq.From)
	switch tok.Type {
	case correlation.ActionQuickMessage:
		return r.quickMessage(ctx, cq.ID, tok, admin)
	case correlation.ActionQuickReplies:
		return r.presentQuickReplies(ctx, cq.ID, tok)
	}

	ce := controlEvents[tok.Type]
	data := relay.EventData{ChatID: tok.Ref, Admin: admin, Timestamp: r.now().UTC()}
	if _, err := r.forwarder.Forward(ctx, ce.event, data); err != nil {
		logger.ErrorCF("router", "Button action not forwarded", map[string]interface{}{
			logger.FieldAction:  string(tok.Type),
			logger.FieldChatRef: tok.Ref,
			logger.FieldError:   err.Error(),
		})
		r.ack(ctx, cq.ID, NoticeForwardFailed)
		return OutcomeFailed
	}
	r.ack(ctx, cq.ID, ce.notice)

	logger.InfoCF("router", "Button action forwarded", map[string]interface{}{
		logger.FieldEvent:    ce.event,
		logger.FieldChatRef:  tok.Ref,
		logger.FieldSenderID: admin.TelegramID,
	})
	return OutcomeForwarded
}

func (r *Router) quickMessage(ctx context.Context, callbackID string, tok correlation.ActionToken, admin relay.AdminIdentity) Outcome {
	idx, ok := tok.Index()
	if !ok || idx < 0 || idx >= len(r.canned) {
		r.ack(ctx, callbackID, NoticeNotFound)
		return OutcomeAcknowledged
	}

	data := relay.EventData{
		ChatID:    tok.Ref,
		Admin:     admin,
		Content:   &relay.Content{Type: relay.ContentText, Text: r.canned[idx]},
		Timestamp: r.now().UTC(),
	}
	if _, err := r.forwarder.Forward(ctx, relay.EventAdminMessage, data); err != nil {
		logger.ErrorCF("router", "Quick reply not forwarded", map[string]interface{}{
			logger.FieldChatRef: tok.Ref,
			"index":             idx,
			logger.FieldError:   err.Error(),
		})
		r.ack(ctx, callbackID, NoticeForwardFailed)
		return OutcomeFailed
	}
	r.ack(ctx, callbackID, NoticeSent)
	return OutcomeForwarded
}

func (r *Router) presentQuickReplies(ctx context.Context, callbackID string, tok correlation.ActionToken) Outcome {
	if r.presenter == nil {
		r.ack(ctx, callbackID, NoticePresentFailed)
		return OutcomeFailed
	}
	if _, err := r.presenter.PresentQuickReplies(ctx, tok.Ref); err != nil {
		logger.WarnCF("router", "Quick replies not presented", map[string]interface{}{
			logger.FieldChatRef: tok.Ref,
			logger.FieldError:   err.Error(),
		})
		r.ack(ctx, callbackID, NoticePresentFailed)
		return OutcomeFailed
	}
	r.ack(ctx, callbackID, "")
	return OutcomePresented
}

// ack clears the button spinner. A failed ack is logged only; the action
// it belongs to already happened.
func (r *Router) ack(ctx context.Context, callbackID, text string) {
	if err := r.platform.AnswerCallback(ctx, callbackID, text); err != nil {
		logger.WarnCF("router", "Callback acknowledgment failed", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	}
}
