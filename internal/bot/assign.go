package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"cleanops/internal/model"
	"cleanops/internal/service"
)

func (b *Bot) handleAssign(ctx context.Context, msg *tgbotapi.Message) error {
	sedeID, ok := b.currentSede(msg.Chat.ID)
	if !ok {
		return b.sendText(msg.Chat.ID, noSedeSelected)
	}
	candidate, err := parseAssignArgs(msg.CommandArguments(), b.today())
	if err != nil {
		if errors.Is(err, errUsage) {
			return b.sendText(msg.Chat.ID, "Usage: <code>/assign 12 3 2025-11-30 09:00-11:00</code>")
		}
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}

	attempt, err := b.deps.Assigner.Begin(ctx, sedeID, candidate)
	switch {
	case errors.Is(err, service.ErrDuplicateAssignment):
		return b.sendText(msg.Chat.ID, "⏳ This assignment is already being processed.")
	case errors.Is(err, service.ErrInvalidCandidate):
		return b.sendText(msg.Chat.ID, "The assignment is incomplete, check the ids and the time window.")
	case err != nil:
		return b.sendError(msg.Chat.ID, "Could not check the assignment", err)
	}

	if attempt.State != service.StateConflictPromptPending {
		return b.sendText(msg.Chat.ID, describeAttempt(attempt))
	}
	return b.promptConflicts(msg.Chat.ID, attempt)
}

func (b *Bot) promptConflicts(chatID int64, attempt *service.Attempt) error {
	key := b.storeAssignment(chatID, attempt, time.Now())
	token := strconv.FormatUint(key, 10)

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("⚠️ <b>Worker %d already has work at %s on %s</b>\n",
		attempt.Candidate.WorkerID, attempt.Candidate.Slot, attempt.Candidate.Date.Format(model.DateLayout)))
	for _, task := range attempt.Conflicts {
		builder.WriteString(formatTask(task))
	}
	builder.WriteString("\nAssign anyway?")

	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnConfirmAssign, cbAssignConfirmPrefix+token),
			tgbotapi.NewInlineKeyboardButtonData(btnDeclineAssign, cbAssignDeclinePrefix+token),
		),
	)
	return b.sendWithReplyMarkup(chatID, builder.String(), markup)
}

func (b *Bot) resolveAssignment(ctx context.Context, chatID int64, token string, confirm bool) error {
	key, err := strconv.ParseUint(token, 10, 64)
	if err != nil {
		return nil
	}
	pending, ok := b.takeAssignment(key, time.Now())
	if !ok || pending.chatID != chatID {
		return b.sendText(chatID, "This prompt has expired. Run /assign again.")
	}

	if confirm {
		err = b.deps.Assigner.Confirm(ctx, pending.attempt)
	} else {
		err = b.deps.Assigner.Decline(pending.attempt)
	}
	if err != nil {
		b.log.Warn("resolve assignment", zap.Uint64("prompt", key), zap.Error(err))
		return b.sendText(chatID, "This prompt has expired. Run /assign again.")
	}
	return b.sendText(chatID, describeAttempt(pending.attempt))
}

// storeAssignment keeps attempt for its confirm/decline buttons and drops
// prompts left unanswered for longer than pendingAssignmentTTL.
func (b *Bot) storeAssignment(chatID int64, attempt *service.Attempt, now time.Time) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, pending := range b.assignments {
		if now.Sub(pending.storedAt) > pendingAssignmentTTL {
			delete(b.assignments, key)
		}
	}
	b.nextPending++
	b.assignments[b.nextPending] = pendingAssignment{chatID: chatID, attempt: attempt, storedAt: now}
	return b.nextPending
}

func (b *Bot) takeAssignment(key uint64, now time.Time) (pendingAssignment, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pending, ok := b.assignments[key]
	delete(b.assignments, key)
	if ok && now.Sub(pending.storedAt) > pendingAssignmentTTL {
		return pendingAssignment{}, false
	}
	return pending, ok
}

func describeAttempt(attempt *service.Attempt) string {
	c := attempt.Candidate
	switch attempt.State {
	case service.StateApplied:
		return fmt.Sprintf("✅ Task #%d assigned to worker %d on %s at %s.",
			c.TaskID, c.WorkerID, c.Date.Format(model.DateLayout), c.Slot)
	case service.StateRejected:
		return fmt.Sprintf("🚫 Task #%d not assigned: %s.", c.TaskID, escape(attempt.Reason))
	case service.StateFailed:
		return fmt.Sprintf("❗ Task #%d not assigned: %s", c.TaskID, escape(errorText(attempt.Err)))
	default:
		return fmt.Sprintf("Task #%d: %s", c.TaskID, attempt.State)
	}
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
