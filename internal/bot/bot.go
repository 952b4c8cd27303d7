package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"cleanops/internal/calendar"
	"cleanops/internal/model"
	"cleanops/internal/repository"
	"cleanops/internal/schedule"
	"cleanops/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageDate
	stageSlot
	stageProperty
	stageService
	stageChecklist
)

const (
	cbAssignConfirmPrefix = "assign-ok:"
	cbAssignDeclinePrefix = "assign-no:"
	cbStatusPrefix        = "status:"
)

const (
	btnSkip          = "⏭️ Skip"
	btnCancelDialog  = "⏪ Cancel input"
	btnConfirmAssign = "✅ Assign anyway"
	btnDeclineAssign = "↩️ Keep as is"
	menuLabelTasks   = "📋 Tasks"
	menuLabelAgenda  = "🧹 Agenda"
	menuLabelRules   = "♻️ Rules"
	menuLabelHelp    = "ℹ️ Help"
	noSedeSelected   = "Pick a sede first: /sedes lists them, /sede &lt;name&gt; selects or creates one."
	defaultIcsDays   = 14
	maxIcsDays       = 90
	defaultPreview   = 5

	pendingAssignmentTTL = time.Hour
)

type conversationState struct {
	stage  conversationStage
	sedeID uint
	input  service.TaskInput
}

// pendingAssignment is an attempt waiting for the user to accept its conflicts.
type pendingAssignment struct {
	chatID   int64
	attempt  *service.Attempt
	storedAt time.Time
}

// Deps are the services the bot talks to.
type Deps struct {
	Workers      *repository.WorkerRepository
	Sedes        *repository.SedeRepository
	Tasks        *service.TaskService
	Rules        *service.RuleService
	Availability *service.AvailabilityService
	Agenda       *service.AgendaService
	Assigner     *service.Assigner
	Materialize  *service.MaterializeJob
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api  *tgbotapi.BotAPI
	deps Deps
	loc  *time.Location
	log  *zap.Logger

	conversations map[int64]*conversationState
	selectedSedes map[int64]uint
	assignments   map[uint64]pendingAssignment
	nextPending   uint64
	mu            sync.Mutex
}

func New(token string, deps Deps, loc *time.Location, log *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}

	log.Info("bot authorized", zap.String("account", api.Self.UserName))

	return &Bot{
		api:           api,
		deps:          deps,
		loc:           loc,
		log:           log,
		conversations: make(map[int64]*conversationState),
		selectedSedes: make(map[int64]uint),
		assignments:   make(map[uint64]pendingAssignment),
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Error("handle callback", zap.Error(err))
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Error("handle message", zap.Error(err))
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		b.log.Info("command",
			zap.Int64("from", msg.From.ID),
			zap.String("command", msg.Command()),
			zap.String("args", msg.CommandArguments()))
		return b.handleCommand(ctx, msg)
	}

	if b.hasConversation(msg.From.ID) {
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "I did not get that. Try /help for the list of commands.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "sedes":
		return b.handleSedes(ctx, msg)
	case "sede":
		return b.handleSelectSede(ctx, msg)
	case "workers":
		return b.handleWorkers(ctx, msg)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "newtask":
		return b.startNewTaskConversation(ctx, msg)
	case "status":
		return b.handleStatus(ctx, msg)
	case "deletetask":
		return b.handleDeleteTask(ctx, msg)
	case "assign":
		return b.handleAssign(ctx, msg)
	case "rules":
		return b.handleRules(ctx, msg)
	case "newrule":
		return b.handleNewRule(ctx, msg)
	case "pause":
		return b.handlePause(ctx, msg)
	case "resume":
		return b.handleResume(ctx, msg)
	case "preview":
		return b.handlePreview(ctx, msg)
	case "materialize":
		return b.handleMaterialize(ctx, msg)
	case "availability":
		return b.handleAvailability(ctx, msg)
	case "setavail":
		return b.handleSetAvailability(ctx, msg)
	case "ics":
		return b.handleICS(ctx, msg)
	case "agenda":
		return b.handleAgenda(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	worker, err := b.ensureWorker(ctx, msg.From)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf(
		"👋 Hi, %s!\n<b>I plan cleaning jobs across sedes.</b>\nYour worker id is <b>%d</b>.\n\n"+
			"Start with /sedes and /sede &lt;name&gt;, then /tasks or /newrule.\n"+
			"Every morning I send you your agenda. /help lists everything.",
		escape(name), worker.ID,
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Commands</b>\n" +
		"<b>Sedes</b>\n" +
		"• /sedes — list sedes\n" +
		"• /sede &lt;id|name&gt; — select (or create) the sede for this chat\n" +
		"<b>Tasks</b>\n" +
		"• /tasks [date] — tasks of the day\n" +
		"• /newtask — create a one-off task step by step\n" +
		"• /status &lt;task&gt; &lt;pending|in-progress|completed&gt;\n" +
		"• /deletetask &lt;task&gt;\n" +
		"• /assign &lt;task&gt; &lt;worker&gt; &lt;date&gt; &lt;HH:MM-HH:MM&gt; — move a task, with overlap and availability checks\n" +
		"• /agenda [date] — day plan of the sede\n" +
		"<b>Recurring</b>\n" +
		"• /rules — rules of the sede\n" +
		"• /newrule &lt;property&gt; &lt;daily|weekly|monthly&gt; &lt;start&gt; &lt;HH:MM-HH:MM&gt; [every=N] [days=mon,thu] [day=15] [until=date] [worker=id] [service=x] [client=x] [cost=45.50] [checklist=a,b]\n" +
		"• /pause &lt;rule&gt;, /resume &lt;rule&gt;, /preview &lt;rule&gt; [n]\n" +
		"• /materialize — create due tasks now\n" +
		"<b>Workers</b>\n" +
		"• /workers — active workers\n" +
		"• /availability &lt;worker&gt; — weekly schedule\n" +
		"• /setavail &lt;worker&gt; &lt;0-6|mon..sun&gt; &lt;off|all|HH:MM-HH:MM&gt;\n" +
		"• /ics &lt;worker&gt; [days] — calendar file\n" +
		"• /cancel — cancel the current input"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleSedes(ctx context.Context, msg *tgbotapi.Message) error {
	sedes, err := b.deps.Sedes.ListAll(ctx)
	if err != nil {
		return b.sendError(msg.Chat.ID, "Could not load sedes", err)
	}
	if len(sedes) == 0 {
		return b.sendText(msg.Chat.ID, "No sedes yet. Create one with /sede &lt;name&gt;.")
	}
	current, _ := b.currentSede(msg.Chat.ID)

	var builder strings.Builder
	builder.WriteString("🏢 <b>Sedes</b>\n")
	for _, sede := range sedes {
		marker := "•"
		if sede.ID == current {
			marker = "▶️"
		}
		builder.WriteString(fmt.Sprintf("%s <b>%d</b> %s\n", marker, sede.ID, escape(sede.Name)))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleSelectSede(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendText(msg.Chat.ID, "Give a sede id or name: /sede North")
	}

	var (
		sede *model.Sede
		err  error
	)
	if id, idErr := parseID(args); idErr == nil {
		sede, err = b.deps.Sedes.GetByID(ctx, id)
	} else {
		sede, err = b.deps.Sedes.FindByName(ctx, args)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			sede, err = b.deps.Sedes.GetOrCreate(ctx, args)
		}
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(msg.Chat.ID, "Sede not found.")
		}
		return b.sendError(msg.Chat.ID, "Could not select sede", err)
	}

	b.setSede(msg.Chat.ID, sede.ID)
	b.log.Info("sede selected", zap.Int64("chat", msg.Chat.ID), zap.Uint("sede_id", sede.ID))
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🏢 Working in <b>%s</b> (#%d).", escape(sede.Name), sede.ID))
}

func (b *Bot) handleWorkers(ctx context.Context, msg *tgbotapi.Message) error {
	workers, err := b.deps.Workers.ListActive(ctx)
	if err != nil {
		return b.sendError(msg.Chat.ID, "Could not load workers", err)
	}
	if len(workers) == 0 {
		return b.sendText(msg.Chat.ID, "No workers yet. Workers join by sending /start.")
	}
	var builder strings.Builder
	builder.WriteString("👥 <b>Workers</b>\n")
	for _, w := range workers {
		builder.WriteString(fmt.Sprintf("• <b>%d</b> %s\n", w.ID, escape(workerName(w))))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	sedeID, ok := b.currentSede(msg.Chat.ID)
	if !ok {
		return b.sendText(msg.Chat.ID, noSedeSelected)
	}
	day, err := parseDay(msg.CommandArguments(), b.today())
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	return b.sendTaskList(ctx, msg.Chat.ID, sedeID, day)
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, sedeID uint, day time.Time) error {
	tasks, err := b.deps.Tasks.ListByDate(ctx, sedeID, day)
	if err != nil {
		return b.sendError(chatID, "Could not load tasks", err)
	}
	if len(tasks) == 0 {
		return b.sendText(chatID, fmt.Sprintf("No tasks on %s. Add one with /newtask.", day.Format(model.DateLayout)))
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📋 <b>Tasks on %s</b>\n", day.Format("Mon 2006-01-02")))
	builder.WriteString("Tap a button to move a task along.\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, task := range tasks {
		builder.WriteString(formatTask(task))
		if next, ok := nextStatus(task.Status); ok {
			label := fmt.Sprintf("%s #%d → %s", statusIcon(next), task.ID, next)
			data := fmt.Sprintf("%s%d:%s", cbStatusPrefix, task.ID, next)
			buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, data)))
		}
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ParseMode = tgbotapi.ModeHTML
	if len(buttons) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	}
	_, err = b.api.Send(msg)
	return err
}

func (b *Bot) startNewTaskConversation(_ context.Context, msg *tgbotapi.Message) error {
	sedeID, ok := b.currentSede(msg.Chat.ID)
	if !ok {
		return b.sendText(msg.Chat.ID, noSedeSelected)
	}
	b.log.Info("start new task conversation", zap.Int64("from", msg.From.ID), zap.Uint("sede_id", sedeID))
	b.setConversation(msg.From.ID, &conversationState{stage: stageDate, sedeID: sedeID})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 New task.\n<b>Step 1:</b> which day? <code>2025-11-30</code>, today or tomorrow.", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageDate:
		day, err := parseDay(text, b.today())
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Use the <code>2025-11-30</code> format.", cancelKeyboard())
		}
		state.input.Date = day
		state.stage = stageSlot
		return b.sendWithReplyMarkup(msg.Chat.ID, "<b>Step 2:</b> time window, e.g. <code>09:00-11:30</code>.", cancelKeyboard())
	case stageSlot:
		slot, err := schedule.ParseRange(text)
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Use <code>HH:MM-HH:MM</code> with the end after the start.", cancelKeyboard())
		}
		state.input.Slot = slot
		state.stage = stageProperty
		return b.sendWithReplyMarkup(msg.Chat.ID, "<b>Step 3:</b> which property?", cancelKeyboard())
	case stageProperty:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "The property can not be empty.", cancelKeyboard())
		}
		state.input.PropertyRef = text
		state.stage = stageService
		return b.sendWithReplyMarkup(msg.Chat.ID, "<b>Step 4:</b> service type (turnover, deep clean…) or skip.", skipKeyboard())
	case stageService:
		if !isSkipInput(text) {
			state.input.ServiceType = text
		}
		state.stage = stageChecklist
		return b.sendWithReplyMarkup(msg.Chat.ID, "<b>Step 5:</b> checklist notes or skip.", skipKeyboard())
	case stageChecklist:
		if !isSkipInput(text) {
			state.input.Checklist = text
		}
		err := b.finishTaskCreation(ctx, msg.Chat.ID, state.sedeID, state.input)
		b.clearConversation(msg.From.ID)
		return err
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Input reset. Try again with /newtask.")
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, chatID int64, sedeID uint, input service.TaskInput) error {
	task, err := b.deps.Tasks.CreateTask(ctx, sedeID, input)
	if err != nil {
		return b.sendError(chatID, "Could not save the task", err)
	}
	b.log.Info("task created", zap.Uint("task_id", task.ID), zap.Uint("sede_id", sedeID))

	text := fmt.Sprintf("✅ <b>Task saved</b>\n%sAssign it with <code>/assign %d &lt;worker&gt; %s %s-%s</code>",
		formatTask(*task), task.ID, task.Date.Format(model.DateLayout), task.StartTime, task.EndTime)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(msg)
	return err
}

func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message) error {
	sedeID, ok := b.currentSede(msg.Chat.ID)
	if !ok {
		return b.sendText(msg.Chat.ID, noSedeSelected)
	}
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) != 2 {
		return b.sendText(msg.Chat.ID, "Usage: /status 12 completed")
	}
	taskID, err := parseID(fields[0])
	if err != nil {
		return b.sendText(msg.Chat.ID, "Task id must be a number.")
	}
	return b.setStatus(ctx, msg.Chat.ID, sedeID, taskID, model.TaskStatus(strings.ToLower(fields[1])))
}

func (b *Bot) setStatus(ctx context.Context, chatID int64, sedeID, taskID uint, status model.TaskStatus) error {
	task, err := b.deps.Tasks.SetStatus(ctx, sedeID, taskID, status)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(chatID, "Task not found.")
		}
		return b.sendError(chatID, "Could not update the task", err)
	}
	b.log.Info("task status changed", zap.Uint("task_id", task.ID), zap.String("status", string(task.Status)))
	return b.sendText(chatID, fmt.Sprintf("%s Task #%d is now <b>%s</b>.", statusIcon(task.Status), task.ID, task.Status))
}

func (b *Bot) handleDeleteTask(ctx context.Context, msg *tgbotapi.Message) error {
	sedeID, ok := b.currentSede(msg.Chat.ID)
	if !ok {
		return b.sendText(msg.Chat.ID, noSedeSelected)
	}
	taskID, err := parseID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give the task id: /deletetask 12")
	}
	if err := b.deps.Tasks.DeleteTask(ctx, sedeID, taskID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(msg.Chat.ID, "Task not found.")
		}
		return b.sendError(msg.Chat.ID, "Could not delete the task", err)
	}
	b.log.Info("task deleted", zap.Uint("task_id", taskID), zap.Uint("sede_id", sedeID))
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🗑 Task #%d deleted.", taskID))
}

func (b *Bot) handleRules(ctx context.Context, msg *tgbotapi.Message) error {
	sedeID, ok := b.currentSede(msg.Chat.ID)
	if !ok {
		return b.sendText(msg.Chat.ID, noSedeSelected)
	}
	rules, err := b.deps.Rules.ListRules(ctx, sedeID)
	if err != nil {
		return b.sendError(msg.Chat.ID, "Could not load rules", err)
	}
	if len(rules) == 0 {
		return b.sendText(msg.Chat.ID, "No recurring rules yet. See /help for /newrule.")
	}
	var builder strings.Builder
	builder.WriteString("♻️ <b>Recurring rules</b>\n\n")
	for _, rule := range rules {
		builder.WriteString(formatRule(rule))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleNewRule(ctx context.Context, msg *tgbotapi.Message) error {
	sedeID, ok := b.currentSede(msg.Chat.ID)
	if !ok {
		return b.sendText(msg.Chat.ID, noSedeSelected)
	}
	input, err := parseRuleArgs(msg.CommandArguments(), b.today())
	if err != nil {
		if errors.Is(err, errUsage) {
			return b.sendText(msg.Chat.ID, "Usage: <code>/newrule villa_12 weekly 2025-01-06 10:00-12:00 every=2 worker=3</code>")
		}
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	rule, err := b.deps.Rules.CreateRule(ctx, sedeID, input)
	if err != nil {
		return b.sendError(msg.Chat.ID, "Could not save the rule", err)
	}
	b.log.Info("rule created", zap.Uint("rule_id", rule.ID), zap.Uint("sede_id", sedeID), zap.String("frequency", rule.Frequency))
	return b.sendText(msg.Chat.ID, "✅ <b>Rule saved</b>\n"+formatRule(*rule))
}

func (b *Bot) handlePause(ctx context.Context, msg *tgbotapi.Message) error {
	sedeID, ok := b.currentSede(msg.Chat.ID)
	if !ok {
		return b.sendText(msg.Chat.ID, noSedeSelected)
	}
	ruleID, err := parseID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give the rule id: /pause 4")
	}
	if err := b.deps.Rules.PauseRule(ctx, sedeID, ruleID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(msg.Chat.ID, "Rule not found.")
		}
		return b.sendError(msg.Chat.ID, "Could not pause the rule", err)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("⏸ Rule #%d paused.", ruleID))
}

func (b *Bot) handleResume(ctx context.Context, msg *tgbotapi.Message) error {
	sedeID, ok := b.currentSede(msg.Chat.ID)
	if !ok {
		return b.sendText(msg.Chat.ID, noSedeSelected)
	}
	ruleID, err := parseID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give the rule id: /resume 4")
	}
	rule, err := b.deps.Rules.ResumeRule(ctx, sedeID, ruleID, b.today())
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return b.sendText(msg.Chat.ID, "Rule not found.")
	case errors.Is(err, service.ErrRuleFinished):
		return b.sendText(msg.Chat.ID, "This rule is past its end date.")
	case err != nil:
		return b.sendError(msg.Chat.ID, "Could not resume the rule", err)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("▶️ Rule #%d resumed, next on %s.", rule.ID, rule.NextExecution.Format(model.DateLayout)))
}

func (b *Bot) handlePreview(ctx context.Context, msg *tgbotapi.Message) error {
	sedeID, ok := b.currentSede(msg.Chat.ID)
	if !ok {
		return b.sendText(msg.Chat.ID, noSedeSelected)
	}
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) == 0 || len(fields) > 2 {
		return b.sendText(msg.Chat.ID, "Usage: /preview 4 [count]")
	}
	ruleID, err := parseID(fields[0])
	if err != nil {
		return b.sendText(msg.Chat.ID, "Rule id must be a number.")
	}
	n := defaultPreview
	if len(fields) == 2 {
		count, err := parseID(fields[1])
		if err != nil || count > 30 {
			return b.sendText(msg.Chat.ID, "Count must be between 1 and 30.")
		}
		n = int(count)
	}

	dates, err := b.deps.Rules.PreviewRule(ctx, sedeID, ruleID, n)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(msg.Chat.ID, "Rule not found.")
		}
		return b.sendError(msg.Chat.ID, "Could not preview the rule", err)
	}
	if len(dates) == 0 {
		return b.sendText(msg.Chat.ID, "No upcoming occurrences.")
	}
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("🔮 <b>Next occurrences of #%d</b>\n", ruleID))
	for _, d := range dates {
		builder.WriteString(fmt.Sprintf("• %s\n", d.Format("Mon 2006-01-02")))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleMaterialize(ctx context.Context, msg *tgbotapi.Message) error {
	sedeID, ok := b.currentSede(msg.Chat.ID)
	if !ok {
		return b.sendText(msg.Chat.ID, noSedeSelected)
	}
	result, err := b.deps.Materialize.RunSede(ctx, sedeID, b.today())
	if errors.Is(err, service.ErrRunInProgress) {
		return b.sendText(msg.Chat.ID, "⏳ A materialization run is already in progress, try again in a moment.")
	}

	text := fmt.Sprintf("🏭 Created %d task(s), deactivated %d rule(s).", len(result.Created), len(result.Deactivated))
	if len(result.Failed) > 0 {
		text += fmt.Sprintf("\n⚠️ %d rule(s) failed and will be retried next run.", len(result.Failed))
	}
	if err != nil && len(result.Failed) == 0 {
		return b.sendError(msg.Chat.ID, "Materialization failed", err)
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleAvailability(ctx context.Context, msg *tgbotapi.Message) error {
	workerID, err := parseID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give the worker id: /availability 3")
	}
	records, err := b.deps.Availability.Week(ctx, workerID)
	if err != nil {
		return b.sendError(msg.Chat.ID, "Could not load availability", err)
	}
	return b.sendText(msg.Chat.ID, formatWeek(workerID, records))
}

func (b *Bot) handleSetAvailability(ctx context.Context, msg *tgbotapi.Message) error {
	workerID, weekday, value, err := parseSetAvailArgs(msg.CommandArguments())
	if err != nil {
		if errors.Is(err, errUsage) {
			return b.sendText(msg.Chat.ID, "Usage: /setavail 3 fri 08:00-17:00 (or off, all)")
		}
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	if _, err := b.deps.Availability.SetDay(ctx, workerID, weekday, value); err != nil {
		return b.sendError(msg.Chat.ID, "Could not save availability", err)
	}
	records, err := b.deps.Availability.Week(ctx, workerID)
	if err != nil {
		return b.sendError(msg.Chat.ID, "Could not load availability", err)
	}
	return b.sendText(msg.Chat.ID, formatWeek(workerID, records))
}

func (b *Bot) handleICS(ctx context.Context, msg *tgbotapi.Message) error {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) == 0 || len(fields) > 2 {
		return b.sendText(msg.Chat.ID, "Usage: /ics 3 [days]")
	}
	workerID, err := parseID(fields[0])
	if err != nil {
		return b.sendText(msg.Chat.ID, "Worker id must be a number.")
	}
	days := defaultIcsDays
	if len(fields) == 2 {
		n, err := parseID(fields[1])
		if err != nil || n > maxIcsDays {
			return b.sendText(msg.Chat.ID, fmt.Sprintf("Days must be between 1 and %d.", maxIcsDays))
		}
		days = int(n)
	}

	worker, err := b.deps.Workers.GetByID(ctx, workerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(msg.Chat.ID, "Worker not found.")
		}
		return b.sendError(msg.Chat.ID, "Could not load the worker", err)
	}
	data, err := b.workerCalendar(ctx, *worker, days)
	if err != nil {
		return b.sendError(msg.Chat.ID, "Could not build the calendar", err)
	}

	doc := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FileBytes{Name: fmt.Sprintf("worker-%d.ics", worker.ID), Bytes: data})
	doc.Caption = fmt.Sprintf("📆 %s, next %d days", workerName(*worker), days)
	_, err = b.api.Send(doc)
	return err
}

func (b *Bot) workerCalendar(ctx context.Context, worker model.Worker, days int) ([]byte, error) {
	tasks, err := b.deps.Tasks.WorkerTasks(ctx, worker.ID, b.today(), days)
	if err != nil {
		return nil, err
	}
	rules, err := b.deps.Rules.WorkerRules(ctx, worker.ID)
	if err != nil {
		return nil, err
	}
	sedes, err := b.deps.Sedes.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[uint]string, len(sedes))
	for _, sede := range sedes {
		names[sede.ID] = sede.Name
	}
	return calendar.Export(calendar.Feed{
		Name:      workerName(worker),
		Tasks:     tasks,
		Rules:     rules,
		SedeNames: names,
		Location:  b.loc,
		Now:       time.Now(),
	})
}

func (b *Bot) handleAgenda(ctx context.Context, msg *tgbotapi.Message) error {
	sedeID, ok := b.currentSede(msg.Chat.ID)
	if !ok {
		return b.sendText(msg.Chat.ID, noSedeSelected)
	}
	day, err := parseDay(msg.CommandArguments(), b.today())
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	text, err := b.deps.Agenda.SedeAgenda(ctx, sedeID, day)
	if err != nil {
		return b.sendError(msg.Chat.ID, "Could not build the agenda", err)
	}
	return b.sendText(msg.Chat.ID, text)
}

// SendDailyAgendas sends each active worker the plan of their day.
func (b *Bot) SendDailyAgendas(ctx context.Context) error {
	workers, err := b.deps.Workers.ListActive(ctx)
	if err != nil {
		return err
	}

	today := b.today()
	for _, worker := range workers {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if worker.TelegramID == 0 {
			continue
		}
		text, err := b.deps.Agenda.WorkerAgenda(ctx, worker, today)
		if err != nil {
			b.log.Error("build agenda", zap.Uint("worker_id", worker.ID), zap.Error(err))
			continue
		}
		if err := b.sendText(worker.TelegramID, text); err != nil {
			b.log.Error("send agenda", zap.Uint("worker_id", worker.ID), zap.Error(err))
		}
	}
	return nil
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn("callback ack", zap.Error(err))
	}

	data := cb.Data
	chatID := cb.Message.Chat.ID
	b.log.Info("callback", zap.Int64("from", cb.From.ID), zap.String("data", data))

	switch {
	case strings.HasPrefix(data, cbAssignConfirmPrefix):
		return b.resolveAssignment(ctx, chatID, strings.TrimPrefix(data, cbAssignConfirmPrefix), true)
	case strings.HasPrefix(data, cbAssignDeclinePrefix):
		return b.resolveAssignment(ctx, chatID, strings.TrimPrefix(data, cbAssignDeclinePrefix), false)
	case strings.HasPrefix(data, cbStatusPrefix):
		sedeID, ok := b.currentSede(chatID)
		if !ok {
			return b.sendText(chatID, noSedeSelected)
		}
		rawID, rawStatus, found := strings.Cut(strings.TrimPrefix(data, cbStatusPrefix), ":")
		taskID, err := parseID(rawID)
		if !found || err != nil {
			return nil
		}
		return b.setStatus(ctx, chatID, sedeID, taskID, model.TaskStatus(rawStatus))
	default:
		return nil
	}
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelTasks):
		return true, b.handleListTasks(ctx, msg)
	case strings.ToLower(menuLabelAgenda):
		return true, b.handleAgenda(ctx, msg)
	case strings.ToLower(menuLabelRules):
		return true, b.handleRules(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func (b *Bot) ensureWorker(ctx context.Context, from *tgbotapi.User) (*model.Worker, error) {
	return b.deps.Workers.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

func (b *Bot) today() time.Time {
	return model.DateOf(time.Now().In(b.loc))
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendError(chatID int64, prefix string, err error) error {
	b.log.Error(strings.ToLower(prefix), zap.Int64("chat", chatID), zap.Error(err))
	return b.sendText(chatID, fmt.Sprintf("%s: %s", prefix, escape(err.Error())))
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) currentSede(chatID int64) (uint, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.selectedSedes[chatID]
	return id, ok
}

func (b *Bot) setSede(chatID int64, sedeID uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selectedSedes[chatID] = sedeID
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelTasks),
			tgbotapi.NewKeyboardButton(menuLabelAgenda),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelRules),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "skip"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "cancel"
}

func escape(s string) string {
	return html.EscapeString(s)
}
