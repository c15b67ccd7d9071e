package bot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"ads-scraper/config"
	"ads-scraper/db"
	"ads-scraper/logger"
	"ads-scraper/pagination"
)

// PageChoices are the page counts offered by /config
var PageChoices = []int{1, 2, 3, 5, 10}

const setPagesPrefix = "set_pages_"

const helpText = "Commands:\n" +
	"/start - Start the bot\n" +
	"/help - Show this help\n" +
	"/config - Choose how many pages to scrape\n" +
	"/status <id> - Show the state of a request\n\n" +
	"Send me a listing URL such as https://%s/search/iPage, and I will reply with a CSV file of the ads. " +
	"The page number is appended to the URL, or put " + pagination.Placeholder + " where it belongs."

// Sender is the part of the Telegram API the bot uses
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Store persists user settings and queued requests
type Store interface {
	GetUserConfig(ctx context.Context, userID int64, defaultPages int) (*db.UserConfig, error)
	UpdateUserPages(ctx context.Context, userID int64, pages int) error
	CreateRequest(ctx context.Context, userID int64, telegramMessageID int, url string, pages int) (*db.Request, error)
	GetRequestByID(ctx context.Context, requestID int) (*db.Request, error)
}

// Bot turns Telegram updates into queued scraping requests
type Bot struct {
	sender Sender
	store  Store
	cfg    *config.Config
	log    *zap.SugaredLogger
}

// New creates a bot
func New(sender Sender, store Store, cfg *config.Config, log *zap.SugaredLogger) *Bot {
	return &Bot{
		sender: sender,
		store:  store,
		cfg:    cfg,
		log:    logger.OrNop(log),
	}
}

// Run handles updates until ctx is done or the channel is closed
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate dispatches a single update
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallbackQuery(ctx, update.CallbackQuery)
		return
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}

	if !b.cfg.IsAllowedUser(msg.From.ID) {
		b.log.Warnf("Unauthorized user attempted to use bot: %d", msg.From.ID)
		b.reply(msg.Chat.ID, "Sorry, you are not authorized to use this bot.")
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.handleURL(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	switch msg.Command() {
	case "start":
		// Initialize user config
		if _, err := b.store.GetUserConfig(ctx, userID, b.cfg.Site.Pages); err != nil {
			b.log.Warnf("Failed to initialize user config for user %d: %v", userID, err)
		}
		b.reply(chatID, "Welcome! Send me a listing URL and I will collect the ads into a CSV file.")
	case "help":
		b.reply(chatID, fmt.Sprintf(helpText, b.cfg.Host()))
	case "config":
		userConfig, err := b.store.GetUserConfig(ctx, userID, b.cfg.Site.Pages)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Error loading config: %v", err))
			return
		}
		out := tgbotapi.NewMessage(chatID, configText("", userConfig.Pages))
		out.ReplyMarkup = pagesKeyboard()
		b.send(out)
	case "status":
		b.reply(chatID, b.requestStatus(ctx, userID, msg.CommandArguments()))
	default:
		b.reply(chatID, "Unknown command. Use /help for available commands.")
	}
}

// handleCallbackQuery handles presses on the /config keyboard
func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.From == nil || !b.cfg.IsAllowedUser(callback.From.ID) {
		b.request(tgbotapi.NewCallback(callback.ID, "Sorry, you are not authorized."))
		return
	}

	// Acknowledge callback
	b.request(tgbotapi.NewCallback(callback.ID, ""))

	if callback.Message == nil || callback.Message.Chat == nil {
		return
	}
	chatID := callback.Message.Chat.ID

	pages, err := parsePagesCallback(callback.Data)
	if err != nil {
		b.log.Warnf("Ignoring callback %q: %v", callback.Data, err)
		return
	}

	if err := b.store.UpdateUserPages(ctx, callback.From.ID, pages); err != nil {
		b.reply(chatID, fmt.Sprintf("❌ Error updating config: %v", err))
		return
	}

	edit := tgbotapi.NewEditMessageText(chatID, callback.Message.MessageID,
		configText(fmt.Sprintf("✅ Pages updated to %d", pages), pages))
	keyboard := pagesKeyboard()
	edit.ReplyMarkup = &keyboard
	b.send(edit)
}

// handleURL validates a listing URL and queues it
func (b *Bot) handleURL(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	rawURL, err := ValidateURL(msg.Text, b.cfg.Host())
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Please send a listing URL: %v", err))
		return
	}

	userConfig, err := b.store.GetUserConfig(ctx, userID, b.cfg.Site.Pages)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error loading config: %v", err))
		return
	}

	sent, err := b.sender.Send(tgbotapi.NewMessage(chatID,
		fmt.Sprintf("📝 Request received! %d page(s) will be scraped shortly.", userConfig.Pages)))
	if err != nil {
		b.log.Errorf("Error sending processing message: %v", err)
		return
	}

	req, err := b.store.CreateRequest(ctx, userID, sent.MessageID, rawURL, userConfig.Pages)
	if err != nil {
		b.log.Errorf("Error creating request: %v", err)
		b.send(tgbotapi.NewEditMessageText(chatID, sent.MessageID,
			fmt.Sprintf("❌ Error: Failed to create request: %v", err)))
		return
	}

	b.log.Infow("Created request", "request_id", req.ID, "user_id", userID, "url", rawURL)
	b.send(tgbotapi.NewEditMessageText(chatID, sent.MessageID,
		fmt.Sprintf("📝 Request #%d queued: %d page(s) will be scraped shortly.", req.ID, req.Pages)))
}

// requestStatus describes one of the user's requests
func (b *Bot) requestStatus(ctx context.Context, userID int64, args string) string {
	id, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || id <= 0 {
		return "Usage: /status <request id>"
	}

	req, err := b.store.GetRequestByID(ctx, id)
	if err != nil || req.UserID != userID {
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			b.log.Warnf("Failed to load request %d: %v", id, err)
		}
		return fmt.Sprintf("Request #%d not found", id)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Request #%d: %s\nURL: %s\nPages requested: %d", req.ID, req.Status, req.URL, req.Pages)
	if req.Status == db.StatusDone {
		fmt.Fprintf(&sb, "\nPages scraped: %d\nAds: %d", req.PagesCount, req.AdsCount)
	}
	if req.SheetName.Valid {
		fmt.Fprintf(&sb, "\nSheet: %s", req.SheetName.String)
	}
	if req.LastError.Valid {
		fmt.Fprintf(&sb, "\nError: %s", req.LastError.String)
	}
	return sb.String()
}

// ValidateURL checks that text is an absolute http(s) URL on host.
// Subdomains of host are accepted; an empty host accepts any site.
func ValidateURL(text, host string) (string, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return "", errors.New("message is empty")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "", errors.New("URL must start with http:// or https://")
	}

	u, err := url.Parse(pagination.PageURLFor(raw, 1))
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Hostname() == "" {
		return "", errors.New("URL has no host")
	}
	if host != "" {
		got := strings.ToLower(u.Hostname())
		want := strings.ToLower(host)
		if got != want && !strings.HasSuffix(got, "."+want) {
			return "", fmt.Errorf("only %s is supported", host)
		}
	}
	return raw, nil
}

func parsePagesCallback(data string) (int, error) {
	if !strings.HasPrefix(data, setPagesPrefix) {
		return 0, errors.New("unknown callback")
	}
	pages, err := strconv.Atoi(strings.TrimPrefix(data, setPagesPrefix))
	if err != nil || pages <= 0 {
		return 0, fmt.Errorf("invalid page count %q", data)
	}
	return pages, nil
}

func configText(prefix string, pages int) string {
	text := fmt.Sprintf("⚙️ Current Configuration:\n\n📄 Pages: %d\n\nSelect new value:", pages)
	if prefix != "" {
		text = prefix + "\n\n" + text
	}
	return text
}

func pagesKeyboard() tgbotapi.InlineKeyboardMarkup {
	var buttons []tgbotapi.InlineKeyboardButton
	for _, p := range PageChoices {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(strconv.Itoa(p), setPagesPrefix+strconv.Itoa(p)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(buttons[:3]...),
		tgbotapi.NewInlineKeyboardRow(buttons[3:]...),
	)
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.sender.Send(c); err != nil {
		b.log.Warnf("Failed to send message: %v", err)
	}
}

func (b *Bot) request(c tgbotapi.Chattable) {
	if _, err := b.sender.Request(c); err != nil {
		b.log.Warnf("Failed to answer callback: %v", err)
	}
}
