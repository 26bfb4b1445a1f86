package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/MagicHoovy/Steve/changes"
	"github.com/MagicHoovy/Steve/internal"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TgBot implements EventHandler, forwarding detected changes to subscribed chats
type TgBot struct {
	api         sender
	updates     func() (tgbotapi.UpdatesChannel, error)
	log         internal.LogHandler
	mutex       sync.Mutex
	subscribers map[int64]bool
	lastStatus  map[string]string
	event       chan MessageContent
	send        chan MessageContent
}

type MessageContent struct {
	ChatID int64
	Text   string
}

func NewBot(apiKey string, chatIDs []int64, log internal.LogHandler) (*TgBot, error) {
	api, err := tgbotapi.NewBotAPI(apiKey)
	if err != nil {
		return nil, err
	}
	tgBot := newBot(api, chatIDs, log)
	tgBot.updates = func() (tgbotapi.UpdatesChannel, error) {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		return api.GetUpdatesChan(u)
	}
	return tgBot, nil
}

func newBot(api sender, chatIDs []int64, log internal.LogHandler) *TgBot {
	tgBot := &TgBot{
		api:         api,
		log:         log,
		subscribers: make(map[int64]bool),
		lastStatus:  make(map[string]string),
		event:       make(chan MessageContent, 100),
		send:        make(chan MessageContent, 100),
	}
	for _, id := range chatIDs {
		tgBot.subscribers[id] = true
	}
	return tgBot
}

func (b *TgBot) Start(ctx context.Context) {
	go b.sendPump(ctx)
	go b.eventPump(ctx)
	if b.updates != nil {
		go b.updatesPump(ctx)
	}
}

// updatesPump answers chat commands
func (b *TgBot) updatesPump(ctx context.Context) {
	updates, err := b.updates()
	if err != nil {
		b.log.Error("bot: getting updates", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handleCommand(update.Message.Chat.ID, update.Message.Command())
		}
	}
}

func (b *TgBot) handleCommand(chatID int64, command string) {
	var text string
	switch command {
	case "start":
		b.mutex.Lock()
		b.subscribers[chatID] = true
		b.mutex.Unlock()
		text = "You are now subscribed to charger updates"
	case "stop":
		b.mutex.Lock()
		delete(b.subscribers, chatID)
		b.mutex.Unlock()
		text = "Your subscription has been removed"
	case "status":
		text = b.composeStatusMessage()
	default:
		return
	}
	b.send <- MessageContent{ChatID: chatID, Text: text}
}

// eventPump sending events to all subscribers
func (b *TgBot) eventPump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-b.event:
			for _, id := range b.subscriberIDs() {
				b.sendMessage(id, event.Text)
			}
		}
	}
}

// sendPump sending messages to users
func (b *TgBot) sendPump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-b.send:
			b.sendMessage(message.ChatID, message.Text)
		}
	}
}

func (b *TgBot) subscriberIDs() []int64 {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	ids := make([]int64, 0, len(b.subscribers))
	for id := range b.subscribers {
		ids = append(ids, id)
	}
	return ids
}

// sendMessage common routine to send a message via bot API
func (b *TgBot) sendMessage(id int64, text string) {
	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = "MarkdownV2"
	_, err := b.api.Send(msg)
	if err != nil {
		// the markup may be rejected, retry as plain text
		msg = tgbotapi.NewMessage(id, text)
		_, err = b.api.Send(msg)
		if err != nil {
			b.log.Error(fmt.Sprintf("bot: sending message to %d", id), err)
		}
	}
}

// enqueue never blocks the poller
func (b *TgBot) enqueue(text string) {
	select {
	case b.event <- MessageContent{Text: text}:
	default:
		b.log.Warn("bot: event queue is full, message dropped")
	}
}

func (b *TgBot) OnStatusChanged(event *internal.EventMessage) {
	observation := event.Payload
	b.mutex.Lock()
	b.lastStatus[statusKey(observation)] = observation.To
	b.mutex.Unlock()
	b.enqueue(composeStatusChanged(observation))
}

func (b *TgBot) OnEnergyIncreased(event *internal.EventMessage) {
	b.enqueue(composeEnergyIncreased(event.Payload))
}

func composeStatusChanged(o changes.Observation) string {
	return fmt.Sprintf("*%v*: Connector %v: `%v` \\-\\> `%v`\n",
		sanitize(o.ChargeBoxId), o.ConnectorId, sanitize(o.From), sanitize(o.To))
}

func composeEnergyIncreased(o changes.Observation) string {
	return fmt.Sprintf("*%v*: Connector %v: \\+%v Wh\n",
		sanitize(o.ChargeBoxId), o.ConnectorId, sanitize(fmt.Sprintf("%.1f", o.Delta)))
}

func statusKey(o changes.Observation) string {
	return fmt.Sprintf("%s:%d", o.ChargeBoxId, o.ConnectorId)
}

// compose status message
func (b *TgBot) composeStatusMessage() string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	keys := make([]string, 0, len(b.lastStatus))
	for key := range b.lastStatus {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	msg := "Status info:\n\n"
	if len(keys) == 0 {
		msg += "no status changes seen yet\n"
	}
	for _, key := range keys {
		msg += fmt.Sprintf("*%v*: `%v`\n", sanitize(key), sanitize(b.lastStatus[key]))
	}
	msg += fmt.Sprintf("\nActive subscriptions: %v", len(b.subscribers))
	return msg
}

func sanitize(input string) string {
	reservedChars := "\\`*_{}[]()#+-.!|>=~"
	var sanitized strings.Builder
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sanitized.WriteRune('\\')
		}
		sanitized.WriteRune(char)
	}
	return sanitized.String()
}
