package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MagicHoovy/Steve/changes"
	"github.com/MagicHoovy/Steve/internal"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mutex     sync.Mutex
	sent      []sentMessage
	failFirst bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable")
	}
	if f.failFirst && msg.ParseMode != "" {
		return tgbotapi.Message{}, errors.New("can't parse entities")
	}
	f.sent = append(f.sent, sentMessage{chatID: msg.ChatID, text: msg.Text})
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type nopLog struct{}

func (nopLog) FeatureEvent(string, string, string) {}
func (nopLog) Debug(string)                        {}
func (nopLog) Warn(string)                         {}
func (nopLog) Error(string, error)                 {}

func waitFor(t *testing.T, f *fakeSender, n int) []sentMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := f.messages(); len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages, got %d", n, len(f.messages()))
	return nil
}

func TestStatusChangeIsBroadcast(t *testing.T) {
	sender := &fakeSender{}
	bot := newBot(sender, []int64{100, 200}, nopLog{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bot.Start(ctx)

	observation := changes.Observation{Type: changes.StatusChanged, ChargeBoxId: "CDJ-940009", ConnectorId: 1, From: "Available", To: "Charging"}
	internal.DispatchEvent(bot, internal.NewEventMessage("ChargerSnapshot", observation))

	got := waitFor(t, sender, 2)
	chats := map[int64]bool{}
	for _, m := range got {
		chats[m.chatID] = true
		if !strings.Contains(m.text, `*CDJ\-940009*`) || !strings.Contains(m.text, "`Available` \\-\\> `Charging`") {
			t.Errorf("unexpected text: %q", m.text)
		}
	}
	if !chats[100] || !chats[200] {
		t.Errorf("not every subscriber got the message: %v", got)
	}
}

func TestPlainTextFallback(t *testing.T) {
	sender := &fakeSender{failFirst: true}
	bot := newBot(sender, []int64{1}, nopLog{})
	bot.sendMessage(1, "hello")
	got := sender.messages()
	if len(got) != 1 || got[0].text != "hello" {
		t.Fatalf("want plain text retry, got %v", got)
	}
}

func TestStatusCommand(t *testing.T) {
	sender := &fakeSender{}
	bot := newBot(sender, nil, nopLog{})
	bot.OnStatusChanged(internal.NewEventMessage("ChargerSnapshot",
		changes.Observation{Type: changes.StatusChanged, ChargeBoxId: "A", ConnectorId: 2, From: "Available", To: "Faulted"}))

	bot.handleCommand(7, "start")
	if ids := bot.subscriberIDs(); len(ids) != 1 || ids[0] != 7 {
		t.Fatalf("subscription not registered: %v", ids)
	}
	text := bot.composeStatusMessage()
	if !strings.Contains(text, "*A:2*: `Faulted`") {
		t.Errorf("unexpected status message: %q", text)
	}
	bot.handleCommand(7, "stop")
	if ids := bot.subscriberIDs(); len(ids) != 0 {
		t.Fatalf("subscription not removed: %v", ids)
	}
}

func TestSanitize(t *testing.T) {
	if got := sanitize("1.5-a_b"); got != `1\.5\-a\_b` {
		t.Errorf("unexpected: %s", got)
	}
}
