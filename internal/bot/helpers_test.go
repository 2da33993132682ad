package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"github.com/example/quizbox/internal/chapters"
	"github.com/example/quizbox/internal/progress"
	"github.com/example/quizbox/internal/storage"
	"github.com/example/quizbox/pkg/models"
)

const ownerChat int64 = 4242

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
	stopped  bool
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) lastMessage(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	msg, ok := f.sent[len(f.sent)-1].(tgbotapi.MessageConfig)
	require.True(t, ok)
	return msg
}

func (f *fakeAPI) lastToast(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	cb, ok := f.requests[len(f.requests)-1].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	return cb.Text
}

type fakeMaterial struct {
	chapters map[string][]models.Question
}

func (f *fakeMaterial) Chapter(_ context.Context, chID string) ([]models.Question, error) {
	qs, ok := f.chapters[chID]
	if !ok {
		return nil, errors.New("not found")
	}
	return qs, nil
}

func (f *fakeMaterial) Chapters(context.Context) ([]models.Chapter, error) {
	return []models.Chapter{{ID: "ch1", Title: "Arithmetic & <Geography>"}, {ID: "broken", Title: "Broken"}}, nil
}

func testQuestions() []models.Question {
	return []models.Question{
		{ID: "q1", Type: models.MultipleChoice, Question: "2+2?", Options: []string{"3", "4"}, Answer: models.IndexAnswer(1), Page: 3},
		{ID: "q2", Type: models.ShortAnswer, Question: "Capital of France?", Answer: models.TextAnswer("Paris|paris france"), Hint: "City of light"},
	}
}

type testBot struct {
	*Bot
	api   *fakeAPI
	store *progress.Store
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	now := t0
	store, err := progress.New(context.Background(), storage.NewMemory(),
		progress.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	mat := &fakeMaterial{chapters: map[string][]models.Question{"ch1": testQuestions()}}
	svc := chapters.NewService(mat, store, nil)

	api := &fakeAPI{updates: make(chan tgbotapi.Update)}
	cfg := DefaultConfig()
	cfg.OwnerChatID = ownerChat

	b, err := New(api, store, svc, mat, cfg, nil)
	require.NoError(t, err)
	b.now = func() time.Time { return now }
	return &testBot{Bot: b, api: api, store: store}
}

func command(chatID int64, text string) tgbotapi.Update {
	name := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func textMessage(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Text: text, Chat: &tgbotapi.Chat{ID: chatID}}}
}

func press(chatID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
	}}
}

func buttonData(t *testing.T, msg tgbotapi.MessageConfig) [][]string {
	t.Helper()
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	var out [][]string
	for _, row := range kb.InlineKeyboard {
		var r []string
		for _, btn := range row {
			require.NotNil(t, btn.CallbackData)
			r = append(r, *btn.CallbackData)
		}
		out = append(out, r)
	}
	return out
}
