package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"webchat/features/chat"
	"webchat/internal/apperr"
)

func TestService_Chat_ReusesNormalizedSession(t *testing.T) {
	r := new(MockRetriever)
	r.On("Retrieve", mock.Anything, "https://example.com", mock.Anything, 0).Return(nil, nil)
	r.On("Indexed", mock.Anything, "https://example.com").Return(true, nil)

	sessions := chat.NewSessions(8, time.Minute, r)
	svc := chat.NewService(sessions, chat.NewAgent(&scriptedModel{fallback: textReply("no info")}, 4), r, time.Second)

	for _, url := range []string{"example.com", "https://example.com/", "  https://example.com  "} {
		answer, err := svc.Chat(context.Background(), url, "hello")
		require.NoError(t, err)
		assert.Equal(t, "no info", answer)
	}

	assert.Equal(t, 1, svc.ActiveSessions())
	sess, created := sessions.GetOrCreate("https://example.com")
	assert.False(t, created)
	assert.Equal(t, 3, sess.Turns())
}

func TestService_Chat_Validation(t *testing.T) {
	svc := chat.NewService(chat.NewSessions(8, time.Minute, new(MockRetriever)), chat.NewAgent(&scriptedModel{}, 4), new(MockRetriever), 0)

	_, err := svc.Chat(context.Background(), "", "hello")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.Chat(context.Background(), "https://example.com", "   ")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.Retrieve(context.Background(), "https://example.com", "", 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Equal(t, 0, svc.ActiveSessions())
}

func TestService_Chat_Timeout(t *testing.T) {
	m := &blockingModel{}
	svc := chat.NewService(chat.NewSessions(8, time.Minute, new(MockRetriever)), chat.NewAgent(m, 4), new(MockRetriever), 20*time.Millisecond)

	_, err := svc.Chat(context.Background(), "https://example.com", "hello")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
