package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/line-agent-relay/internal/errors"
	"github.com/openclaw/line-agent-relay/internal/model"
)

type mockLine struct {
	mock.Mock
}

func (m *mockLine) ReplyText(ctx context.Context, replyToken, text string) error {
	return m.Called(ctx, replyToken, text).Error(0)
}

func (m *mockLine) PushText(ctx context.Context, userID, text string) error {
	return m.Called(ctx, userID, text).Error(0)
}

func (m *mockLine) GetMessageContent(ctx context.Context, messageID string) ([]byte, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type mockParser struct {
	mock.Mock
}

func (m *mockParser) Parse(ctx context.Context, image []byte) (*model.NameCard, error) {
	args := m.Called(ctx, image)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.NameCard), args.Error(1)
}

type mockInvoker struct {
	mock.Mock
}

func (m *mockInvoker) Invoke(ctx context.Context, query, userID string) string {
	return m.Called(ctx, query, userID).String(0)
}

type mockNameCardRepo struct {
	mock.Mock
}

func (m *mockNameCardRepo) FindByID(ctx context.Context, id string) (*model.StoredNameCard, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StoredNameCard), args.Error(1)
}

func (m *mockNameCardRepo) FindByOwnerID(ctx context.Context, ownerID string, limit, offset int) ([]model.StoredNameCard, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StoredNameCard), args.Error(1)
}

func (m *mockNameCardRepo) FindAll(ctx context.Context, limit, offset int) ([]model.StoredNameCard, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StoredNameCard), args.Error(1)
}

func (m *mockNameCardRepo) CountByOwnerID(ctx context.Context, ownerID string) (int, error) {
	args := m.Called(ctx, ownerID)
	return args.Int(0), args.Error(1)
}

func (m *mockNameCardRepo) CountAll(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockNameCardRepo) Create(ctx context.Context, params model.CreateNameCardParams) (*model.StoredNameCard, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StoredNameCard), args.Error(1)
}

var testImage = []byte{0xff, 0xd8, 0xff}

func TestNamecardService_Process(t *testing.T) {
	ctx := context.Background()
	card := &model.NameCard{Name: "Jane Doe", Company: "Acme"}

	t.Run("parses stores and asks the agent", func(t *testing.T) {
		line := new(mockLine)
		parser := new(mockParser)
		invoker := new(mockInvoker)
		repo := new(mockNameCardRepo)

		line.On("GetMessageContent", mock.Anything, "m-1").Return(testImage, nil)
		parser.On("Parse", mock.Anything, testImage).Return(card, nil)
		repo.On("Create", mock.Anything, model.CreateNameCardParams{OwnerID: "U1", MessageID: "m-1", Card: *card}).
			Return(&model.StoredNameCard{ID: "nc-1"}, nil)
		invoker.On("Invoke", mock.Anything, mock.MatchedBy(func(q string) bool {
			return strings.Contains(q, `"name":"Jane Doe"`) && strings.Contains(q, "for user U1")
		}), "U1").Return("Saved Jane Doe!")

		reply, ok := NewNamecardService(line, parser, invoker, repo).Process(ctx, "U1", "m-1")

		assert.True(t, ok)
		assert.Equal(t, "Saved Jane Doe!", reply)
		line.AssertNotCalled(t, "PushText", mock.Anything, mock.Anything, mock.Anything)
		repo.AssertExpectations(t)
		invoker.AssertExpectations(t)
	})

	t.Run("storage failure does not stop the flow", func(t *testing.T) {
		line := new(mockLine)
		parser := new(mockParser)
		invoker := new(mockInvoker)
		repo := new(mockNameCardRepo)

		line.On("GetMessageContent", mock.Anything, "m-1").Return(testImage, nil)
		parser.On("Parse", mock.Anything, testImage).Return(card, nil)
		repo.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))
		invoker.On("Invoke", mock.Anything, mock.Anything, "U1").Return("ok")

		reply, ok := NewNamecardService(line, parser, invoker, repo).Process(ctx, "U1", "m-1")
		assert.True(t, ok)
		assert.Equal(t, "ok", reply)
	})

	t.Run("nil repository skips storage", func(t *testing.T) {
		line := new(mockLine)
		parser := new(mockParser)
		invoker := new(mockInvoker)

		line.On("GetMessageContent", mock.Anything, "m-1").Return(testImage, nil)
		parser.On("Parse", mock.Anything, testImage).Return(card, nil)
		invoker.On("Invoke", mock.Anything, mock.Anything, "U1").Return("ok")

		_, ok := NewNamecardService(line, parser, invoker, nil).Process(ctx, "U1", "m-1")
		assert.True(t, ok)
	})

	t.Run("retrieval failure pushes an apology", func(t *testing.T) {
		line := new(mockLine)
		parser := new(mockParser)
		invoker := new(mockInvoker)

		line.On("GetMessageContent", mock.Anything, "m-1").Return(nil, errors.New("404"))
		line.On("PushText", mock.Anything, "U1", "Sorry, I couldn't retrieve the image you sent. Please try again.").Return(nil)

		_, ok := NewNamecardService(line, parser, invoker, nil).Process(ctx, "U1", "m-1")

		assert.False(t, ok)
		line.AssertExpectations(t)
		parser.AssertNotCalled(t, "Parse", mock.Anything, mock.Anything)
		invoker.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("parse failure pushes truncated details", func(t *testing.T) {
		line := new(mockLine)
		parser := new(mockParser)
		invoker := new(mockInvoker)

		long := strings.Repeat("x", 150)
		line.On("GetMessageContent", mock.Anything, "m-1").Return(testImage, nil)
		parser.On("Parse", mock.Anything, testImage).Return(nil, apperrors.ParseFailed(long))
		line.On("PushText", mock.Anything, "U1",
			"Sorry, I couldn't understand the content of the namecard image. Details: "+strings.Repeat("x", 100)).Return(nil)

		_, ok := NewNamecardService(line, parser, invoker, nil).Process(ctx, "U1", "m-1")

		assert.False(t, ok)
		line.AssertExpectations(t)
		invoker.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing parser is a parse failure", func(t *testing.T) {
		line := new(mockLine)
		invoker := new(mockInvoker)

		line.On("GetMessageContent", mock.Anything, "m-1").Return(testImage, nil)
		line.On("PushText", mock.Anything, "U1", mock.MatchedBy(func(text string) bool {
			return strings.HasPrefix(text, "Sorry, I couldn't understand the content of the namecard image. Details: ")
		})).Return(nil)

		_, ok := NewNamecardService(line, nil, invoker, nil).Process(ctx, "U1", "m-1")
		assert.False(t, ok)
		line.AssertExpectations(t)
	})

	t.Run("push failure is only logged", func(t *testing.T) {
		line := new(mockLine)
		line.On("GetMessageContent", mock.Anything, "m-1").Return(nil, errors.New("404"))
		line.On("PushText", mock.Anything, "U1", mock.Anything).Return(errors.New("push failed"))

		_, ok := NewNamecardService(line, nil, new(mockInvoker), nil).Process(ctx, "U1", "m-1")
		assert.False(t, ok)
	})
}

func TestNamecardService_List(t *testing.T) {
	ctx := context.Background()

	t.Run("unavailable without storage", func(t *testing.T) {
		_, _, err := NewNamecardService(nil, nil, nil, nil).List(ctx, "", 10, 0)
		assert.Equal(t, apperrors.ErrCodeUnavailable, apperrors.GetCode(err))
	})

	t.Run("filters by owner", func(t *testing.T) {
		repo := new(mockNameCardRepo)
		repo.On("FindByOwnerID", mock.Anything, "U1", 10, 0).Return([]model.StoredNameCard{{ID: "nc-1"}}, nil)
		repo.On("CountByOwnerID", mock.Anything, "U1").Return(1, nil)

		cards, total, err := NewNamecardService(nil, nil, nil, repo).List(ctx, "U1", 10, 0)
		require.NoError(t, err)
		assert.Len(t, cards, 1)
		assert.Equal(t, 1, total)
	})

	t.Run("lists all and never returns nil", func(t *testing.T) {
		repo := new(mockNameCardRepo)
		repo.On("FindAll", mock.Anything, 10, 20).Return(nil, nil)
		repo.On("CountAll", mock.Anything).Return(0, nil)

		cards, total, err := NewNamecardService(nil, nil, nil, repo).List(ctx, "", 10, 20)
		require.NoError(t, err)
		assert.NotNil(t, cards)
		assert.Zero(t, total)
	})

	t.Run("repository failure is a database error", func(t *testing.T) {
		repo := new(mockNameCardRepo)
		repo.On("FindAll", mock.Anything, 10, 0).Return(nil, errors.New("conn refused"))

		_, _, err := NewNamecardService(nil, nil, nil, repo).List(ctx, "", 10, 0)
		assert.Equal(t, apperrors.ErrCodeDatabase, apperrors.GetCode(err))
	})
}

func TestNamecardService_Get(t *testing.T) {
	ctx := context.Background()

	repo := new(mockNameCardRepo)
	repo.On("FindByID", mock.Anything, "nc-1").Return(&model.StoredNameCard{ID: "nc-1"}, nil)
	repo.On("FindByID", mock.Anything, "missing").Return(nil, nil)
	svc := NewNamecardService(nil, nil, nil, repo)

	card, err := svc.Get(ctx, "nc-1")
	require.NoError(t, err)
	assert.Equal(t, "nc-1", card.ID)

	_, err = svc.Get(ctx, "missing")
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
}

func TestBuildNamecardQuery(t *testing.T) {
	query, err := BuildNamecardQuery(&model.NameCard{Name: "Jane", LineID: "jane01"}, "U1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query, "A namecard image was processed. Here is the extracted data: {"))
	assert.Contains(t, query, `"line_id":"jane01"`)
	assert.True(t, strings.HasSuffix(query, ". Please add this namecard information for user U1 and confirm with the user."))
}
