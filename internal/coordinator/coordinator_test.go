package coordinator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enkai/internal/backend"
	"enkai/internal/capability"
	"enkai/internal/session"
)

// fakeConversation is a scripted backend conversation.
type fakeConversation struct {
	prompts []string
	replies []*backend.Reply
	err     error
	block   bool // block until the context deadline fires
}

func (f *fakeConversation) Send(ctx context.Context, prompt string) (*backend.Reply, error) {
	f.prompts = append(f.prompts, prompt)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	if len(f.replies) == 0 {
		return &backend.Reply{Text: "了解です"}, nil
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

type fakeBackend struct {
	conv         *fakeConversation
	instructions []string
}

func (f *fakeBackend) NewConversation(ctx context.Context, instructions string) (backend.Conversation, error) {
	f.instructions = append(f.instructions, instructions)
	return f.conv, nil
}

func (f *fakeBackend) Complete(ctx context.Context, prompt string) (string, error) {
	return "", nil
}

// spyHandler records dispatched arguments per capability.
type spyHandler struct {
	calls []map[string]any
}

func (s *spyHandler) handle(ctx context.Context, args map[string]any) (string, error) {
	s.calls = append(s.calls, args)
	return "", nil
}

type fixture struct {
	store  *session.Store
	coord  *Coordinator
	be     *fakeBackend
	reply  *spyHandler
	search *spyHandler
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	reg := capability.NewRegistry(nil)
	reply := &spyHandler{}
	search := &spyHandler{}
	reg.MustRegister(&capability.Declaration{
		Name:    capability.FallbackReplyName,
		Params:  map[string]capability.Param{"text": {Kind: capability.KindString, Required: true}},
		Handler: reply.handle,
	})
	reg.MustRegister(&capability.Declaration{
		Name:    "search_restaurants",
		Params:  map[string]capability.Param{"query": {Kind: capability.KindString, Required: true}},
		Handler: search.handle,
	})

	store := session.NewStore(nil)
	be := &fakeBackend{conv: &fakeConversation{}}
	if cfg.GroupInstructions == "" {
		cfg.GroupInstructions = "group instructions v1"
	}
	if cfg.IndividualInstructions == "" {
		cfg.IndividualInstructions = "individual instructions v1"
	}
	coord := New(store, capability.NewDispatcher(reg, nil), be, cfg, nil)
	return &fixture{store: store, coord: coord, be: be, reply: reply, search: search}
}

func TestProcessMessageRecordsAndPrompts(t *testing.T) {
	f := newFixture(t, Config{})
	f.store.GetOrCreate("G1")
	require.NoError(t, f.store.Record("G1", "", "Tokyo"))
	require.NoError(t, f.store.Record("G1", "", "dinner"))

	_, err := f.coord.ProcessMessage(context.Background(), Event{
		ScopeID:     "G1",
		Contributor: "U1",
		Individual:  true,
		Text:        "I want ramen",
		ReplyHandle: "token-1",
	})
	require.NoError(t, err)

	sess, err := f.store.Get("G1")
	require.NoError(t, err)
	require.Len(t, sess.Preferences.PerContributor["U1"], 1)
	assert.Equal(t, "I want ramen", sess.Preferences.PerContributor["U1"][0].Text)

	require.Len(t, f.be.conv.prompts, 1)
	prompt := f.be.conv.prompts[0]
	assert.Contains(t, prompt, "Tokyo")
	assert.Contains(t, prompt, "dinner")
	assert.Contains(t, prompt, "I want ramen")
}

func TestGroupMessageRecordsCommon(t *testing.T) {
	f := newFixture(t, Config{})
	f.store.GetOrCreate("G1")

	_, err := f.coord.ProcessMessage(context.Background(), Event{
		ScopeID:     "G1",
		Contributor: "U1",
		Text:        "イタリアンがいい",
		ReplyHandle: "token-2",
	})
	require.NoError(t, err)

	sess, _ := f.store.Get("G1")
	require.Len(t, sess.Preferences.Common, 1)
	assert.Empty(t, sess.Preferences.PerContributor, "group message must not land in a contributor bucket")
}

func TestFreeTextBecomesReply(t *testing.T) {
	f := newFixture(t, Config{})
	f.store.GetOrCreate("G1")
	f.be.conv.replies = []*backend.Reply{{Text: "何名くらいの予定ですか？"}}

	res, err := f.coord.ProcessMessage(context.Background(), Event{
		ScopeID: "G1", Contributor: "U1", Text: "start hearing", ReplyHandle: "token-3",
	})
	require.NoError(t, err)
	assert.True(t, res.OK())

	require.Len(t, f.reply.calls, 1)
	assert.Equal(t, "何名くらいの予定ですか？", f.reply.calls[0]["text"])
	assert.Equal(t, "token-3", f.reply.calls[0][capability.ReplyHandleKey])
}

func TestFirstProposalWins(t *testing.T) {
	f := newFixture(t, Config{})
	f.store.GetOrCreate("G1")
	f.be.conv.replies = []*backend.Reply{{
		Proposals: []backend.Proposal{
			{Name: "search_restaurants", Args: map[string]any{"query": "新宿 居酒屋"}},
			{Name: "make_final_decision", Args: map[string]any{}},
		},
	}}

	res, err := f.coord.ProcessMessage(context.Background(), Event{
		ScopeID: "G1", Contributor: "U1", Text: "探して", ReplyHandle: "token-4",
	})
	require.NoError(t, err)
	assert.True(t, res.OK())

	require.Len(t, f.search.calls, 1, "only the first proposal runs")
	assert.Equal(t, "新宿 居酒屋", f.search.calls[0]["query"])
	assert.Equal(t, "token-4", f.search.calls[0][capability.ReplyHandleKey])
}

func TestBackendErrorYieldsApology(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.store.GetOrCreate("G1")
	sess.Status = session.StatusHearingCommon
	f.be.conv.err = errors.New("backend down")

	res, err := f.coord.ProcessMessage(context.Background(), Event{
		ScopeID: "G1", Contributor: "U1", Text: "こんにちは", ReplyHandle: "token-5",
	})
	require.NoError(t, err, "backend failure must not surface as an error")
	assert.True(t, res.OK())

	require.Len(t, f.reply.calls, 1)
	assert.Equal(t, apologyText, f.reply.calls[0]["text"])
	assert.Equal(t, session.StatusHearingCommon, sess.Status, "status unchanged on backend failure")
	assert.Equal(t, 1, sess.Preferences.Len(), "failure path must not mutate preferences further")
}

func TestBackendTimeoutYieldsApology(t *testing.T) {
	f := newFixture(t, Config{TurnTimeout: 30 * time.Millisecond})
	f.store.GetOrCreate("G1")
	f.be.conv.block = true

	start := time.Now()
	res, err := f.coord.ProcessMessage(context.Background(), Event{
		ScopeID: "G1", Contributor: "U1", Text: "hello", ReplyHandle: "token-6",
	})
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Less(t, time.Since(start), 5*time.Second, "turn must end at the timeout, not hang")

	require.Len(t, f.reply.calls, 1)
	assert.Equal(t, apologyText, f.reply.calls[0]["text"])
}

func TestMissingSessionSurfaces(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.coord.ProcessMessage(context.Background(), Event{
		ScopeID: "missing", Contributor: "U1", Text: "hi", ReplyHandle: "token-7",
	})
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Empty(t, f.reply.calls, "routing defects are not papered over with replies")
}

func TestClosedSessionSurfaces(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.store.GetOrCreate("G1")
	sess.Status = session.StatusClosed

	_, err := f.coord.ProcessMessage(context.Background(), Event{
		ScopeID: "G1", Contributor: "U1", Text: "hi", ReplyHandle: "token-8",
	})
	assert.ErrorIs(t, err, session.ErrClosed)
}

func TestConversationPrimedOncePerThread(t *testing.T) {
	f := newFixture(t, Config{})
	f.store.GetOrCreate("G1")

	for i := 0; i < 3; i++ {
		_, err := f.coord.ProcessMessage(context.Background(), Event{
			ScopeID: "G1", Contributor: "U1", Text: "more", ReplyHandle: "t",
		})
		require.NoError(t, err)
	}
	_, err := f.coord.ProcessMessage(context.Background(), Event{
		ScopeID: "G1", Contributor: "U1", Individual: true, Text: "private", ReplyHandle: "t",
	})
	require.NoError(t, err)

	require.Len(t, f.be.instructions, 2, "one priming per thread")
	assert.Equal(t, "group instructions v1", f.be.instructions[0])
	assert.Equal(t, "individual instructions v1", f.be.instructions[1])
}

func TestPromptMentionsSpeaker(t *testing.T) {
	f := newFixture(t, Config{})
	f.store.GetOrCreate("G1")

	_, err := f.coord.ProcessMessage(context.Background(), Event{
		ScopeID: "G1", Contributor: "U9", Individual: true, Text: "餃子", ReplyHandle: "t",
	})
	require.NoError(t, err)
	require.Len(t, f.be.conv.prompts, 1)
	assert.True(t, strings.Contains(f.be.conv.prompts[0], "U9"))
}
