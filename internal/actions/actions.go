// Package actions registers the concrete capability set: text and
// quick-reply messages, venue search, the hand-off to individual hearing,
// and the final decision.
package actions

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"enkai/internal/capability"
	"enkai/internal/places"
	"enkai/internal/renderer"
	"enkai/internal/router"
	"enkai/internal/session"
)

const (
	noResultsText  = "すみません、条件に合うお店が見つかりませんでした。"
	handOffNotice  = "共通の希望を承りました！\nこれから各メンバーに、個別の希望（予算など）を1対1でお伺いしますね。\n全員のヒアリングが進んだら、グループで「お店を決める！」と送ってください。"
	handOffInvite  = "幹事さんからのお知らせです！\nお店探しの個別の希望（予算・苦手なものなど）をこのトークで教えてくださいね！"
	decisionFailed = "お店を決めきれませんでした。もう少し希望を聞かせてから、もう一度お試しください。"
)

// Deps carries the collaborators the handlers close over.
type Deps struct {
	Store    *session.Store
	Bindings *router.Bindings
	Renderer renderer.Renderer
	Places   places.Provider
	Logger   *zap.Logger
}

// Register declares every capability on the registry. Called once at
// startup, before the backend advertises the declarations.
func Register(reg *capability.Registry, deps Deps) error {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	decls := []*capability.Declaration{
		{
			Name:        "reply_with_text",
			Description: "ユーザーへ通常のテキストメッセージを返信します。",
			Params: map[string]capability.Param{
				"text": {Kind: capability.KindString, Required: true, NonEmpty: true, Description: "返信する本文"},
			},
			Handler: deps.replyWithText,
		},
		{
			Name:        "reply_with_quick_reply",
			Description: "希望が曖昧な場合に、質問と選択肢を提示して回答を促します。",
			Params: map[string]capability.Param{
				"question": {Kind: capability.KindString, Required: true, NonEmpty: true, Description: "ユーザーに投げかける質問文"},
				"choices":  {Kind: capability.KindStringList, Required: true, NonEmpty: true, Description: "提示する選択肢のリスト"},
			},
			Handler: deps.replyWithQuickReply,
		},
		{
			Name:        "search_restaurants",
			Description: "レストランや飲食店を探してほしいと依頼された時に、お店を検索して候補を提示します。",
			Params: map[string]capability.Param{
				"query":     {Kind: capability.KindString, Required: true, NonEmpty: true, Description: "地名・ジャンル・特徴を含む検索キーワード。例: '新宿 和食 個室'"},
				"min_price": {Kind: capability.KindNumber, Description: "一人あたり予算の下限（円）"},
				"max_price": {Kind: capability.KindNumber, Description: "一人あたり予算の上限（円）"},
			},
			Handler: deps.searchRestaurants,
		},
		{
			Name:        "start_individual_hearing",
			Description: "グループ共通の希望が出そろったら、メンバーごとの個別ヒアリングへ移行します。",
			Handler:     deps.startIndividualHearing,
		},
		{
			Name:        "make_final_decision",
			Description: "集まった希望をもとに、最終的なお店を一軒決定して発表します。",
			Params: map[string]capability.Param{
				"query": {Kind: capability.KindString, Description: "決定に使う検索キーワード。省略時は記録済みの希望から組み立てます"},
			},
			Handler: deps.makeFinalDecision,
		},
	}

	for _, d := range decls {
		if err := reg.Register(d); err != nil {
			return fmt.Errorf("register %s: %w", d.Name, err)
		}
	}
	return nil
}

func (d Deps) replyWithText(ctx context.Context, args map[string]any) (string, error) {
	text, _ := args["text"].(string)
	if err := d.Renderer.ReplyText(ctx, replyHandle(args), text); err != nil {
		return "", err
	}
	return "replied", nil
}

func (d Deps) replyWithQuickReply(ctx context.Context, args map[string]any) (string, error) {
	question, _ := args["question"].(string)
	choices, err := capability.StringList(args["choices"])
	if err != nil {
		return "", err
	}
	if err := d.Renderer.ReplyQuickReply(ctx, replyHandle(args), question, choices); err != nil {
		return "", err
	}
	return fmt.Sprintf("asked with %d choices", len(choices)), nil
}

func (d Deps) searchRestaurants(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	opts := places.SearchOptions{
		MinPrice: number(args["min_price"]),
		MaxPrice: number(args["max_price"]),
	}

	venues, err := d.Places.Search(ctx, query, opts)
	if err != nil {
		return "", fmt.Errorf("venue search: %w", err)
	}
	if len(venues) == 0 {
		if err := d.Renderer.ReplyText(ctx, replyHandle(args), noResultsText); err != nil {
			return "", err
		}
		return "no results", nil
	}
	if err := d.Renderer.ReplyVenues(ctx, replyHandle(args), venues); err != nil {
		return "", err
	}
	return fmt.Sprintf("proposed %d venues", len(venues)), nil
}

// startIndividualHearing is the hand-off action: transition the session,
// bind every known member, invite each one privately, and confirm in the
// group thread.
func (d Deps) startIndividualHearing(ctx context.Context, args map[string]any) (string, error) {
	scope := scopeID(args)
	if err := d.Store.Transition(scope, session.StatusHearingIndividual); err != nil {
		return "", err
	}

	members := d.Bindings.BindAll(scope)
	g, gctx := errgroup.WithContext(ctx)
	for _, member := range members {
		g.Go(func() error {
			return d.Renderer.PushText(gctx, member, handOffInvite)
		})
	}
	if err := g.Wait(); err != nil {
		// Some invitations may still have gone out; the hearing is
		// already open either way.
		d.Logger.Warn("individual hearing invitations incomplete",
			zap.String("scope", scope),
			zap.Error(err))
	}

	if err := d.Renderer.ReplyText(ctx, replyHandle(args), handOffNotice); err != nil {
		return "", err
	}
	return fmt.Sprintf("hearing opened for %d members", len(members)), nil
}

// makeFinalDecision searches with the accumulated wishes, announces one
// venue, and closes the session on delivery. If nothing is found the
// session stays in finalizing so the organizer can retry.
func (d Deps) makeFinalDecision(ctx context.Context, args map[string]any) (string, error) {
	scope := scopeID(args)
	query, _ := args["query"].(string)
	if query == "" {
		query = d.decisionQuery(scope)
	}

	venues, err := d.Places.Search(ctx, query, places.SearchOptions{MaxResults: 1})
	if err != nil {
		return "", fmt.Errorf("decision search: %w", err)
	}
	if len(venues) == 0 {
		if err := d.Renderer.ReplyText(ctx, replyHandle(args), decisionFailed); err != nil {
			return "", err
		}
		return "no venue found", nil
	}

	if err := d.Renderer.ReplyFinalVenue(ctx, replyHandle(args), venues[0]); err != nil {
		return "", err
	}
	if err := d.Store.Transition(scope, session.StatusClosed); err != nil {
		return "", err
	}
	return "decided: " + venues[0].Name, nil
}

// decisionQuery builds a search query from the recorded common wishes.
func (d Deps) decisionQuery(scope string) string {
	wishes, err := d.Store.CommonWishes(scope)
	if err != nil || len(wishes) == 0 {
		return "居酒屋"
	}
	return strings.Join(wishes, " ")
}

func replyHandle(args map[string]any) string {
	handle, _ := args[capability.ReplyHandleKey].(string)
	return handle
}

func scopeID(args map[string]any) string {
	scope, _ := args[capability.ScopeIDKey].(string)
	return scope
}

func number(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return 0
	}
}
