package toolkit

import (
	"context"
	"encoding/json"
	"errors"

	"BlockPay/internal/knowledge"
)

// TrustGraph 是信任评分的查询接口，*knowledge.Client 满足该接口。
type TrustGraph interface {
	GetTrustScore(ctx context.Context, atomID string) (*knowledge.TrustScore, error)
	GetTopCreators(ctx context.Context, limit int) ([]knowledge.TrustScore, error)
}

// IntuitionProvider 让智能体查询知识图谱中的信任评分。
type IntuitionProvider struct {
	graph TrustGraph
}

// NewIntuitionProvider 创建知识图谱动作提供者。
func NewIntuitionProvider(graph TrustGraph) *IntuitionProvider {
	return &IntuitionProvider{graph: graph}
}

// Name 实现 ActionProvider。
func (p *IntuitionProvider) Name() string { return "intuition" }

// Actions 实现 ActionProvider。
func (p *IntuitionProvider) Actions(Env) []Action {
	return []Action{
		{
			Name:        "intuition_get_trust_score",
			Description: "Get the trust score of a creator or user atom in the Intuition knowledge graph.",
			Parameters: objectSchema([]string{"atomId"}, map[string]any{
				"atomId": stringProp("Atom id of the creator or user"),
			}),
			Invoke: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var args struct {
					AtomID string `json:"atomId"`
				}
				if err := decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				if args.AtomID == "" {
					return nil, errors.New("atomId 不能为空")
				}
				return p.graph.GetTrustScore(ctx, args.AtomID)
			},
		},
		{
			Name:        "intuition_top_creators",
			Description: "List creators ranked by trust score.",
			Parameters: objectSchema(nil, map[string]any{
				"limit": map[string]any{"type": "integer", "description": "Maximum number of creators, default 10"},
			}),
			Invoke: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var args struct {
					Limit int `json:"limit"`
				}
				if err := decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				return p.graph.GetTopCreators(ctx, args.Limit)
			},
		},
	}
}
