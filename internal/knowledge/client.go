// Package knowledge is a thin client of the Intuition knowledge graph: atoms,
// triples and trust scores.
package knowledge

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	xerrors "BlockPay/internal/errors"
)

// CodeGraphUnavailable 表示知识图谱服务无法访问或拒绝了写入。
const CodeGraphUnavailable xerrors.Code = "GRAPH_UNAVAILABLE"

func init() {
	xerrors.Register(CodeGraphUnavailable, xerrors.Attributes{
		Message:    "knowledge graph unavailable",
		Severity:   xerrors.SeverityWarning,
		HTTPStatus: http.StatusBadGateway,
	})
}

// 默认的服务地址。
const (
	DefaultAPIURL   = "https://api.intuition.so"
	DefaultGraphURL = "https://graph.intuition.so"
)

// Atom 是知识图谱中的实体。
type Atom struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Triple 是 subject-predicate-object 关系。
type Triple struct {
	ID        string `json:"id"`
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// TrustScore 是某个 atom 的信任评分。
type TrustScore struct {
	AtomID string  `json:"atomId"`
	Score  float64 `json:"score"`
	Shares float64 `json:"shares"`
	Votes  int64   `json:"votes"`
}

// Artwork 描述一件上架作品，价格以 TRUST 计。
type Artwork struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PreviewURL  string `json:"previewUrl"`
	HighResURL  string `json:"highResUrl"`
	Price       string `json:"price"`
}

// JobCompletion 描述一次完成的委托。
type JobCompletion struct {
	CreatorAtomID string `json:"creatorAtomId"`
	ClientAtomID  string `json:"clientAtomId"`
	JobAtomID     string `json:"jobAtomId"`
	ArtworkAtomID string `json:"artworkAtomId"`
}

// Config 描述客户端参数。
type Config struct {
	APIURL   string
	GraphURL string
	Timeout  time.Duration
}

// Client 通过 REST 接口访问知识图谱。
type Client struct {
	http     *resty.Client
	apiURL   string
	graphURL string
}

// NewClient 创建知识图谱客户端。
func NewClient(cfg Config) *Client {
	apiURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	graphURL := strings.TrimRight(strings.TrimSpace(cfg.GraphURL), "/")
	if graphURL == "" {
		graphURL = DefaultGraphURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{http: httpClient, apiURL: apiURL, graphURL: graphURL}
}

// GetAtom 查询单个 atom，服务返回非 2xx 时视为不存在。
func (c *Client) GetAtom(ctx context.Context, atomID string) (*Atom, error) {
	var atom Atom
	resp, err := c.request(ctx, &atom).
		SetPathParam("id", atomID).
		Get(c.graphURL + "/atoms/{id}")
	if err := lookupError(resp, err, "atom "+atomID); err != nil {
		return nil, err
	}
	return &atom, nil
}

// CreateAtom 创建 atom。
func (c *Client) CreateAtom(ctx context.Context, atomType string, data map[string]any) (*Atom, error) {
	if strings.TrimSpace(atomType) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "atom 类型不能为空")
	}
	var atom Atom
	resp, err := c.request(ctx, &atom).
		SetBody(map[string]any{"type": atomType, "data": data}).
		Post(c.graphURL + "/atoms")
	if err := writeError(resp, err, "创建 atom"); err != nil {
		return nil, err
	}
	return &atom, nil
}

// GetTriples 查询 subject 的关系，predicate 可选。
func (c *Client) GetTriples(ctx context.Context, subject, predicate string) ([]Triple, error) {
	var triples []Triple
	req := c.request(ctx, &triples).SetQueryParam("subject", subject)
	if predicate != "" {
		req.SetQueryParam("predicate", predicate)
	}
	resp, err := req.Get(c.graphURL + "/triples")
	if err := lookupError(resp, err, "triples of "+subject); err != nil {
		return nil, err
	}
	if triples == nil {
		triples = []Triple{}
	}
	return triples, nil
}

// CreateTriple 创建关系。
func (c *Client) CreateTriple(ctx context.Context, subject, predicate, object string) (*Triple, error) {
	if subject == "" || predicate == "" || object == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "subject、predicate 与 object 均不能为空")
	}
	var triple Triple
	resp, err := c.request(ctx, &triple).
		SetBody(map[string]string{"subject": subject, "predicate": predicate, "object": object}).
		Post(c.graphURL + "/triples")
	if err := writeError(resp, err, "创建 triple"); err != nil {
		return nil, err
	}
	return &triple, nil
}

// GetTrustScore 查询 atom 的信任评分。
func (c *Client) GetTrustScore(ctx context.Context, atomID string) (*TrustScore, error) {
	var score TrustScore
	resp, err := c.request(ctx, &score).
		SetPathParam("id", atomID).
		Get(c.apiURL + "/trust/{id}")
	if err := lookupError(resp, err, "trust score of "+atomID); err != nil {
		return nil, err
	}
	return &score, nil
}

// GetTopCreators 返回按信任评分排序的创作者，limit 非正时取 10。
func (c *Client) GetTopCreators(ctx context.Context, limit int) ([]TrustScore, error) {
	if limit <= 0 {
		limit = 10
	}
	var scores []TrustScore
	resp, err := c.request(ctx, &scores).
		SetQueryParam("limit", strconv.Itoa(limit)).
		Get(c.apiURL + "/trust/ranked")
	if err := lookupError(resp, err, "ranked creators"); err != nil {
		return nil, err
	}
	if scores == nil {
		scores = []TrustScore{}
	}
	return scores, nil
}

// CreateArtworkAtom 创建作品 atom 并记录 creator -created-> artwork 关系。
func (c *Client) CreateArtworkAtom(ctx context.Context, creatorAtomID string, artwork Artwork) (*Atom, error) {
	if strings.TrimSpace(creatorAtomID) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "creatorAtomId 不能为空")
	}
	atom, err := c.CreateAtom(ctx, "Artwork", map[string]any{
		"title":       artwork.Title,
		"description": artwork.Description,
		"previewUrl":  artwork.PreviewURL,
		"highResUrl":  artwork.HighResURL,
		"price":       artwork.Price,
	})
	if err != nil {
		return nil, err
	}
	if _, err := c.CreateTriple(ctx, creatorAtomID, "created", atom.ID); err != nil {
		return nil, err
	}
	return atom, nil
}

// RecordJobCompletion 写入委托完成的三条关系，遇到第一个错误即返回。
func (c *Client) RecordJobCompletion(ctx context.Context, job JobCompletion) error {
	relations := [][3]string{
		{job.CreatorAtomID, "completed_job_for", job.ClientAtomID},
		{job.JobAtomID, "completed_by", job.CreatorAtomID},
		{job.JobAtomID, "resulted_in", job.ArtworkAtomID},
	}
	for _, rel := range relations {
		if _, err := c.CreateTriple(ctx, rel[0], rel[1], rel[2]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) request(ctx context.Context, result any) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetResult(result)
}

func lookupError(resp *resty.Response, err error, what string) error {
	if err != nil {
		return xerrors.Wrap(CodeGraphUnavailable, err, "知识图谱请求失败")
	}
	if !resp.IsSuccess() {
		return xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("%s 不存在", what),
			xerrors.WithMetadata("status", strconv.Itoa(resp.StatusCode())))
	}
	return nil
}

func writeError(resp *resty.Response, err error, action string) error {
	if err != nil {
		return xerrors.Wrap(CodeGraphUnavailable, err, action+"失败")
	}
	if !resp.IsSuccess() {
		return xerrors.New(CodeGraphUnavailable, fmt.Sprintf("%s被拒绝: HTTP %d", action, resp.StatusCode()))
	}
	return nil
}
