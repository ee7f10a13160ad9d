package wechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phrazzld/tryon-api/internal/config"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
	"golang.org/x/oauth2"
)

// DefaultQRImageBase renders a scene code ticket as an image.
const DefaultQRImageBase = "https://mp.weixin.qq.com/cgi-bin/showqrcode"

// maxSceneTTL is the longest lifetime the platform allows a temporary code.
const maxSceneTTL = 30 * 24 * time.Hour

// Client is a WeChat Official Account API client.
type Client struct {
	baseURL     string
	qrImageBase string
	http        *http.Client
	tokens      oauth2.TokenSource
	logger      *slog.Logger
}

// NewClient creates a client for cfg. ctx scopes token refresh requests and
// should live as long as the client.
func NewClient(ctx context.Context, cfg config.IdentityConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	src := &accessTokenSource{
		ctx:     ctx,
		baseURL: baseURL,
		appID:   cfg.AppID,
		secret:  cfg.AppSecret,
		client:  httpClient,
	}
	return &Client{
		baseURL:     baseURL,
		qrImageBase: DefaultQRImageBase,
		http:        httpClient,
		tokens:      oauth2.ReuseTokenSource(nil, src),
		logger:      logger.With("component", "wechat_client"),
	}
}

// SceneCode is a scannable code that carries a scene string.
type SceneCode struct {
	Ticket string
	// URL is the content encoded in the code.
	URL string
	// ImageURL renders the code as an image.
	ImageURL string
}

type sceneCodeRequest struct {
	ExpireSeconds int        `json:"expire_seconds"`
	ActionName    string     `json:"action_name"`
	ActionInfo    actionInfo `json:"action_info"`
}

type actionInfo struct {
	Scene struct {
		SceneStr string `json:"scene_str"`
	} `json:"scene"`
}

type sceneCodeResponse struct {
	apiStatus
	Ticket        string `json:"ticket"`
	ExpireSeconds int    `json:"expire_seconds"`
	URL           string `json:"url"`
}

// CreateSceneCode creates a temporary code that expires after ttl. Scanning
// it produces a subscribe or SCAN event carrying scene.
func (c *Client) CreateSceneCode(ctx context.Context, scene string, ttl time.Duration) (*SceneCode, error) {
	if ttl > maxSceneTTL {
		ttl = maxSceneTTL
	}
	body := sceneCodeRequest{
		ExpireSeconds: int(ttl.Seconds()),
		ActionName:    "QR_STR_SCENE",
	}
	body.ActionInfo.Scene.SceneStr = scene

	var resp sceneCodeResponse
	if err := c.post(ctx, "/cgi-bin/qrcode/create", body, &resp); err != nil {
		return nil, fmt.Errorf("failed to create scene code: %w", err)
	}
	if err := resp.err(); err != nil {
		return nil, fmt.Errorf("failed to create scene code: %w", err)
	}

	return &SceneCode{
		Ticket:   resp.Ticket,
		URL:      resp.URL,
		ImageURL: c.qrImageBase + "?ticket=" + url.QueryEscape(resp.Ticket),
	}, nil
}

// Article is one news message card.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PicURL      string `json:"picurl"`
}

type newsMessage struct {
	ToUser  string `json:"touser"`
	MsgType string `json:"msgtype"`
	News    struct {
		Articles []Article `json:"articles"`
	} `json:"news"`
}

// SendArticle pushes a news message to the subscriber openID.
func (c *Client) SendArticle(ctx context.Context, openID string, article Article) error {
	msg := newsMessage{ToUser: openID, MsgType: "news"}
	msg.News.Articles = []Article{article}

	var resp apiStatus
	if err := c.post(ctx, "/cgi-bin/message/custom/send", msg, &resp); err != nil {
		return fmt.Errorf("failed to send article: %w", err)
	}
	if err := resp.err(); err != nil {
		return fmt.Errorf("failed to send article: %w", err)
	}

	logger.FromContextOrDefault(ctx, c.logger).Debug("article sent", "open_id", openID)
	return nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	token, err := c.tokens.Token()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	endpoint := c.baseURL + path + "?access_token=" + url.QueryEscape(token.AccessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
