// Package pinning uploads NFT images and ERC-721 metadata documents to a
// Pinata-compatible IPFS pinning service.
package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cryptolocker/nftwallet/pkg/ratelimit"
)

var pinLog = logrus.WithField("component", "pinning")

const (
	DefaultAPIURL     = "https://api.pinata.cloud"
	DefaultGatewayURL = "https://gateway.pinata.cloud/ipfs/"

	pinFilePath = "/pinning/pinFileToIPFS"
	pinJSONPath = "/pinning/pinJSONToIPFS"
	authPath    = "/data/testAuthentication"

	// MaxFileSize 单个文件上限
	MaxFileSize = 25 << 20
)

// ErrMissingCredentials 未配置 API key/secret 或 JWT
var ErrMissingCredentials = errors.New("pinning: credentials are not configured")

// Credentials JWT 优先；否则使用 key + secret
type Credentials struct {
	APIKey    string
	SecretKey string
	JWT       string
}

func (c Credentials) valid() bool {
	if strings.TrimSpace(c.JWT) != "" {
		return true
	}
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.SecretKey) != ""
}

// Options 客户端选项，零值使用默认
type Options struct {
	APIURL     string
	GatewayURL string
	Timeout    time.Duration
	Limits     *ratelimit.RateLimitManager
}

// Attribute ERC-721 metadata 的 attributes 项
type Attribute struct {
	TraitType string      `json:"trait_type"`
	Value     interface{} `json:"value"`
}

// Metadata ERC-721 metadata 文档
type Metadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes,omitempty"`
}

// Validate 铸造前的最小校验
func (m Metadata) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("metadata name is required")
	}
	if strings.TrimSpace(m.Image) == "" {
		return errors.New("metadata image is required")
	}
	return nil
}

// PinResult 上传结果
type PinResult struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
	URI       string `json:"uri"`
}

// Client Pinata HTTP 客户端
type Client struct {
	client  *resty.Client
	gateway string
	limits  *ratelimit.RateLimitManager
}

// NewClient 凭据为空时返回 ErrMissingCredentials
func NewClient(creds Credentials, opts Options) (*Client, error) {
	if !creds.valid() {
		return nil, ErrMissingCredentials
	}
	apiURL := strings.TrimSuffix(firstNonEmpty(opts.APIURL, DefaultAPIURL), "/")
	gateway := firstNonEmpty(opts.GatewayURL, DefaultGatewayURL)
	if !strings.HasSuffix(gateway, "/") {
		gateway += "/"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil || resp == nil {
				return true
			}
			return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500
		}).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 429 时优先使用 Retry-After 头
			if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if d, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return d, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		})

	if creds.JWT != "" {
		client.SetAuthToken(strings.TrimSpace(creds.JWT))
	} else {
		client.SetHeader("pinata_api_key", strings.TrimSpace(creds.APIKey))
		client.SetHeader("pinata_secret_api_key", strings.TrimSpace(creds.SecretKey))
	}

	return &Client{client: client, gateway: gateway, limits: opts.Limits}, nil
}

// GatewayURI ipfs 哈希转网关 URL
func (c *Client) GatewayURI(hash string) string {
	return c.gateway + hash
}

func (c *Client) wait(ctx context.Context) error {
	if c.limits == nil {
		return nil
	}
	return c.limits.Wait(ctx, ratelimit.EndpointPinningUpload)
}

// TestAuthentication 校验凭据
func (c *Client) TestAuthentication(ctx context.Context) error {
	resp, err := c.client.R().SetContext(ctx).Get(authPath)
	if err := checkResponse(authPath, resp, err); err != nil {
		return err
	}
	return nil
}

// PinFile 上传文件（multipart/form-data，字段名 file）
func (c *Client) PinFile(ctx context.Context, name string, r io.Reader) (*PinResult, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}
	if len(data) == 0 {
		return nil, errors.New("file is empty")
	}
	if len(data) > MaxFileSize {
		return nil, errors.Errorf("file exceeds %d bytes", MaxFileSize)
	}
	if name == "" {
		name = "nft-image.png"
	}

	// body 预先编码成 []byte，重试时可以重复发送
	body, contentType, err := multipartBody(name, data)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	var out PinResult
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(body).
		SetResult(&out).
		Post(pinFilePath)
	if err := checkResponse(pinFilePath, resp, err); err != nil {
		return nil, err
	}
	return c.finish(&out, name)
}

// PinJSON 上传 JSON 文档
func (c *Client) PinJSON(ctx context.Context, name string, doc interface{}) (*PinResult, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	payload := map[string]interface{}{"pinataContent": doc}
	if name != "" {
		payload["pinataMetadata"] = map[string]string{"name": name}
	}

	var out PinResult
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		SetResult(&out).
		Post(pinJSONPath)
	if err := checkResponse(pinJSONPath, resp, err); err != nil {
		return nil, err
	}
	return c.finish(&out, name)
}

// PinNFT 先上传图片，再上传引用图片 URI 的 metadata，返回 metadata（tokenURI）结果
func (c *Client) PinNFT(ctx context.Context, imageName string, image io.Reader, meta Metadata) (tokenURI *PinResult, imageURI *PinResult, err error) {
	imageURI, err = c.PinFile(ctx, imageName, image)
	if err != nil {
		return nil, nil, errors.Wrap(err, "pin image")
	}
	meta.Image = imageURI.URI
	if err := meta.Validate(); err != nil {
		return nil, imageURI, err
	}
	tokenURI, err = c.PinJSON(ctx, meta.Name, meta)
	if err != nil {
		return nil, imageURI, errors.Wrap(err, "pin metadata")
	}
	return tokenURI, imageURI, nil
}

func (c *Client) finish(out *PinResult, name string) (*PinResult, error) {
	if out.IpfsHash == "" {
		return nil, errors.New("pinning response has no IpfsHash")
	}
	out.URI = c.GatewayURI(out.IpfsHash)
	pinLog.Infof("[pinning] pinned %s -> %s (%d bytes)", name, out.IpfsHash, out.PinSize)
	return out, nil
}

func checkResponse(endpoint string, resp *resty.Response, err error) error {
	if err != nil {
		return errors.Wrapf(err, "pinata %s", endpoint)
	}
	if resp.IsSuccess() {
		return nil
	}
	body := strings.TrimSpace(string(resp.Body()))
	if len(body) > 512 {
		body = body[:512]
	}
	return errors.Errorf("pinata %s: http %d: %s", endpoint, resp.StatusCode(), body)
}

func multipartBody(name string, data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{"name": "file", "filename": name}))
	h.Set("Content-Type", http.DetectContentType(data))
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", errors.Wrap(err, "multipart")
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", errors.Wrap(err, "multipart")
	}
	meta, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, "", errors.Wrap(err, "pinataMetadata")
	}
	if err := w.WriteField("pinataMetadata", string(meta)); err != nil {
		return nil, "", errors.Wrap(err, "multipart")
	}
	if err := w.Close(); err != nil {
		return nil, "", errors.Wrap(err, "multipart")
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
