package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jiamizhongshifu/ai-images-zhushou-sub005/config"
)

// Client 图像生成服务商客户端（OpenAI images 协议兼容）
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewClient(cfg *config.ProviderConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type generateResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// 画幅比例到服务商尺寸参数的映射
var aspectRatioSizes = map[string]string{
	"1:1":  "1024x1024",
	"16:9": "1792x1024",
	"9:16": "1024x1792",
}

// Generate 调用服务商生成一张图片，返回图片 URL
func (c *Client) Generate(ctx context.Context, prompt, style, aspectRatio, model string) (string, error) {
	if model == "" {
		model = c.model
	}

	fullPrompt := prompt
	if style != "" {
		fullPrompt = fmt.Sprintf("%s, %s style", prompt, style)
	}

	size, ok := aspectRatioSizes[aspectRatio]
	if !ok {
		size = aspectRatioSizes["1:1"]
	}

	body, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: fullPrompt,
		N:      1,
		Size:   size,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/images/generations", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("provider api error (%d): %s", resp.StatusCode, string(raw))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode provider response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("provider error: %s", result.Error.Message)
	}
	if len(result.Data) == 0 || result.Data[0].URL == "" {
		return "", fmt.Errorf("provider returned no image")
	}

	return result.Data[0].URL, nil
}

// Download 拉取服务商生成的图片内容（用于转存 OSS）
func (c *Client) Download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image: unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
