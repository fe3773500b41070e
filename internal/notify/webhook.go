package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// webhookChannel posts a JSON payload to a fixed URL. Success means a 2xx
// response.
type webhookChannel struct {
	name   string
	url    string
	client *http.Client
	build  func(msg Message) interface{}
}

type textContent struct {
	Content string `json:"content"`
}

type feishuContent struct {
	Text string `json:"text"`
}

func NewWeCom(webhookURL string, client *http.Client) Channel {
	return &webhookChannel{
		name:   platformWeCom,
		url:    webhookURL,
		client: client,
		build: func(msg Message) interface{} {
			return map[string]interface{}{
				"msgtype": "text",
				"text":    textContent{Content: msg.Text()},
			}
		},
	}
}

func NewFeishu(webhookURL string, client *http.Client) Channel {
	return &webhookChannel{
		name:   platformFeishu,
		url:    webhookURL,
		client: client,
		build: func(msg Message) interface{} {
			return map[string]interface{}{
				"msg_type": "text",
				"content":  feishuContent{Text: msg.Text()},
			}
		},
	}
}

func NewDingTalk(webhookURL string, client *http.Client) Channel {
	return &webhookChannel{
		name:   platformDingTalk,
		url:    webhookURL,
		client: client,
		build: func(msg Message) interface{} {
			return map[string]interface{}{
				"msgtype": "text",
				"text":    textContent{Content: msg.Text()},
			}
		},
	}
}

func (w *webhookChannel) Name() string { return w.name }

func (w *webhookChannel) Send(ctx context.Context, msg Message) Outcome {
	body, err := json.Marshal(w.build(msg))
	if err != nil {
		return failed(w.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return failed(w.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return do(w.client, w.name, req)
}

// barkChannel pushes through a Bark server: GET {server}/{key}/{title}/{body}.
type barkChannel struct {
	server string
	key    string
	client *http.Client
}

func NewBark(serverURL, key string, client *http.Client) Channel {
	if serverURL == "" {
		serverURL = "https://api.day.app"
	}
	return &barkChannel{
		server: strings.TrimRight(serverURL, "/"),
		key:    key,
		client: client,
	}
}

func (b *barkChannel) Name() string { return platformBark }

func (b *barkChannel) Send(ctx context.Context, msg Message) Outcome {
	target := fmt.Sprintf("%s/%s/%s/%s",
		b.server,
		url.PathEscape(b.key),
		url.PathEscape(msg.Title),
		url.PathEscape(msg.Body),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return failed(platformBark, err)
	}
	return do(b.client, platformBark, req)
}

// do executes req and records the decoded response body. A body that is not
// JSON is kept as text.
func do(client *http.Client, platform string, req *http.Request) Outcome {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return failed(platform, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return failed(platform, err)
	}

	var result interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		result = string(raw)
	}
	return Outcome{
		Platform: platform,
		Success:  resp.StatusCode >= 200 && resp.StatusCode < 300,
		Result:   result,
	}
}
