package chatkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/matheus3301/chatkit/models"
)

// apiClient is the REST channel for sync pulls and record mutations.
// Real-time traffic goes over the websocket; everything cursor-paged or
// request/response-shaped goes through here.
type apiClient struct {
	httpClient *http.Client
	endpoint   string
	token      string
}

func newAPIClient(httpClient *http.Client, endpoint, token string) *apiClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &apiClient{
		httpClient: httpClient,
		endpoint:   endpoint,
		token:      token,
	}
}

// post sends a JSON POST request and decodes the response into result.
func (c *apiClient) post(ctx context.Context, path string, body, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshalling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request to %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", path, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", path, ErrTokenExpired)
	default:
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response from %s: %w", path, err)
		}
	}
	return nil
}

type conversationListRequest struct {
	UpdatedAt     int64  `json:"updatedAt,omitempty"`
	LastRemovedAt int64  `json:"lastRemovedAt,omitempty"`
	Limit         int    `json:"limit"`
	Category      string `json:"category,omitempty"`
	// Log-prefetch hints; the engine prefetches client-side, the
	// server may use them to presize its response.
	SyncLogs         bool `json:"syncLogs,omitempty"`
	SyncLogsLimit    int  `json:"syncLogsLimit,omitempty"`
	SyncLogsMaxCount int  `json:"syncLogsMaxCount,omitempty"`
	SyncMaxCount     int  `json:"syncMaxCount,omitempty"`
}

func (c *apiClient) listConversations(ctx context.Context, req conversationListRequest) (*models.ConversationListResult, error) {
	var result models.ConversationListResult
	if err := c.post(ctx, "/api/chat/list", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *apiClient) getConversationInfo(ctx context.Context, topicID string) (*models.Conversation, error) {
	var result models.Conversation
	if err := c.post(ctx, "/api/chat/info/"+topicID, struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *apiClient) removeConversation(ctx context.Context, topicID string) error {
	return c.post(ctx, "/api/chat/remove/"+topicID, struct{}{}, nil)
}

// updateConversation patches server-side conversation fields; values
// carries only the fields being changed.
func (c *apiClient) updateConversation(ctx context.Context, topicID string, values map[string]any) error {
	return c.post(ctx, "/api/chat/update/"+topicID, values, nil)
}

type markReadRequest struct {
	Heavy bool `json:"heavy,omitempty"`
}

func (c *apiClient) markConversationRead(ctx context.Context, topicID string, heavy bool) error {
	return c.post(ctx, "/api/chat/read/"+topicID, markReadRequest{Heavy: heavy}, nil)
}

type chatLogSyncRequest struct {
	TopicID string `json:"topicId"`
	LastSeq int64  `json:"lastSeq,omitempty"`
	Limit   int    `json:"limit"`
}

func (c *apiClient) syncChatLogs(ctx context.Context, req chatLogSyncRequest) (*models.ChatLogListResult, error) {
	var result models.ChatLogListResult
	if err := c.post(ctx, "/api/chat/sync/"+req.TopicID, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *apiClient) getProfile(ctx context.Context, userID string) (*models.User, error) {
	var result models.User
	if err := c.post(ctx, "/api/profile/"+userID, struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// setRelation patches the caller's relation to another user (remark,
// favorite/star).
func (c *apiClient) setRelation(ctx context.Context, userID string, values map[string]any) error {
	return c.post(ctx, "/api/relation/"+userID, values, nil)
}

func (c *apiClient) setUserBlocked(ctx context.Context, userID string, blocked bool) error {
	action := "unblock"
	if blocked {
		action = "block"
	}
	return c.post(ctx, "/api/"+action+"/"+userID, struct{}{}, nil)
}

func (c *apiClient) getTopicInfo(ctx context.Context, topicID string) (*models.Topic, error) {
	var result models.Topic
	if err := c.post(ctx, "/api/topic/info/"+topicID, struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type topicKnockList struct {
	Items []*models.TopicKnock `json:"items"`
}

func (c *apiClient) listTopicKnocks(ctx context.Context, topicID string) ([]*models.TopicKnock, error) {
	var result topicKnockList
	if err := c.post(ctx, "/api/topic/admin/list_knock/"+topicID, struct{}{}, &result); err != nil {
		return nil, err
	}
	return result.Items, nil
}
