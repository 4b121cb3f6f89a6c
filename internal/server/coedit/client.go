// Package coedit talks to the realtime co-editing hub. Live documents are
// addressed by a UUIDv5 derived from a per-page private UUID, so document ids
// can be rotated (e.g. when a node goes private) without renaming pages.
package coedit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/openscholar/platform/internal/common"
)

const privateUUIDPrefix = "wiki:uuid:"

// redisClient is the subset of *redis.Client the client needs.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Client broadcasts page lifecycle events to the hub.
type Client struct {
	baseURL string
	http    *http.Client
	rdb     redisClient
}

func NewClient(baseURL string, rdb *redis.Client) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		rdb:     rdb,
	}
}

func newClientWith(baseURL string, httpClient *http.Client, rdb redisClient) *Client {
	return &Client{baseURL: baseURL, http: httpClient, rdb: rdb}
}

// DocID returns the hub document id for the page, minting the page's private
// UUID on first use. SetNX keeps concurrent minting idempotent.
func (c *Client) DocID(ctx context.Context, nodeID, key string) (string, error) {
	redisKey := privateUUIDPrefix + nodeID + ":" + key

	private, err := c.rdb.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		fresh := uuid.NewString()
		if err := c.rdb.SetNX(ctx, redisKey, fresh, 0).Err(); err != nil {
			return "", fmt.Errorf("redis error: %w", err)
		}
		private, err = c.rdb.Get(ctx, redisKey).Result()
		if err != nil {
			return "", fmt.Errorf("redis error: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("redis error: %w", err)
	}

	ns, err := uuid.Parse(private)
	if err != nil {
		return "", fmt.Errorf("malformed private uuid: %w", err)
	}
	return uuid.NewSHA1(ns, []byte(key)).String(), nil
}

type broadcastMessage struct {
	Action  string            `json:"action"`
	DocID   string            `json:"docId"`
	Payload map[string]string `json:"payload,omitempty"`
}

// Broadcast posts an event for the page's live document to the hub.
func (c *Client) Broadcast(ctx context.Context, action, nodeID, key string, payload map[string]string) error {
	docID, err := c.DocID(ctx, nodeID, key)
	if err != nil {
		return err
	}

	body, err := json.Marshal(broadcastMessage{Action: action, DocID: docID, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal broadcast: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pub", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("coedit hub unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("coedit hub returned %s", resp.Status)
	}
	return nil
}

type draftDocument struct {
	Data string `json:"data"`
}

// Draft fetches the live (unsaved) content of the page's document from the
// hub. A page nobody is editing has no draft.
func (c *Client) Draft(ctx context.Context, nodeID, key string) (string, error) {
	docID, err := c.DocID(ctx, nodeID, key)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/docs/"+docID, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("coedit hub unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", common.ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("coedit hub returned %s", resp.Status)
	}

	var doc draftDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("decode draft: %w", err)
	}
	return doc.Data, nil
}
