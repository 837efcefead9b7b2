package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/url"
	"time"

	"family_chat_service/pkg/database"
	"family_chat_service/pkg/logger"
)

// AvatarRepository resolves a member name to an avatar reference.
// Lookup is best-effort: any failure falls back to a deterministic
// generated avatar keyed by the name.
type AvatarRepository interface {
	Lookup(ctx context.Context, name string) string
}

type memberAvatarRepository struct {
	baseURL    string
	httpClient *http.Client
	cache      database.RedisRepository[string]
	cacheTTL   time.Duration
}

// NewMemberAvatarRepository create an AvatarRepository against the member
// service. cache may be nil to disable caching (tests).
func NewMemberAvatarRepository(baseURL string, cache database.RedisRepository[string], cacheTTL time.Duration) AvatarRepository {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &memberAvatarRepository{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 2 * time.Second},
		cache:      cache,
		cacheTTL:   cacheTTL,
	}
}

// FallbackAvatar returns the deterministic generated avatar ref for a name.
func FallbackAvatar(name string) string {
	h := fnv.New32a()
	h.Write([]byte(name))
	return fmt.Sprintf("builtin://avatar/%08x", h.Sum32())
}

func (r *memberAvatarRepository) Lookup(ctx context.Context, name string) string {
	if name == "" {
		return FallbackAvatar(name)
	}

	cacheKey := "chat:avatar:" + name
	if r.cache != nil {
		if ref, err := r.cache.Get(ctx, cacheKey); err == nil && ref != "" {
			return ref
		}
	}

	ref, err := r.fetch(ctx, name)
	if err != nil {
		logger.Log.Warn(fmt.Sprintf("avatar lookup for %q failed, using fallback: %v", name, err))
		return FallbackAvatar(name)
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, cacheKey, ref, r.cacheTTL); err != nil {
			logger.Log.Warn(fmt.Sprintf("avatar cache set failed: %v", err))
		}
	}
	return ref
}

func (r *memberAvatarRepository) fetch(ctx context.Context, name string) (string, error) {
	endpoint := fmt.Sprintf("%s/users/%s", r.baseURL, url.PathEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("member service returned %d", resp.StatusCode)
	}

	var body struct {
		AvatarRef string `json:"avatar_ref"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.AvatarRef == "" {
		return "", fmt.Errorf("member %q has no avatar", name)
	}
	return body.AvatarRef, nil
}
