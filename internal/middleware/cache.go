package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/todo-backend/internal/config"
)

// captureWriter records status and body while forwarding to the client.
// Once more than limit bytes have been written the copy is abandoned.
type captureWriter struct {
	http.ResponseWriter
	status   int
	buf      bytes.Buffer
	limit    int64
	overflow bool
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if !cw.overflow {
		if cw.limit > 0 && int64(cw.buf.Len()+len(b)) > cw.limit {
			cw.overflow = true
			cw.buf.Reset()
		} else {
			cw.buf.Write(b)
		}
	}
	return cw.ResponseWriter.Write(b)
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:8+len(hdrJSON)], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}

// TodoListCache caches GET /todos responses per owner in Redis.  Each owner
// has a version counter that is part of every cache key; bumping it on a
// successful mutation makes all of that owner's cached pages unreachable.
// Stale entries then age out through the TTL.
type TodoListCache struct {
	cfg config.CacheConfig
	rdb *redis.Client
	log zerolog.Logger
}

// NewTodoListCache returns a cache.  With caching disabled or a nil client
// both middlewares pass requests straight through.
func NewTodoListCache(cfg config.CacheConfig, rdb *redis.Client, log zerolog.Logger) *TodoListCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "cache"
	}
	return &TodoListCache{cfg: cfg, rdb: rdb, log: log}
}

func (tc *TodoListCache) active() bool { return tc.cfg.Enabled && tc.rdb != nil }

func (tc *TodoListCache) versionKey(ownerID uint64) string {
	return fmt.Sprintf("%s:todos:%d:version", tc.cfg.Prefix, ownerID)
}

func (tc *TodoListCache) version(ctx context.Context, ownerID uint64) (int64, error) {
	v, err := tc.rdb.Get(ctx, tc.versionKey(ownerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// pageKey is stable for a given owner, version and query regardless of
// parameter order.
func (tc *TodoListCache) pageKey(ownerID uint64, ver int64, c echo.Context) string {
	sum := sha1.Sum([]byte(c.QueryParams().Encode()))
	return fmt.Sprintf("%s:todos:%d:v%d:%x", tc.cfg.Prefix, ownerID, ver, sum[:])
}

// Serve answers from the cache when possible and stores successful
// responses otherwise.  It must run behind JWTAuth.
func (tc *TodoListCache) Serve() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if !tc.active() {
			return next
		}
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok || c.Request().Method != http.MethodGet {
				return next(c)
			}
			ctx := c.Request().Context()
			ver, err := tc.version(ctx, id.ID)
			if err != nil {
				tc.log.Warn().Err(err).Msg("cache: read version failed")
				return next(c)
			}
			key := tc.pageKey(id.ID, ver, c)

			if bs, err := tc.rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					for k, vals := range hdr {
						if strings.EqualFold(k, echo.HeaderContentLength) {
							continue
						}
						for _, v := range vals {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					_, err := c.Response().Write(body)
					return err
				}
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(tc.cfg.MaxBodyBytes)}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			if cw.status != http.StatusOK || cw.overflow {
				return nil
			}
			hdr := c.Response().Header().Clone()
			hdr.Del("X-Cache")
			// Per-request headers belong to the request that filled the entry.
			hdr.Del(echo.HeaderXRequestID)
			payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
			if err != nil {
				return nil
			}
			if err := tc.rdb.Set(context.WithoutCancel(ctx), key, payload, tc.cfg.TTL).Err(); err != nil {
				tc.log.Warn().Err(err).Msg("cache: store page failed")
			}
			return nil
		}
	}
}

// Invalidate bumps the caller's version after a successful mutation.  It
// must run behind JWTAuth.
func (tc *TodoListCache) Invalidate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if !tc.active() {
			return next
		}
		return func(c echo.Context) error {
			if err := next(c); err != nil {
				return err
			}
			status := c.Response().Status
			id, ok := IdentityFrom(c)
			if !ok || status < 200 || status >= 300 {
				return nil
			}
			ctx := context.WithoutCancel(c.Request().Context())
			if err := tc.rdb.Incr(ctx, tc.versionKey(id.ID)).Err(); err != nil {
				tc.log.Warn().Err(err).Uint64("user_id", id.ID).Msg("cache: bump version failed")
			}
			return nil
		}
	}
}
