package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis2 "FProject/service/storage/redis"
	errs "FProject/tools/errs"

	"github.com/redis/go-redis/v9"
)

// ===== 配置 =====

type PresenceConfig struct {
	NodeID        string        // 网关节点ID（参与key命名）
	TTL           time.Duration // 会话TTL（心跳续期）
	UseClusterTag bool          // 是否使用Redis Cluster hash-tag对齐
	UseEXAT       bool          // 使用EXPIREAT（更精准）
	UserIndexTTL  time.Duration // 用户索引兜底TTL
}

func (c *PresenceConfig) norm() {
	if c.TTL <= 0 {
		c.TTL = 2 * time.Minute
	}
	if c.UserIndexTTL <= 0 {
		c.UserIndexTTL = 24 * time.Hour
	}
}

// ===== Lua 脚本 =====

// 注册一条已鉴权会话（会话键 + 用户索引）
// KEYS[1] = user index key (nsidx:{<node>:<user>})
// ARGV[1] = session key    (ns:{<node>:<user>}:id:<snow>)
// ARGV[2] = ttlSeconds
// ARGV[3] = expireAtUnix
// ARGV[4] = useEXAT(0/1)
// ARGV[5] = userIndexTtlSeconds
// 返回：1 注册成功；-1 会话键已存在（冲突）
const luaRegister = `
local userZ = KEYS[1]
local kSess = ARGV[1]
local ttl   = tonumber(ARGV[2])
local expAt = tonumber(ARGV[3])
local useEXAT = tonumber(ARGV[4])
local idxTtl  = tonumber(ARGV[5])

if redis.call("EXISTS", kSess) == 1 then
  return -1
end

if useEXAT == 1 then
  redis.call("SET", kSess, "1")
  redis.call("EXPIREAT", kSess, expAt)
else
  redis.call("SET", kSess, "1", "EX", ttl)
end
redis.call("ZADD", userZ, expAt, kSess)
if idxTtl > 0 then
  redis.call("EXPIRE", userZ, idxTtl)
end
return 1
`

// 单会话离线（删除会话键 + 从用户索引移除）
// KEYS[1] = user index key
// ARGV[1] = session key
// 返回：1=删掉了会话键；0=会话键不存在（幂等）
const luaOfflineOne = `
local userZ = KEYS[1]
local kSess = ARGV[1]
local existed = redis.call("DEL", kSess)
redis.call("ZREM", userZ, kSess)
return existed
`

// 清理过期并返回在线标志与数量
// KEYS[1] = user index key
// ARGV[1] = nowUnix
// 返回：数组 [在线标志(0/1), 数量]
const luaIsOnline = `
local userZ = KEYS[1]
local now   = tonumber(ARGV[1])

local victims = redis.call("ZRANGEBYSCORE", userZ, "-inf", now)
for _, v in ipairs(victims) do
  redis.call("ZREM", userZ, v)
  redis.call("DEL", v)
end

local cnt = redis.call("ZCOUNT", userZ, now + 1, "+inf")
if redis.call("ZCARD", userZ) > 0 then
  redis.call("EXPIRE", userZ, 3600)
end

if cnt > 0 then
  return {1, cnt}
else
  return {0, 0}
end
`

// 心跳续期（会话键不存在返回0，上层据此判定会话被清理）
// KEYS[1] = user index key
// KEYS[2] = session key
// ARGV[1] = ttlSec
// ARGV[2] = expAt
// ARGV[3] = useEXAT(0/1)
// ARGV[4] = nowUnix
const luaHeartbeat = `
local userZ = KEYS[1]
local kSess = KEYS[2]
local ttl   = tonumber(ARGV[1])
local expAt = tonumber(ARGV[2])
local useEXAT = tonumber(ARGV[3])
local now     = tonumber(ARGV[4])

if redis.call("EXISTS", kSess) == 0 then
  return 0
end

if useEXAT == 1 then
  redis.call("EXPIREAT", kSess, expAt)
else
  redis.call("EXPIRE", kSess, ttl)
end

redis.call("ZREMRANGEBYSCORE", userZ, "-inf", now)
redis.call("ZADD", userZ, expAt, kSess)
return 1
`

// PresenceStore ===== Store =====
// 跨进程共享的在线索引：其他服务可据此回答 IsOnline，
// 本进程的投递仍以 ConnManager 的本地索引为准。
type PresenceStore struct {
	conf PresenceConfig

	luaRegister   *redis.Script
	luaOfflineOne *redis.Script
	luaIsOnline   *redis.Script
	luaHeartbeat  *redis.Script
}

func NewPresenceStore(conf PresenceConfig) *PresenceStore {
	conf.norm()
	m := &PresenceStore{conf: conf}
	m.luaRegister = redis.NewScript(luaRegister)
	m.luaOfflineOne = redis.NewScript(luaOfflineOne)
	m.luaIsOnline = redis.NewScript(luaIsOnline)
	m.luaHeartbeat = redis.NewScript(luaHeartbeat)
	return m
}

// ===== Key 构造 =====

// 会话键
// UseClusterTag=true: ns:{<node>:<user>}:id:<snow>
// false:              ns:<node>:id:<snow>:u:<user>
func (m *PresenceStore) sessionKey(userID, sessionID string) string {
	if m.conf.UseClusterTag {
		return fmt.Sprintf("ns:{%s:%s}:id:%s", m.conf.NodeID, userID, sessionID)
	}
	return fmt.Sprintf("ns:%s:id:%s:u:%s", m.conf.NodeID, sessionID, userID)
}

// 用户索引ZSET（member=会话key, score=expireAtUnix）
// UseClusterTag=true: nsidx:{<node>:<user>}
// false:              nsidx:<node>:u:<user>
func (m *PresenceStore) userIndexKey(userID string) string {
	if m.conf.UseClusterTag {
		return fmt.Sprintf("nsidx:{%s:%s}", m.conf.NodeID, userID)
	}
	return fmt.Sprintf("nsidx:%s:u:%s", m.conf.NodeID, userID)
}

// UserChannel 每用户广播频道：该用户所有在线连接（跨进程）都订阅它
func UserChannel(userID string) string {
	return userChannelPrefix + userID
}

const userChannelPrefix = "notify:ch:"

// UserChannelPattern PSUBSCRIBE 模式：节点订阅全量用户频道，本地有会话才投递
const UserChannelPattern = userChannelPrefix + "*"

// UserFromChannel 从频道名还原 userID；非本前缀返回空串
func UserFromChannel(ch string) string {
	if strings.HasPrefix(ch, userChannelPrefix) {
		return ch[len(userChannelPrefix):]
	}
	return ""
}

// ===== 会话生命周期 =====

// Register 登记一条已鉴权会话
func (m *PresenceStore) Register(ctx context.Context, userID, sessionID string) *errs.CodeError {
	kSess := m.sessionKey(userID, sessionID)
	zUser := m.userIndexKey(userID)

	now := time.Now()
	expAt := now.Add(m.conf.TTL).Unix()

	rc, err := m.luaRegister.Run(ctx, redis2.GetRedis(),
		[]string{zUser},
		kSess,
		int64(m.conf.TTL/time.Second), expAt, boolToInt(m.conf.UseEXAT),
		int64(m.conf.UserIndexTTL/time.Second),
	).Int64()
	if err != nil {
		e := errs.ErrStoreFailed.WithDetail(err.Error())
		return &e
	}
	switch rc {
	case 1:
		return nil
	case -1:
		return &errs.ErrRecordIsExist
	default:
		e := errs.ErrStoreFailed.WithDetail(fmt.Sprintf("unexpected register rc=%d", rc))
		return &e
	}
}

// Offline 单个会话下线（幂等）
func (m *PresenceStore) Offline(ctx context.Context, userID, sessionID string) (bool, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(sessionID) == "" {
		return false, nil
	}
	kSess := m.sessionKey(userID, sessionID)
	zUser := m.userIndexKey(userID)

	rc, err := m.luaOfflineOne.Run(ctx, redis2.GetRedis(),
		[]string{zUser},
		kSess,
	).Int64()
	if err != nil {
		return false, err
	}
	return rc == 1, nil
}

// IsOnline 判断用户是否在线，并返回在线会话数量（顺带清理过期）
func (m *PresenceStore) IsOnline(ctx context.Context, userID string) (online bool, count int64, err error) {
	zUser := m.userIndexKey(userID)
	now := time.Now().Unix()

	vals, e := m.luaIsOnline.Run(ctx, redis2.GetRedis(), []string{zUser}, now).Slice()
	if e != nil {
		return false, 0, e
	}

	var flag int64
	if len(vals) >= 2 {
		if v, ok := vals[0].(int64); ok {
			flag = v
		}
		if v, ok := vals[1].(int64); ok {
			count = v
		}
	}
	return flag == 1, count, nil
}

// Heartbeat 会话心跳续期；false 表示会话键已不存在（被清理/过期）
func (m *PresenceStore) Heartbeat(ctx context.Context, userID, sessionID string) (bool, error) {
	kSess := m.sessionKey(userID, sessionID)
	zUser := m.userIndexKey(userID)

	now := time.Now()
	expAt := now.Add(m.conf.TTL).Unix()

	rc, err := m.luaHeartbeat.Run(ctx, redis2.GetRedis(),
		[]string{zUser, kSess},
		int64(m.conf.TTL/time.Second), expAt, boolToInt(m.conf.UseEXAT), now.Unix(),
	).Int64()
	if err != nil {
		return false, err
	}
	return rc == 1, nil
}

// ===== 每用户频道（跨进程投递面） =====

// PublishUser 把事件帧发布到用户频道；订阅方见 service/notify/fanout.go
func (m *PresenceStore) PublishUser(ctx context.Context, userID string, payload []byte) error {
	return redis2.GetRedis().Publish(ctx, UserChannel(userID), payload).Err()
}

// ===== 工具 =====
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
