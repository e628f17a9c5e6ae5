package consumer

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	mqttcommon "babyguardian-vitals/common/mqtt"
)

// ErrNoRoute 没有匹配主题的处理器
var ErrNoRoute = errors.New("no route for topic")

type route struct {
	pattern []string
	raw     string
	handler mqttcommon.MessageHandler
}

// Router 按 MQTT 主题模式分发消息（+ 匹配一级，# 匹配剩余零或多级）
// 按注册顺序取第一个匹配的路由
type Router struct {
	mu     sync.RWMutex
	routes []route
}

// NewRouter 创建路由器
func NewRouter() *Router {
	return &Router{}
}

// Handle 注册主题模式
func (r *Router) Handle(pattern string, handler mqttcommon.MessageHandler) error {
	levels := strings.Split(pattern, "/")
	for i, l := range levels {
		if l == "#" && i != len(levels)-1 {
			return fmt.Errorf("invalid topic pattern %q: # must be the last level", pattern)
		}
		if strings.ContainsAny(l, "+#") && len(l) > 1 {
			return fmt.Errorf("invalid topic pattern %q: wildcard must occupy a whole level", pattern)
		}
	}

	r.mu.Lock()
	r.routes = append(r.routes, route{pattern: levels, raw: pattern, handler: handler})
	r.mu.Unlock()
	return nil
}

// Patterns 已注册的主题模式（用于订阅）
func (r *Router) Patterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.routes))
	for _, rt := range r.routes {
		out = append(out, rt.raw)
	}
	return out
}

// Dispatch 实现 mqttcommon.MessageHandler
func (r *Router) Dispatch(topic string, payload []byte) error {
	levels := strings.Split(topic, "/")

	r.mu.RLock()
	var handler mqttcommon.MessageHandler
	for _, rt := range r.routes {
		if matchLevels(rt.pattern, levels) {
			handler = rt.handler
			break
		}
	}
	r.mu.RUnlock()

	if handler == nil {
		return fmt.Errorf("%w: %s", ErrNoRoute, topic)
	}
	return handler(topic, payload)
}

// MatchTopic 主题是否匹配模式
func MatchTopic(pattern, topic string) bool {
	return matchLevels(strings.Split(pattern, "/"), strings.Split(topic, "/"))
}

func matchLevels(pattern, topic []string) bool {
	for i, p := range pattern {
		if p == "#" {
			return true
		}
		if i >= len(topic) {
			return false
		}
		if p != "+" && p != topic[i] {
			return false
		}
	}
	return len(pattern) == len(topic)
}

// TopicParts 主题约定 <namespace>/<kind>/<deviceId>[/<modifier>]
type TopicParts struct {
	Namespace string
	Kind      string
	DeviceID  string
	Modifier  string
}

// ParseTopic 解析主题，缺失的部分为空串
func ParseTopic(topic string) TopicParts {
	levels := strings.SplitN(topic, "/", 4)
	var p TopicParts
	if len(levels) > 0 {
		p.Namespace = levels[0]
	}
	if len(levels) > 1 {
		p.Kind = levels[1]
	}
	if len(levels) > 2 {
		p.DeviceID = levels[2]
	}
	if len(levels) > 3 {
		p.Modifier = levels[3]
	}
	return p
}
