package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// AlertGate admits one critical alert per request and organization.
type AlertGate struct {
	rdb redis.Cmdable
}

func NewAlertGate(rdb redis.Cmdable) *AlertGate {
	return &AlertGate{rdb: rdb}
}

func (g *AlertGate) Allow(ctx context.Context, requestID, orgID string) (bool, error) {
	return Claim(ctx, g.rdb, fmt.Sprintf(KeyCriticalAlert, requestID, orgID), TTLCriticalAlert)
}
