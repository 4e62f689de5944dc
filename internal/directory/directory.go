// Package directory is the read-side view of organizations, hospitals and
// users: display names for search results and phone numbers for alerts.
// Lookups go through a Redis cache in front of the source of record.
package directory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/redisx"
)

// Source is the system of record. Missing ids are absent from the result.
type Source interface {
	Contacts(ctx context.Context, kind bloodbank.PartyKind, ids []string) (map[string]bloodbank.Contact, error)
}

type Directory struct {
	src Source
	rdb redis.Cmdable
	log *zap.Logger
}

// New returns a directory. rdb may be nil to disable caching.
func New(src Source, rdb redis.Cmdable, log *zap.Logger) *Directory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Directory{src: src, rdb: rdb, log: log.Named("directory")}
}

func (d *Directory) Contact(ctx context.Context, kind bloodbank.PartyKind, id string) (bloodbank.Contact, error) {
	m, err := d.Contacts(ctx, kind, []string{id})
	if err != nil {
		return bloodbank.Contact{}, err
	}
	c, ok := m[id]
	if !ok {
		return bloodbank.Contact{}, fmt.Errorf("%s %s: %w", kind, id, bloodbank.ErrContactNotFound)
	}
	return c, nil
}

func (d *Directory) Contacts(ctx context.Context, kind bloodbank.PartyKind, ids []string) (map[string]bloodbank.Contact, error) {
	out := make(map[string]bloodbank.Contact, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	misses := ids
	if d.rdb != nil {
		misses = d.fromCache(ctx, kind, ids, out)
	}
	if len(misses) == 0 {
		return out, nil
	}

	found, err := d.src.Contacts(ctx, kind, misses)
	if err != nil {
		return nil, fmt.Errorf("directory lookup: %w", err)
	}
	for id, c := range found {
		out[id] = c
	}
	if d.rdb != nil && len(found) > 0 {
		d.toCache(ctx, kind, found)
	}
	return out, nil
}

// OrganizationNames maps organization ids to display names.
func (d *Directory) OrganizationNames(ctx context.Context, ids []string) (map[string]string, error) {
	m, err := d.Contacts(ctx, bloodbank.PartyOrganization, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(m))
	for id, c := range m {
		names[id] = c.Name
	}
	return names, nil
}

// Invalidate drops a cached entry after the record changed.
func (d *Directory) Invalidate(ctx context.Context, kind bloodbank.PartyKind, id string) {
	if d.rdb == nil {
		return
	}
	if err := d.rdb.Del(ctx, key(kind, id)).Err(); err != nil {
		d.log.Warn("cache invalidate failed", zap.String("kind", string(kind)), zap.String("id", id), zap.Error(err))
	}
}

func (d *Directory) fromCache(ctx context.Context, kind bloodbank.PartyKind, ids []string, out map[string]bloodbank.Contact) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(kind, id)
	}
	vals, err := d.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		d.log.Warn("cache read failed", zap.Error(err))
		return ids
	}
	var misses []string
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			misses = append(misses, ids[i])
			continue
		}
		var c bloodbank.Contact
		if err := json.Unmarshal([]byte(s), &c); err != nil {
			misses = append(misses, ids[i])
			continue
		}
		out[ids[i]] = c
	}
	return misses
}

func (d *Directory) toCache(ctx context.Context, kind bloodbank.PartyKind, found map[string]bloodbank.Contact) {
	pipe := d.rdb.Pipeline()
	for id, c := range found {
		b, err := json.Marshal(c)
		if err != nil {
			continue
		}
		pipe.Set(ctx, key(kind, id), b, redisx.TTLContact)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		d.log.Warn("cache write failed", zap.Error(err))
	}
}

func key(kind bloodbank.PartyKind, id string) string {
	return fmt.Sprintf(redisx.KeyContact, kind, id)
}
