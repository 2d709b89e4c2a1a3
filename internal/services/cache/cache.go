// Package cache keeps hot posts and users in bounded LRUs with read-through
// loading. Every value crosses the boundary as a deep copy.
package cache

import (
	"context"
	"fmt"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/kakcer47/BotTG/internal/domain/model"
	"github.com/kakcer47/BotTG/internal/metrics"
)

const (
	DefaultPostCapacity = 10000
	DefaultUserCapacity = 10000
)

type PostLoader interface {
	GetPost(ctx context.Context, id int64) (model.Post, error)
}

type UserLoader interface {
	GetUser(ctx context.Context, id int64) (model.User, error)
}

type Config struct {
	PostCapacity int
	UserCapacity int
}

type Cache struct {
	posts      *lru.Cache[int64, model.Post]
	users      *lru.Cache[int64, model.User]
	postLoader PostLoader
	userLoader UserLoader
	group      singleflight.Group
}

func New(postLoader PostLoader, userLoader UserLoader, cfg Config) (*Cache, error) {
	if cfg.PostCapacity <= 0 {
		cfg.PostCapacity = DefaultPostCapacity
	}
	if cfg.UserCapacity <= 0 {
		cfg.UserCapacity = DefaultUserCapacity
	}

	posts, err := lru.New[int64, model.Post](cfg.PostCapacity)
	if err != nil {
		return nil, fmt.Errorf("create post lru: %w", err)
	}
	users, err := lru.New[int64, model.User](cfg.UserCapacity)
	if err != nil {
		return nil, fmt.Errorf("create user lru: %w", err)
	}

	return &Cache{
		posts:      posts,
		users:      users,
		postLoader: postLoader,
		userLoader: userLoader,
	}, nil
}

func (c *Cache) GetPost(ctx context.Context, id int64) (model.Post, error) {
	if post, ok := c.posts.Get(id); ok {
		metrics.CacheHitsTotal.WithLabelValues("post").Inc()
		return post.Clone(), nil
	}
	metrics.CacheMissesTotal.WithLabelValues("post").Inc()

	v, err, _ := c.group.Do("post:"+strconv.FormatInt(id, 10), func() (interface{}, error) {
		post, err := c.postLoader.GetPost(ctx, id)
		if err != nil {
			return nil, err
		}
		// A put that raced the load wins.
		c.posts.ContainsOrAdd(id, post.Clone())
		if cached, ok := c.posts.Peek(id); ok {
			return cached, nil
		}
		return post, nil
	})
	if err != nil {
		return model.Post{}, err
	}
	return v.(model.Post).Clone(), nil
}

// PutPost stores the post-write value; callers invoke it after a successful
// store write and before publishing any event about the post.
func (c *Cache) PutPost(post model.Post) {
	c.posts.Add(post.ID, post.Clone())
}

// FillPost adds post only if absent, so query results never overwrite a
// fresher write.
func (c *Cache) FillPost(post model.Post) {
	c.posts.ContainsOrAdd(post.ID, post.Clone())
}

func (c *Cache) InvalidatePost(id int64) {
	c.posts.Remove(id)
}

func (c *Cache) GetUser(ctx context.Context, id int64) (model.User, error) {
	if user, ok := c.users.Get(id); ok {
		metrics.CacheHitsTotal.WithLabelValues("user").Inc()
		return user.Clone(), nil
	}
	metrics.CacheMissesTotal.WithLabelValues("user").Inc()

	v, err, _ := c.group.Do("user:"+strconv.FormatInt(id, 10), func() (interface{}, error) {
		user, err := c.userLoader.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		c.users.ContainsOrAdd(id, user.Clone())
		if cached, ok := c.users.Peek(id); ok {
			return cached, nil
		}
		return user, nil
	})
	if err != nil {
		return model.User{}, err
	}
	return v.(model.User).Clone(), nil
}

func (c *Cache) PutUser(user model.User) {
	c.users.Add(user.ID, user.Clone())
}

func (c *Cache) InvalidateUser(id int64) {
	c.users.Remove(id)
}

func (c *Cache) Len() (posts, users int) {
	return c.posts.Len(), c.users.Len()
}
