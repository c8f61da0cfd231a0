package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"erpcounter/pkg/logger"
)

// Start begins listening for NOTIFY events. Without a pool it is a no-op.
func (c *DefinitionCache) Start(ctx context.Context) error {
	if c.pool == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.started {
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.started = true

	c.wg.Add(1)
	go c.listenLoop()
	logger.Info(c.ctx, "definition cache started", "channel", NotifyChannel)
	return nil
}

// Stop gracefully stops the listener.
func (c *DefinitionCache) Stop() {
	c.lifecycleMu.Lock()
	if !c.started {
		c.lifecycleMu.Unlock()
		return
	}
	cancel := c.cancel
	c.started = false
	c.cancel = nil
	c.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	logger.Info(context.Background(), "definition cache stopped")
}

// listenLoop holds a dedicated connection in LISTEN mode and reconnects on failure.
func (c *DefinitionCache) listenLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		conn, err := c.pool.Acquire(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			logger.Error(c.ctx, "failed to acquire connection for LISTEN", "error", err)
			c.sleep(time.Second)
			continue
		}

		if _, err := conn.Exec(c.ctx, "LISTEN "+NotifyChannel); err != nil {
			logger.Error(c.ctx, "failed to LISTEN", "error", err)
			conn.Release()
			c.sleep(time.Second)
			continue
		}

		// Notifications may have been missed while disconnected.
		c.Invalidate("")
		c.waitForNotifications(conn)
		conn.Release()
	}
}

func (c *DefinitionCache) waitForNotifications(conn *pgxpool.Conn) {
	for {
		ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
		notification, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Warn(c.ctx, "LISTEN connection lost", "error", err)
			return
		}

		logger.Debug(c.ctx, "received notification",
			"channel", notification.Channel,
			"payload", notification.Payload)
		c.handleNotification(notification.Channel, notification.Payload)
	}
}

func (c *DefinitionCache) handleNotification(channel, payload string) {
	if channel != NotifyChannel {
		return
	}
	c.Invalidate(payload)
}

func (c *DefinitionCache) sleep(d time.Duration) {
	select {
	case <-c.ctx.Done():
	case <-time.After(d):
	}
}
