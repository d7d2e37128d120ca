//go:build integration

package app_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/mock/gomock"

	"sprout/internal/app"
	"sprout/internal/flows"
	"sprout/internal/platform/config"
	"sprout/internal/wizard/service"
	"sprout/internal/wizard/submission/mocks"
	audit "sprout/pkg/platform/audit"
	"sprout/pkg/testutil"
	"sprout/pkg/testutil/containers"
)

func TestAppWithRedisAndKafka(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	rp := containers.GetManager().GetRedpanda(t)
	ctx := context.Background()

	const topic = "sprout.wizard.audit.app"
	admin := kadm.NewClient(mustClient(t, kgo.SeedBrokers(rp.Brokers...)))
	_, err := admin.CreateTopics(ctx, 1, 1, nil, topic)
	require.NoError(t, err)

	cfg, err := config.LoadWith(map[string]string{
		"SPROUT_REDIS_URL":         rc.Addr,
		"SPROUT_REDIS_KEY_PREFIX":  "apptest:",
		"SPROUT_KAFKA_BROKERS":     strings.Join(rp.Brokers, ","),
		"SPROUT_KAFKA_TOPIC":       topic,
		"SPROUT_AUDIT_BUFFER_SIZE": "0",
	})
	require.NoError(t, err)

	a, err := app.New(ctx, cfg, nil, app.Collaborators{Registrar: mocks.NewMockRegistrar(gomock.NewController(t))})
	require.NoError(t, err)
	require.NoError(t, a.Health(ctx))

	sess, err := a.Service.Start(testutil.Context(), flows.FarmerRegistration, service.StartOptions{})
	require.NoError(t, err)

	t.Run("session snapshot lives in redis", func(t *testing.T) {
		n, err := rc.Client.Exists(ctx, "apptest:"+sess.ID.String()).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("audit event reaches the topic", func(t *testing.T) {
		consumer := mustClient(t,
			kgo.SeedBrokers(rp.Brokers...),
			kgo.ConsumeTopics(topic),
			kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		)
		pollCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		fetches := consumer.PollFetches(pollCtx)
		require.NoError(t, fetches.Err())
		var event audit.Event
		require.NoError(t, json.Unmarshal(fetches.Records()[0].Value, &event))
		assert.Equal(t, string(audit.EventSessionStarted), event.Action)
		assert.Equal(t, sess.ID, event.SessionID)
		assert.False(t, a.AuditDegraded())
		assert.Empty(t, a.AuditLog.Actions(sess.ID))
	})

	a.Close()
}

func mustClient(t *testing.T, opts ...kgo.Opt) *kgo.Client {
	t.Helper()
	client, err := kgo.NewClient(opts...)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}
