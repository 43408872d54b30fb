package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newFakeClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "jobkb-test", option.WithGRPCConn(conn))
	require.NoError(t, err)

	_, err = client.CreateTopic(ctx, "kb-refreshed")
	require.NoError(t, err)
	return client, srv
}

func TestPublishSendsJSON(t *testing.T) {
	client, srv := newFakeClient(t)
	pub := New(client)
	defer func() { require.NoError(t, pub.Close()) }()

	payload := map[string]any{"run_id": "run-1", "total_jobs": 42}
	id, err := pub.Publish(context.Background(), "kb-refreshed", payload)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.EqualValues(t, 42, got["total_jobs"])
	assert.Equal(t, "application/json", msgs[0].Attributes["content_type"])
}

func TestPublishReusesTopicHandle(t *testing.T) {
	client, srv := newFakeClient(t)
	pub := New(client)
	defer func() { require.NoError(t, pub.Close()) }()

	for i := 0; i < 2; i++ {
		_, err := pub.Publish(context.Background(), "kb-refreshed", i)
		require.NoError(t, err)
	}
	assert.Len(t, pub.topics, 1)
	assert.Len(t, srv.Messages(), 2)
}

func TestPublishValidation(t *testing.T) {
	_, err := New(nil).Publish(context.Background(), "t", "x")
	require.Error(t, err)

	client, _ := newFakeClient(t)
	pub := New(client)
	defer func() { require.NoError(t, pub.Close()) }()

	_, err = pub.Publish(context.Background(), "", "x")
	require.Error(t, err)

	_, err = pub.Publish(context.Background(), "kb-refreshed", make(chan int))
	require.Error(t, err)

	_, err = NewFromProject(context.Background(), "")
	require.Error(t, err)
}
