package broker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"solana-dex-router/internal/logging"
)

func TestWatermill_GoChannelDelivers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b, pubSub := NewGoChannel(logging.NewWatermillAdapter(nil))
	defer b.Close()

	messages, err := pubSub.Subscribe(ctx, "events:all")
	require.NoError(t, err)

	require.NoError(t, b.Publish(WithSignature(ctx, "sig1"), "events:all", []byte(`{"a":1}`)))

	select {
	case msg := <-messages:
		assert.Equal(t, `{"a":1}`, string(msg.Payload))
		assert.Equal(t, "sig1", msg.Metadata.Get(MetadataSignature))
		assert.NotEmpty(t, msg.UUID)
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}

func TestWatermill_ClosedPublisher(t *testing.T) {
	b, _ := NewGoChannel(logging.NewWatermillAdapter(nil))
	require.NoError(t, b.Close())

	err := b.Publish(context.Background(), "events:all", []byte("x"))
	assert.Error(t, err)
}

func TestNewWatermillNATS_Unreachable(t *testing.T) {
	_, err := NewWatermillNATS(WatermillNATSOptions{URL: "nats://127.0.0.1:1"})
	assert.Error(t, err)
}

// setupNATS starts a NATS server container and returns its client URL.
func setupNATS(t *testing.T) (string, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForLog("Server is ready").WithStartupTimeout(60*time.Second),
				wait.ForListeningPort("4222/tcp"),
			),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	cleanup := func() {
		_ = container.Terminate(ctx)
	}
	return fmt.Sprintf("nats://%s:%s", host, port.Port()), cleanup
}

func TestWatermillNATS_PublishReachesSubscriber(t *testing.T) {
	url, cleanup := setupNATS(t)
	defer cleanup()

	nc, err := nats.Connect(url)
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync("dex.events.program.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	b, err := NewWatermillNATS(WatermillNATSOptions{
		URL:           url,
		SubjectPrefix: "dex",
		Logger:        logging.NewWatermillAdapter(nil),
	})
	require.NoError(t, err)
	defer b.Close()

	ctx := WithSignature(context.Background(), "sig-wm")
	require.NoError(t, b.Publish(ctx, "events:program:p1", []byte(`{"a":1}`)))

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "dex.events.program.p1", msg.Subject)
	assert.Equal(t, `{"a":1}`, string(msg.Data))
	assert.Equal(t, "sig-wm", msg.Header.Get(MetadataSignature))
}

func TestLog_Publish(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	b := NewLog(zap.New(core))

	require.NoError(t, b.Publish(WithSignature(context.Background(), "sig9"), "events:program:p", []byte("abc")))
	require.NoError(t, b.Close())

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "events:program:p", fields["topic"])
	assert.Equal(t, "sig9", fields["signature"])
	assert.EqualValues(t, 3, fields["bytes"])
}

func TestSubjectFor(t *testing.T) {
	assert.Equal(t, "events.all", subjectFor("", "events:all"))
	assert.Equal(t, "dex.events.program.abc", subjectFor("dex", "events:program:abc"))
}

func TestSignatureFrom(t *testing.T) {
	_, ok := SignatureFrom(context.Background())
	assert.False(t, ok)

	_, ok = SignatureFrom(WithSignature(context.Background(), ""))
	assert.False(t, ok)

	sig, ok := SignatureFrom(WithSignature(context.Background(), "s"))
	assert.True(t, ok)
	assert.Equal(t, "s", sig)
}
