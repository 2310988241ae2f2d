package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func TestNATSPublisher_PublishesOnSessionSubject(t *testing.T) {
	server := startTestNATSServer(t)

	nc, err := ConnectNATS(server.ClientURL(), nil)
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync("interactions.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	pub := NewNATSPublisher(nc, "")
	require.NoError(t, pub.Publish(context.Background(), sampleLog()))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "interactions.sess-1", msg.Subject)

	var evt Event
	require.NoError(t, json.Unmarshal(msg.Data, &evt))
	assert.Equal(t, EventNewInteraction, evt.Type)
	assert.Equal(t, "log-1", evt.Data.ID)
}

func TestNATSPublisher_CustomPrefix(t *testing.T) {
	server := startTestNATSServer(t)

	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	pub := NewNATSPublisher(nc, " climblearn.logs. ")
	assert.Equal(t, "climblearn.logs.abc", pub.Subject("abc"))
}

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "_", subjectToken(""))
	assert.Equal(t, "a_b_c_d", subjectToken("a.b*c>d"))
	assert.Equal(t, "3f2a-uuid", subjectToken("3f2a-uuid"))
}
