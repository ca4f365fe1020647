package bus_test

import (
	"testing"

	"facelane/internal/bus"
)

func TestConnectFailsForUnreachableServer(t *testing.T) {
	client, err := bus.Connect("nats://127.0.0.1:1", "facelane-test", "facelane.jobs")
	if err == nil {
		client.Close()
		t.Fatal("expected connect error")
	}
}

func TestNilClientIsNotConnected(t *testing.T) {
	var client *bus.Client
	if client.Connected() {
		t.Fatal("nil client must report disconnected")
	}
	client.Close()
}
