package loader

import (
	"bytes"
	"testing"

	"github.com/DonKinzer/esp-tool/protocol"
)

func TestSyncSendsFixedPayload(t *testing.T) {
	c, port, _ := newTestClient()
	port.respond(okFrame(protocol.OpSync))

	if err := c.Sync(connectTimeout); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if len(port.frames) != 1 {
		t.Fatalf("frames sent = %d, want 1", len(port.frames))
	}
	payload := slipDecode(port.frames[0])
	if payload == nil {
		t.Fatal("command frame is not valid SLIP")
	}
	if len(payload) != 8+36 {
		t.Fatalf("payload length = %d, want 44", len(payload))
	}
	if payload[0] != 0x00 || payload[1] != protocol.OpSync {
		t.Errorf("header = % x", payload[:8])
	}
	want := append([]byte{0x07, 0x07, 0x12, 0x20}, bytes.Repeat([]byte{0x55}, 32)...)
	if !bytes.Equal(payload[8:], want) {
		t.Errorf("sync body = % x", payload[8:])
	}
}

func TestSyncDrainsEchoes(t *testing.T) {
	c, port, _ := newTestClient()
	// The device answers a sync burst with several copies.
	reply := append(append(okFrame(protocol.OpSync), okFrame(protocol.OpSync)...), okFrame(protocol.OpSync)...)
	port.respond(reply)

	if err := c.Sync(connectTimeout); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got := c.BytesAvailable(); got != 0 {
		t.Errorf("bytes left after drain = %d, want 0", got)
	}
}

func TestSyncTimeout(t *testing.T) {
	c, port, _ := newTestClient()
	// No responder: the command goes unanswered.
	if err := c.Sync(connectTimeout); protocol.CodeOf(err) != protocol.CodeTimeout {
		t.Errorf("error = %v, want CodeTimeout", err)
	}
	if port.flushed == 0 {
		t.Error("receive side not flushed after failed sync")
	}
}

func TestConnectRecoversOnFourthSync(t *testing.T) {
	c, port, _ := newTestClient()
	// Three unanswered syncs, then a good one.
	for i := 0; i < 3; i++ {
		port.respond(nil)
	}
	port.respond(okFrame(protocol.OpSync))

	if err := c.Connect(ResetNone); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	// Exactly four sync commands, nothing after the success.
	if len(port.frames) != 4 {
		t.Errorf("frames sent = %d, want 4", len(port.frames))
	}

	// A second Connect is a no-op on an established connection.
	if err := c.Connect(ResetNone); err != nil {
		t.Fatalf("re-Connect: %v", err)
	}
	if len(port.frames) != 4 {
		t.Errorf("re-connect sent %d extra frames", len(port.frames)-4)
	}
}

func TestConnectFailsAfterAllAttempts(t *testing.T) {
	c, port, _ := newTestClient()
	if err := c.Connect(ResetNone); protocol.CodeOf(err) != protocol.CodeConnect {
		t.Fatalf("error = %v, want CodeConnect", err)
	}
	if len(port.frames) != connectResets*connectSyncs {
		t.Errorf("frames sent = %d, want %d", len(port.frames), connectResets*connectSyncs)
	}
}

func TestRunSequence(t *testing.T) {
	c, port, _ := newTestClient()
	port.respond(okFrame(protocol.OpFlashBegin))
	port.respond(okFrame(protocol.OpFlashEnd))

	if err := c.Run(true); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(port.frames) != 2 {
		t.Fatalf("frames sent = %d, want 2", len(port.frames))
	}

	// FLASH_END payload is zero for a reboot.
	payload := slipDecode(port.frames[1])
	if payload[1] != protocol.OpFlashEnd {
		t.Errorf("second op = 0x%02x, want FLASH_END", payload[1])
	}
	if !bytes.Equal(payload[8:12], []byte{0, 0, 0, 0}) {
		t.Errorf("FLASH_END payload = % x, want zeros for reboot", payload[8:12])
	}
}

func TestRunNoReboot(t *testing.T) {
	c, port, _ := newTestClient()
	port.respond(okFrame(protocol.OpFlashBegin))
	port.respond(okFrame(protocol.OpFlashEnd))

	if err := c.Run(false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	payload := slipDecode(port.frames[1])
	if !bytes.Equal(payload[8:12], []byte{1, 0, 0, 0}) {
		t.Errorf("FLASH_END payload = % x, want 1 for no reboot", payload[8:12])
	}
}
