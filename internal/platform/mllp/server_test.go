package mllp

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/hl7/pkg/hl7"
)

// testADT is a minimal ADT^A01 message used across MLLP tests.
var testADT = "MSH|^~\\&|SendApp|SendFac|RecvApp|RecvFac|20240115120000||ADT^A01|MSG001|P|2.5.1\rPID|||12345||Smith^John||19800101|M"

func startServer(t *testing.T, cfg Config, handler MessageHandler) *Server {
	t.Helper()
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	s := NewServer(cfg, handler, zerolog.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { s.Stop() })
	return s
}

func dial(t *testing.T, s *Server) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", s.Addr(), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// =========== Server Tests ===========

func TestServer_StartStop(t *testing.T) {
	s := NewServer(Config{Addr: "127.0.0.1:0"}, DefaultHandler(nil), zerolog.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s.Addr() == "" {
		t.Fatal("Addr() returned empty string")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestServer_ReceiveMessage(t *testing.T) {
	received := make(chan *hl7.Message, 1)
	handler := func(ctx context.Context, msg *hl7.Message) *hl7.Message {
		received <- msg
		return nil
	}
	s := startServer(t, Config{}, handler)
	conn := dial(t, s)

	if _, err := conn.Write(FrameMessage([]byte(testADT))); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	select {
	case msg := <-received:
		if v, _ := msg.Get("MSH.9.1.2"); v != "A01" {
			t.Errorf("expected trigger 'A01', got %q", v)
		}
		if v, _ := msg.Get("MSH.10"); v != "MSG001" {
			t.Errorf("expected control ID 'MSG001', got %q", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestServer_SendsACK(t *testing.T) {
	s := startServer(t, Config{}, DefaultHandler(&hl7.ACKOptions{MessageID: "ACK1"}))
	conn := dial(t, s)

	if _, err := conn.Write(FrameMessage([]byte(testADT))); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	ack, err := hl7.ParseBytes(readResponse(t, conn, 5*time.Second))
	if err != nil {
		t.Fatalf("failed to parse ACK: %v", err)
	}
	checks := map[string]string{
		"MSA.1":  "AA",
		"MSA.2":  "MSG001",
		"MSH.3":  "RecvApp",
		"MSH.5":  "SendApp",
		"MSH.10": "ACK1",
	}
	for key, want := range checks {
		if got, _ := ack.Get(key); got != want {
			t.Errorf("%s: expected %q, got %q", key, want, got)
		}
	}
}

func TestServer_MultipleMessages(t *testing.T) {
	var mu sync.Mutex
	var received []string
	handler := func(ctx context.Context, msg *hl7.Message) *hl7.Message {
		id, _ := msg.Get("MSH.10")
		mu.Lock()
		received = append(received, id)
		mu.Unlock()
		return DefaultHandler(nil)(ctx, msg)
	}
	s := startServer(t, Config{}, handler)
	conn := dial(t, s)

	msg1 := "MSH|^~\\&|A|B|C|D|20240115120000||ADT^A01|CTRL1|P|2.5.1\rPID|||111||One^First||19900101|M"
	msg2 := "MSH|^~\\&|A|B|C|D|20240115120001||ADT^A01|CTRL2|P|2.5.1\rPID|||222||Two^Second||19910202|F"

	// Both frames in one write; the reader must split them.
	if _, err := conn.Write(append(FrameMessage([]byte(msg1)), FrameMessage([]byte(msg2))...)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	reader := NewReader(conn, 0)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < 2; i++ {
		if _, err := reader.ReadMessage(); err != nil {
			t.Fatalf("reading ACK %d: %v", i+1, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(received))
	}
	if received[0] != "CTRL1" || received[1] != "CTRL2" {
		t.Errorf("unexpected order %v", received)
	}
}

func TestServer_MultipleConnections(t *testing.T) {
	var mu sync.Mutex
	var received []string
	handler := func(ctx context.Context, msg *hl7.Message) *hl7.Message {
		id, _ := msg.Get("MSH.10")
		mu.Lock()
		received = append(received, id)
		mu.Unlock()
		return DefaultHandler(nil)(ctx, msg)
	}
	s := startServer(t, Config{}, handler)

	var wg sync.WaitGroup
	for i, ctrlID := range []string{"CONN1", "CONN2"} {
		wg.Add(1)
		go func(idx int, id string) {
			defer wg.Done()
			conn, err := net.DialTimeout("tcp", s.Addr(), 2*time.Second)
			if err != nil {
				t.Errorf("Dial failed for conn %d: %v", idx, err)
				return
			}
			defer conn.Close()

			msg := "MSH|^~\\&|A|B|C|D|20240115120000||ADT^A01|" + id + "|P|2.5.1\rPID|||999||Test^User||19850101|M"
			if _, err := conn.Write(FrameMessage([]byte(msg))); err != nil {
				t.Errorf("Write failed for conn %d: %v", idx, err)
				return
			}
			readResponse(t, conn, 5*time.Second)
		}(i, ctrlID)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 messages from 2 connections, got %d", len(received))
	}
}

func TestServer_InvalidMessage(t *testing.T) {
	s := startServer(t, Config{}, DefaultHandler(nil))
	conn := dial(t, s)

	// Garbage inside a frame is logged and skipped.
	if _, err := conn.Write(FrameMessage([]byte("THIS IS NOT HL7"))); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	if _, err := conn.Write(FrameMessage([]byte(testADT))); err != nil {
		t.Fatalf("Write valid message failed: %v", err)
	}
	ack, err := hl7.ParseBytes(readResponse(t, conn, 5*time.Second))
	if err != nil {
		t.Fatalf("failed to parse ACK after invalid message: %v", err)
	}
	if v, _ := ack.Get("MSA.1"); v != "AA" {
		t.Errorf("expected MSA-1 'AA', got %q", v)
	}
}

func TestServer_OversizedFrameClosesConnection(t *testing.T) {
	s := startServer(t, Config{MaxMessageSize: 64}, DefaultHandler(nil))
	conn := dial(t, s)

	big := append([]byte{StartBlock}, bytes.Repeat([]byte("X"), 512)...)
	if _, err := conn.Write(big); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 16)
	if _, err := conn.Read(buf); err == nil {
		t.Error("expected the server to close the connection")
	}
}

func TestServer_ParseOptions(t *testing.T) {
	received := make(chan string, 1)
	handler := func(ctx context.Context, msg *hl7.Message) *hl7.Message {
		v, _ := msg.Get("MSH.4")
		received <- v
		return nil
	}
	s := startServer(t, Config{ParseOptions: []hl7.Option{hl7.WithEncoding("latin1")}}, handler)
	conn := dial(t, s)

	if _, err := conn.Write(FrameMessage([]byte("MSH|^~\\&|APP|CL\xcdNICA|R|F|20240101||ADT^A01|1|P|2.5"))); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	select {
	case v := <-received:
		if v != "CLÍNICA" {
			t.Errorf("expected CLÍNICA, got %q", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

// =========== Helpers ===========

// readResponse reads one MLLP-framed response and returns its payload.
func readResponse(t *testing.T, conn net.Conn, timeout time.Duration) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	msg, err := NewReader(conn, 0).ReadMessage()
	if err != nil {
		t.Fatalf("error reading MLLP response: %v", err)
	}
	return msg
}
