package ntf

import "testing"

func TestConfigValidateDefaults(t *testing.T) {
	var cfg Config
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MinThreads != DefaultMinThreads {
		t.Errorf("min threads = %d, want %d", cfg.MinThreads, DefaultMinThreads)
	}
	if cfg.MaxThreads != DefaultMaxThreads {
		t.Errorf("max threads = %d, want %d", cfg.MaxThreads, DefaultMaxThreads)
	}
}

func TestConfigValidateRejectsInvertedThreadBounds(t *testing.T) {
	cfg := Config{MinThreads: 8, MaxThreads: 2}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for max_threads < min_threads")
	}
}

func TestConfigValidateNormalizesUnbuildableDriverNames(t *testing.T) {
	for _, name := range []string{"devpoll", "eventport", "pollset", "iocp"} {
		cfg := Config{Driver: name}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("driver %q: unexpected error: %v", name, err)
		}
		if cfg.Driver != "poll" {
			t.Errorf("driver %q normalized to %q, want %q", name, cfg.Driver, "poll")
		}
	}
}

func TestConfigValidateRejectsUnknownDriver(t *testing.T) {
	cfg := Config{Driver: "made-up-driver"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown driver name")
	}
}

func TestSocketOptionsValidateDefaults(t *testing.T) {
	opts := DefaultSocketOptions()
	if err := opts.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSocketOptionsValidateRejectsInvertedWatermarks(t *testing.T) {
	opts := SocketOptions{WriteQueueLowWatermark: 100, WriteQueueHighWatermark: 10}
	if err := opts.Validate(); err == nil {
		t.Fatal("expected error for high < low write watermark")
	}

	opts = SocketOptions{ReadQueueLowWatermark: 100, ReadQueueHighWatermark: 10}
	if err := opts.Validate(); err == nil {
		t.Fatal("expected error for high < low read watermark")
	}
}

func TestSocketOptionsValidateRejectsInvertedTransferBounds(t *testing.T) {
	opts := SocketOptions{MinIncomingTransfer: 100, MaxIncomingTransfer: 10}
	if err := opts.Validate(); err == nil {
		t.Fatal("expected error for max < min incoming transfer")
	}
}
