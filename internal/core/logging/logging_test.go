package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{"json info", "info", "json", false},
		{"text debug", "debug", "text", false},
		{"bad level", "loud", "json", true},
		{"bad format", "info", "xml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			lvl, _ := zapcore.ParseLevel(tt.level)
			if !logger.Core().Enabled(lvl) {
				t.Errorf("logger not enabled at %s", tt.level)
			}
			if lvl > zapcore.DebugLevel && logger.Core().Enabled(lvl-1) {
				t.Errorf("logger enabled below %s", tt.level)
			}
		})
	}
}
